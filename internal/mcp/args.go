package mcp

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
)

// Args are the decoded JSON arguments of a tool call.
type Args map[string]interface{}

func (a Args) String(name string) string {
	switch v := a[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(toString(v))
	}
}

func (a Args) RequireString(name string) (string, error) {
	s := a.String(name)
	if s == "" {
		return "", models.InvalidInput("tools.args", "%s is required", name)
	}
	return s, nil
}

// Int reads an integer argument, defaulting to def and bounded to [lo, hi].
func (a Args) Int(name string, def, lo, hi int) (int, error) {
	raw, ok := a[name]
	if !ok || raw == nil {
		return def, nil
	}
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, models.InvalidInput("tools.args", "%s must be an integer", name)
		}
		n = f
	default:
		return 0, models.InvalidInput("tools.args", "%s must be an integer", name)
	}
	if n != math.Trunc(n) {
		return 0, models.InvalidInput("tools.args", "%s must be an integer", name)
	}
	if int(n) < lo || int(n) > hi {
		return 0, models.InvalidInput("tools.args", "%s must be between %d and %d", name, lo, hi)
	}
	return int(n), nil
}

// Floats reads a required numeric array.
func (a Args) Floats(name string) ([]float64, error) {
	raw, ok := a[name].([]interface{})
	if !ok {
		if fs, ok := a[name].([]float64); ok {
			return fs, nil
		}
		return nil, models.InvalidInput("tools.args", "%s must be an array of numbers", name)
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, models.InvalidInput("tools.args", "%s[%d] is not a number", name, i)
		}
		out[i] = f
	}
	return out, nil
}

// Date reads a required YYYY-MM-DD argument.
func (a Args) Date(name string) (time.Time, error) {
	s, err := a.RequireString(name)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, models.InvalidInput("tools.args", "%s %q is not YYYY-MM-DD", name, s)
	}
	return t, nil
}

// Window reads start_date and end_date, requiring start <= end.
func (a Args) Window() (time.Time, time.Time, error) {
	start, err := a.Date("start_date")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := a.Date("end_date")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, models.InvalidInput("tools.args", "start_date must not be after end_date")
	}
	return start, end, nil
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
