// Package correlation measures the linear relationship between two numeric series.
package correlation

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rishav0123/sentimatix/internal/models"
)

// Strength breakpoints on |r|. Lower bounds are inclusive.
const (
	VeryStrongMin = 0.7
	StrongMin     = 0.5
	ModerateMin   = 0.3
	WeakMin       = 0.1
)

// DivergenceThreshold is the magnitude both series must exceed, with opposite
// signs, for a point to count as a divergence.
const DivergenceThreshold = 1.5

const (
	DirectionPositive = "positive"
	DirectionNegative = "negative"
	DirectionNone     = "none"

	LikelySignificant = "LIKELY_SIGNIFICANT"
	NotSignificant    = "NOT_SIGNIFICANT"

	DivergenceBullishPrice = "bullish_price_bearish_sentiment"
	DivergenceBearishPrice = "bearish_price_bullish_sentiment"
)

var recommendations = map[models.CorrelationStrength]string{
	models.StrengthVeryStrong: "Monitor sentiment closely for trading signals",
	models.StrengthStrong:     "Monitor sentiment closely for trading signals",
	models.StrengthModerate:   "Use sentiment as one of multiple indicators",
	models.StrengthWeak:       "Consider other fundamental and technical factors",
	models.StrengthVeryWeak:   "Consider other fundamental and technical factors",
}

// StrengthFor buckets a coefficient by magnitude.
func StrengthFor(r float64) models.CorrelationStrength {
	a := math.Abs(r)
	switch {
	case a >= VeryStrongMin:
		return models.StrengthVeryStrong
	case a >= StrongMin:
		return models.StrengthStrong
	case a >= ModerateMin:
		return models.StrengthModerate
	case a >= WeakMin:
		return models.StrengthWeak
	default:
		return models.StrengthVeryWeak
	}
}

// Recommendation returns the fixed advice for a strength bucket.
func Recommendation(s models.CorrelationStrength) string {
	return recommendations[s]
}

// Pearson returns the Pearson correlation coefficient of a and b, clamped to [-1, 1].
// The series must have equal length, at least two points, finite values and non-zero variance.
func Pearson(a, b []float64) (float64, error) {
	const op = "correlation.Pearson"
	if len(a) != len(b) {
		return 0, models.InvalidInput(op, "series lengths differ: %d and %d", len(a), len(b))
	}
	if len(a) < 2 {
		return 0, models.InvalidInput(op, "need at least 2 data points, got %d", len(a))
	}
	for i := range a {
		if !finite(a[i]) || !finite(b[i]) {
			return 0, models.InvalidInput(op, "non-finite value at index %d", i)
		}
	}

	if constant(a) || constant(b) {
		return 0, models.InvalidInput(op, "series has zero variance")
	}

	n := float64(len(a))
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= n
	meanB /= n

	var cov, varA, varB float64
	for i := range a {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, models.InvalidInput(op, "series has zero variance")
	}
	r := cov / math.Sqrt(varA*varB)
	return math.Max(-1, math.Min(1, r)), nil
}

// Correlate computes the coefficient of a and b and its qualitative reading.
// Empty names default to "Series A" and "Series B".
func Correlate(a, b []float64, nameA, nameB string) (*models.CorrelationResult, error) {
	r, err := Pearson(a, b)
	if err != nil {
		return nil, err
	}
	if nameA == "" {
		nameA = "Series A"
	}
	if nameB == "" {
		nameB = "Series B"
	}
	strength := StrengthFor(r)
	return &models.CorrelationResult{
		SeriesAName:    nameA,
		SeriesBName:    nameB,
		Coefficient:    round(r, 3),
		RSquared:       round(r*r, 3),
		Direction:      direction(r),
		Strength:       strength,
		DataPoints:     len(a),
		Interpretation: interpret(r, strength, nameA, nameB),
		Recommendation: Recommendation(strength),
		Significance:   significance(r, len(a)),
	}, nil
}

// CorrelateSentimentPrice correlates daily price change percentages with sentiment
// scores and flags divergent points. dates, when given, labels each point and must
// match the series length.
func CorrelateSentimentPrice(priceChanges, sentimentScores []float64, symbol string, dates []string) (*models.CorrelationResult, error) {
	if dates != nil && len(dates) != len(priceChanges) {
		return nil, models.InvalidInput("correlation.CorrelateSentimentPrice",
			"got %d dates for %d points", len(dates), len(priceChanges))
	}
	if symbol == "" {
		symbol = "Stock"
	}
	res, err := Correlate(priceChanges, sentimentScores, symbol+" Price Change %", symbol+" Sentiment Score")
	if err != nil {
		return nil, err
	}

	switch res.Strength {
	case models.StrengthVeryStrong, models.StrengthStrong:
		res.ActionableInsight = fmt.Sprintf("Strong %s correlation suggests sentiment is a reliable indicator for %s", res.Direction, symbol)
	case models.StrengthModerate:
		res.ActionableInsight = fmt.Sprintf("Moderate %s correlation - sentiment has some predictive value", res.Direction)
	default:
		res.ActionableInsight = "Weak correlation - sentiment alone may not predict price movements"
	}
	res.Divergences = Divergences(priceChanges, sentimentScores, dates)
	return res, nil
}

// Divergences lists points where one series is above DivergenceThreshold and the
// other below its negative.
func Divergences(priceChanges, sentimentScores []float64, dates []string) []models.Divergence {
	var out []models.Divergence
	for i := 0; i < len(priceChanges) && i < len(sentimentScores); i++ {
		p, s := priceChanges[i], sentimentScores[i]
		var kind string
		switch {
		case p > DivergenceThreshold && s < -DivergenceThreshold:
			kind = DivergenceBullishPrice
		case p < -DivergenceThreshold && s > DivergenceThreshold:
			kind = DivergenceBearishPrice
		default:
			continue
		}
		d := models.Divergence{Index: i, Type: kind, PriceChange: round(p, 2), Sentiment: round(s, 2)}
		if i < len(dates) {
			d.Date = dates[i]
		}
		out = append(out, d)
	}
	return out
}

func direction(r float64) string {
	switch {
	case r > 0:
		return DirectionPositive
	case r < 0:
		return DirectionNegative
	default:
		return DirectionNone
	}
}

func interpret(r float64, s models.CorrelationStrength, nameA, nameB string) string {
	dir := direction(r)
	switch s {
	case models.StrengthVeryStrong, models.StrengthStrong:
		tendency := "increase"
		if r < 0 {
			tendency = "decrease"
		}
		label := strings.ToLower(strings.ReplaceAll(string(s), "_", " "))
		return fmt.Sprintf("There is a %s %s relationship between %s and %s. When one increases, the other tends to %s.",
			label, dir, nameA, nameB, tendency)
	case models.StrengthModerate:
		how := "together"
		if r < 0 {
			how = "in opposite directions"
		}
		return fmt.Sprintf("There is a moderate %s relationship. %s and %s show some tendency to move %s.", dir, nameA, nameB, how)
	case models.StrengthWeak:
		return fmt.Sprintf("There is a weak %s relationship between %s and %s. Most of their movement is unrelated.", dir, nameA, nameB)
	default:
		return fmt.Sprintf("There is little to no clear relationship between %s and %s. They appear to move independently.", nameA, nameB)
	}
}

// significance is a rule of thumb: smaller samples need a stronger coefficient.
func significance(r float64, n int) string {
	threshold := 0.3
	switch {
	case n < 10:
		threshold = 0.6
	case n < 30:
		threshold = 0.4
	}
	if math.Abs(r) >= threshold {
		return LikelySignificant
	}
	return NotSignificant
}

// constant reports whether every value equals the first. Rounding in the mean
// leaves a tiny non-zero variance for series like {0.1, 0.1, 0.1}.
func constant(s []float64) bool {
	for _, v := range s[1:] {
		if v != s[0] {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
