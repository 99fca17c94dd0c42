// Package market provides stock prices and news from the backend REST API,
// Yahoo Finance or the relational store.
package market

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/shopspring/decimal"
)

// ErrNoData is wrapped when an upstream returns no bars for a symbol.
var ErrNoData = errors.New("no price data")

// PriceSource serves daily price bars.
type PriceSource interface {
	// StockSummary condenses the last periodDays calendar days of bars.
	StockSummary(ctx context.Context, symbol string, periodDays int) (*models.StockSummary, error)
	// HistoricalPrices returns bars dated within [start, end], oldest first.
	HistoricalPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error)
}

// NewsSource serves news articles for a symbol. Results are newest first.
type NewsSource interface {
	News(ctx context.Context, symbol string, start, end time.Time, limit int) ([]models.NewsArticle, error)
}

// Summarize computes headline metrics over bars, which must be non-empty.
// Money values go through decimal so change and change_percent round cleanly.
func Summarize(symbol string, periodDays int, bars []models.PriceBar) *models.StockSummary {
	bars = SortBars(bars)
	first, last := bars[0], bars[len(bars)-1]

	open := decimal.NewFromFloat(first.Open)
	closing := decimal.NewFromFloat(last.Close)
	change := closing.Sub(open)
	changePct := decimal.Zero
	if !open.IsZero() {
		changePct = change.Div(open).Mul(decimal.NewFromInt(100))
	}

	high := 0.0
	low := 0.0
	var volume int64
	for _, b := range bars {
		high = math.Max(high, b.High)
		if b.Low > 0 && (low == 0 || b.Low < low) {
			low = b.Low
		}
		volume += b.Volume
	}

	return &models.StockSummary{
		Symbol:        symbol,
		PeriodDays:    periodDays,
		CurrentPrice:  last.Close,
		OpenPrice:     first.Open,
		Change:        change.Round(2).InexactFloat64(),
		ChangePercent: changePct.Round(2).InexactFloat64(),
		High:          round2(high),
		Low:           round2(low),
		AvgVolume:     volume / int64(len(bars)),
		Volatility:    Volatility(bars),
		LastUpdated:   last.Date,
		DataPoints:    len(bars),
	}
}

// Volatility is the population standard deviation of close-to-close returns,
// in percent, rounded to 2 places. Bars with a non-positive previous close are skipped.
func Volatility(bars []models.PriceBar) float64 {
	if len(bars) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev > 0 {
			returns = append(returns, (bars[i].Close-prev)/prev)
		}
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return round2(math.Sqrt(variance) * 100)
}

// WithChanges fills Change and ChangePercent against the previous close.
// The first bar is measured against its own open.
func WithChanges(bars []models.PriceBar) []models.PriceBar {
	out := make([]models.PriceBar, len(bars))
	copy(out, bars)
	for i := range out {
		ref := out[i].Open
		if i > 0 {
			ref = out[i-1].Close
		}
		out[i].Change, out[i].ChangePercent = changeFrom(ref, out[i].Close)
	}
	return out
}

func changeFrom(ref, value float64) (float64, float64) {
	r := decimal.NewFromFloat(ref)
	diff := decimal.NewFromFloat(value).Sub(r)
	pct := decimal.Zero
	if !r.IsZero() {
		pct = diff.Div(r).Mul(decimal.NewFromInt(100))
	}
	return diff.Round(2).InexactFloat64(), pct.Round(2).InexactFloat64()
}

// FilterRange keeps bars whose date falls within [start, end] by calendar day.
func FilterRange(bars []models.PriceBar, start, end time.Time) []models.PriceBar {
	from, to := start.UTC().Format(models.DateLayout), end.UTC().Format(models.DateLayout)
	out := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		if b.Date >= from && b.Date <= to {
			out = append(out, b)
		}
	}
	return out
}

// Aggregate folds consecutive runs of period bars into one bar dated at the
// run's last day. A period of 1 or less returns bars unchanged.
func Aggregate(bars []models.PriceBar, period int) []models.PriceBar {
	if period <= 1 || len(bars) == 0 {
		return bars
	}
	out := make([]models.PriceBar, 0, (len(bars)+period-1)/period)
	for i := 0; i < len(bars); i += period {
		end := i + period
		if end > len(bars) {
			end = len(bars)
		}
		chunk := bars[i:end]
		agg := models.PriceBar{
			Date:  chunk[len(chunk)-1].Date,
			Open:  chunk[0].Open,
			Close: chunk[len(chunk)-1].Close,
		}
		for _, b := range chunk {
			agg.High = math.Max(agg.High, b.High)
			if b.Low > 0 && (agg.Low == 0 || b.Low < agg.Low) {
				agg.Low = b.Low
			}
			agg.Volume += b.Volume
		}
		agg.Change, agg.ChangePercent = changeFrom(agg.Open, agg.Close)
		out = append(out, agg)
	}
	return out
}

// SortBars returns bars ordered by date, oldest first, without duplicate dates.
func SortBars(bars []models.PriceBar) []models.PriceBar {
	out := make([]models.PriceBar, 0, len(bars))
	seen := make(map[string]struct{}, len(bars))
	for _, b := range bars {
		if _, dup := seen[b.Date]; dup {
			continue
		}
		seen[b.Date] = struct{}{}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// WithinWindow keeps articles published on a calendar day within [start, end],
// newest first, truncated to limit when limit > 0.
func WithinWindow(articles []models.NewsArticle, start, end time.Time, limit int) []models.NewsArticle {
	from, to := start.UTC().Format(models.DateLayout), end.UTC().Format(models.DateLayout)
	out := make([]models.NewsArticle, 0, len(articles))
	for _, a := range articles {
		if a.PublishedAt.IsZero() {
			continue
		}
		d := a.PublishedAt.UTC().Format(models.DateLayout)
		if d >= from && d <= to {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt.Time) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DaysBetween counts whole calendar days from start to end.
func DaysBetween(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / 24)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
