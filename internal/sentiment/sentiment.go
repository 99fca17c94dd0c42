// Package sentiment summarises the sentiment of news in a symbol and date window.
package sentiment

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/logger"
)

// DefaultWindowLimit caps how many articles one aggregation reads unless
// sentiment.windowLimit is configured.
const DefaultWindowLimit = 100

// NewsSource lists news for a symbol published within [start, end], newest first.
type NewsSource interface {
	News(ctx context.Context, symbol string, start, end time.Time, limit int) ([]models.NewsArticle, error)
}

// Aggregator computes sentiment statistics from a NewsSource.
type Aggregator struct {
	news  NewsSource
	limit int
	log   *logger.Logger
}

func NewAggregator(news NewsSource, limit int, log *logger.Logger) *Aggregator {
	if limit <= 0 {
		limit = DefaultWindowLimit
	}
	return &Aggregator{news: news, limit: limit, log: log}
}

// Window is the news of one date window, capped at the aggregator's limit.
type Window struct {
	Articles []models.NewsArticle
	// Truncated is set when the source had more articles than the limit.
	Truncated bool
}

// Limit is the most articles one window holds.
func (a *Aggregator) Limit() int { return a.limit }

// FetchWindow returns the newest articles of the window, at most Limit of them.
// Source failures are ExternalService errors.
func (a *Aggregator) FetchWindow(ctx context.Context, symbol string, start, end time.Time) (Window, error) {
	items, err := a.news.News(ctx, symbol, start, end, a.limit+1)
	if err != nil {
		if models.KindOf(err) == models.KindInvalidInput {
			return Window{}, err
		}
		return Window{}, models.ExternalService("sentiment.Fetch", err)
	}
	w := Window{Articles: items}
	if len(items) > a.limit {
		w.Articles, w.Truncated = items[:a.limit], true
		a.log.Warn(fmt.Sprintf("News window for %s holds more than %d articles; aggregating the newest %d", symbol, a.limit, a.limit))
	}
	return w, nil
}

// Fetch returns the articles of the window without the truncation flag.
func (a *Aggregator) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.NewsArticle, error) {
	w, err := a.FetchWindow(ctx, symbol, start, end)
	return w.Articles, err
}

// Aggregate fetches the window and summarises it.
func (a *Aggregator) Aggregate(ctx context.Context, symbol string, start, end time.Time) (models.SentimentAggregate, error) {
	w, err := a.FetchWindow(ctx, symbol, start, end)
	if err != nil {
		return models.SentimentAggregate{}, err
	}
	agg := SummarizeWindow(symbol, start, end, w)
	if agg.Average != nil {
		a.log.Info(fmt.Sprintf("Sentiment aggregate for %s: %.3f over %d articles", symbol, *agg.Average, agg.Total))
	} else {
		a.log.Info(fmt.Sprintf("No news for %s between %s and %s", symbol, agg.StartDate, agg.EndDate))
	}
	return agg, nil
}

// Summarize counts items by label and averages their scores. An item without a valid
// label is counted under the label derived from its score; an item without any score
// contributes 0 to the average. With no items Average and Breakdown stay nil.
func Summarize(symbol string, start, end time.Time, items []models.NewsArticle) models.SentimentAggregate {
	agg := models.SentimentAggregate{
		Symbol:    symbol,
		StartDate: start.Format(models.DateLayout),
		EndDate:   end.Format(models.DateLayout),
		Total:     len(items),
	}
	if len(items) == 0 {
		return agg
	}

	var sum float64
	for _, it := range items {
		score, _ := it.Score()
		sum += score
		switch it.Label() {
		case models.SentimentPositive:
			agg.Positive++
		case models.SentimentNegative:
			agg.Negative++
		default:
			agg.Neutral++
		}
	}
	avg := round(sum/float64(agg.Total), 3)
	agg.Average = &avg

	total := float64(agg.Total)
	agg.Breakdown = &models.SentimentBreakdown{
		PositivePct: round(float64(agg.Positive)/total*100, 1),
		NegativePct: round(float64(agg.Negative)/total*100, 1),
		NeutralPct:  round(float64(agg.Neutral)/total*100, 1),
	}
	return agg
}

// SummarizeWindow is Summarize over w, carrying its truncation flag.
func SummarizeWindow(symbol string, start, end time.Time, w Window) models.SentimentAggregate {
	agg := Summarize(symbol, start, end, w.Articles)
	agg.Truncated = w.Truncated
	return agg
}

// Daily groups items by UTC publication date and averages each day's scores.
// Items without a timestamp are ignored. The result is sorted by date.
func Daily(items []models.NewsArticle) []models.DailySentiment {
	type acc struct {
		sum float64
		n   int
	}
	byDay := make(map[string]*acc)
	for _, it := range items {
		if it.PublishedAt.IsZero() {
			continue
		}
		day := it.PublishedAt.UTC().Format(models.DateLayout)
		score, _ := it.Score()
		d, ok := byDay[day]
		if !ok {
			d = &acc{}
			byDay[day] = d
		}
		d.sum += score
		d.n++
	}

	out := make([]models.DailySentiment, 0, len(byDay))
	for day, d := range byDay {
		out = append(out, models.DailySentiment{Date: day, Average: d.sum / float64(d.n), Articles: d.n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Filter keeps items with the given label. An empty label keeps everything.
func Filter(items []models.NewsArticle, label models.SentimentLabel) []models.NewsArticle {
	if label == "" {
		return items
	}
	out := make([]models.NewsArticle, 0, len(items))
	for _, it := range items {
		if it.Label() == label {
			out = append(out, it)
		}
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
