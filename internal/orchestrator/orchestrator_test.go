package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/sentiment"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePrices struct {
	summaryErr error
	bars       []models.PriceBar
	barsErr    error
}

func (f *fakePrices) StockSummary(_ context.Context, symbol string, days int) (*models.StockSummary, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return &models.StockSummary{Symbol: symbol, PeriodDays: days, ChangePercent: -3.1}, nil
}

func (f *fakePrices) HistoricalPrices(context.Context, string, time.Time, time.Time) ([]models.PriceBar, error) {
	return f.bars, f.barsErr
}

type fakeNews struct {
	items     []models.NewsArticle
	truncated bool
	err       error
	panic     bool
}

func (f *fakeNews) FetchWindow(context.Context, string, time.Time, time.Time) (sentiment.Window, error) {
	if f.panic {
		panic("nil map")
	}
	return sentiment.Window{Articles: f.items, Truncated: f.truncated}, f.err
}

type fakeEvidence struct {
	mu    sync.Mutex
	query models.EvidenceQuery
	items []models.EvidenceItem
	err   error
	delay time.Duration
}

func (f *fakeEvidence) Retrieve(_ context.Context, q models.EvidenceQuery) ([]models.EvidenceItem, error) {
	f.mu.Lock()
	f.query = q
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.items, f.err
}

func article(id, published string, score float64) models.NewsArticle {
	ts, err := models.ParseTimestamp(published)
	if err != nil {
		panic(err)
	}
	return models.NewsArticle{ID: id, Title: "headline " + id, PublishedAt: models.Timestamp{Time: ts}, SentimentScore: &score}
}

func tcsBars() []models.PriceBar {
	return []models.PriceBar{
		{Date: "2024-01-01", ChangePercent: 1.2},
		{Date: "2024-01-02", ChangePercent: -0.8},
		{Date: "2024-01-03", ChangePercent: -2.1},
		{Date: "2024-01-04", ChangePercent: 0.4},
		{Date: "2024-01-05", ChangePercent: 1.9},
	}
}

func tcsNews() []models.NewsArticle {
	return []models.NewsArticle{
		article("n1", "2024-01-01T09:00:00", 0.5),
		article("n2", "2024-01-02T09:00:00", -0.2),
		article("n3", "2024-01-03T09:00:00", -0.6),
		article("n4", "2024-01-03T15:00:00", -0.4),
		article("n5", "2024-01-05T09:00:00", 0.7),
	}
}

func newOrchestrator(p *fakePrices, n *fakeNews, e *fakeEvidence, opts Options) *Orchestrator {
	o := New(p, n, e, opts, logger.Discard())
	o.now = func() time.Time { return time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC) }
	return o
}

func TestExplainStockSummaryFailureLeavesOtherResults(t *testing.T) {
	p := &fakePrices{summaryErr: models.ExternalService("backend", errors.New("no price rows")), bars: tcsBars()}
	e := &fakeEvidence{items: []models.EvidenceItem{{Rank: 1, ID: "n3", Similarity: 0.81}}}
	o := newOrchestrator(p, &fakeNews{items: tcsNews()}, e, Options{})

	res, err := o.Explain(context.Background(), "TCS", "2024-01-01", "2024-01-07")
	require.NoError(t, err)

	assert.Nil(t, res.StockSummary)
	assert.Equal(t, models.StatusError, res.Status[models.StepStockSummary])
	assert.Equal(t, models.StatusOK, res.Status[models.StepSentimentAggregate])
	assert.Equal(t, models.StatusOK, res.Status[models.StepRAGEvidence])
	assert.NotContains(t, res.Status, models.StepCorrelation)
	assert.Nil(t, res.Correlation)
	assert.Contains(t, res.Errors[models.StepStockSummary], "no price rows")

	require.NotNil(t, res.SentimentAggregate)
	assert.Equal(t, 5, res.SentimentAggregate.Total)
	assert.Len(t, res.Evidence, 1)
	assert.Equal(t, models.Period{StartDate: "2024-01-01", EndDate: "2024-01-07", Days: 6}, res.Period)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "stock_summary")
	assert.Nil(t, decoded["stock_summary"])
	assert.Nil(t, decoded["correlation"])
}

func TestExplainAllBranchesSucceed(t *testing.T) {
	e := &fakeEvidence{}
	o := newOrchestrator(&fakePrices{bars: tcsBars()}, &fakeNews{items: tcsNews()}, e, Options{})

	res, err := o.Explain(context.Background(), " tcs.ns ", "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, "TCS", res.Symbol)
	for _, step := range []string{
		models.StepStockSummary, models.StepHistoricalPrices, models.StepSentimentAggregate,
		models.StepRAGEvidence, models.StepCorrelation,
	} {
		assert.Equal(t, models.StatusOK, res.Status[step], step)
	}
	require.NotNil(t, res.Correlation)
	assert.Equal(t, 4, res.Correlation.DataPoints, "days without news are skipped")
	assert.Greater(t, res.Correlation.Coefficient, 0.9)
	assert.Nil(t, res.Errors)
	assert.NotNil(t, res.Evidence, "evidence is never null")
	assert.Equal(t, time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC), res.GeneratedAt)

	assert.Equal(t, "reasons for TCS price change drop decline fall movement", e.query.QueryText)
	assert.Equal(t, DefaultEvidenceTopK, e.query.TopK)
	assert.Equal(t, "TCS", e.query.Symbol)
}

func TestExplainCorrelationFailureIsRecorded(t *testing.T) {
	flat := []models.NewsArticle{
		article("n1", "2024-01-01T09:00:00", 0.3),
		article("n2", "2024-01-02T09:00:00", 0.3),
		article("n3", "2024-01-03T09:00:00", 0.3),
	}
	o := newOrchestrator(&fakePrices{bars: tcsBars()}, &fakeNews{items: flat}, &fakeEvidence{}, Options{})

	res, err := o.Explain(context.Background(), "TCS", "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, res.Status[models.StepCorrelation])
	assert.Nil(t, res.Correlation)
	assert.Contains(t, res.Errors[models.StepCorrelation], "zero variance")
}

func TestExplainSkipsCorrelationWithoutEnoughData(t *testing.T) {
	cases := map[string]*fakeNews{
		"no news":          {},
		"two aligned days": {items: tcsNews()[:2]},
	}
	for name, news := range cases {
		t.Run(name, func(t *testing.T) {
			o := newOrchestrator(&fakePrices{bars: tcsBars()}, news, &fakeEvidence{}, Options{})
			res, err := o.Explain(context.Background(), "TCS", "2024-01-01", "2024-01-07")
			require.NoError(t, err)
			assert.Equal(t, models.StatusOK, res.Status[models.StepSentimentAggregate])
			assert.NotContains(t, res.Status, models.StepCorrelation)
			assert.Nil(t, res.Correlation)
		})
	}
}

func TestExplainSlowBranchTimesOut(t *testing.T) {
	e := &fakeEvidence{delay: time.Second}
	o := newOrchestrator(&fakePrices{bars: tcsBars()}, &fakeNews{items: tcsNews()}, e, Options{SubCallTimeout: 50 * time.Millisecond})

	began := time.Now()
	res, err := o.Explain(context.Background(), "TCS", "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	assert.Less(t, time.Since(began), 500*time.Millisecond)
	assert.Equal(t, models.StatusError, res.Status[models.StepRAGEvidence])
	assert.Equal(t, models.StatusOK, res.Status[models.StepStockSummary])
	assert.NotNil(t, res.Evidence)
	assert.Empty(t, res.Evidence)
}

func TestExplainRecoversFromPanickingBranch(t *testing.T) {
	o := newOrchestrator(&fakePrices{bars: tcsBars()}, &fakeNews{panic: true}, &fakeEvidence{}, Options{})

	res, err := o.Explain(context.Background(), "TCS", "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, res.Status[models.StepSentimentAggregate])
	assert.Nil(t, res.SentimentAggregate)
	assert.Contains(t, res.Errors[models.StepSentimentAggregate], "panic")
	assert.Equal(t, models.StatusOK, res.Status[models.StepStockSummary])
}

func TestExplainTruncatesHistoricalPrices(t *testing.T) {
	o := newOrchestrator(&fakePrices{bars: tcsBars()}, &fakeNews{items: tcsNews()}, &fakeEvidence{}, Options{HistoricalPriceLimit: 2})

	res, err := o.Explain(context.Background(), "TCS", "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	assert.Len(t, res.HistoricalPrices, 2)
	require.NotNil(t, res.Correlation)
	assert.Equal(t, 4, res.Correlation.DataPoints, "correlation uses the full history")
}

func TestExplainValidatesInput(t *testing.T) {
	o := newOrchestrator(&fakePrices{}, &fakeNews{}, &fakeEvidence{}, Options{})
	cases := []struct{ symbol, start, end string }{
		{"", "2024-01-01", "2024-01-07"},
		{"TCS", "2024/01/01", "2024-01-07"},
		{"TCS", "2024-01-01", "tomorrow"},
		{"TCS", "2024-01-07", "2024-01-01"},
		{"TCS", "2024-01-01", "2024-01-01"},
		{"TCS", "2022-01-01", "2024-01-01"},
	}
	for _, c := range cases {
		res, err := o.Explain(context.Background(), c.symbol, c.start, c.end)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, models.ErrInvalidInput, "%+v", c)
	}
}

func TestExplainCancelledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := newOrchestrator(&fakePrices{bars: tcsBars()}, &fakeNews{items: tcsNews()}, &fakeEvidence{}, Options{})

	res, err := o.Explain(ctx, "TCS", "2024-01-01", "2024-01-07")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, models.ErrExternalService)
	assert.True(t, models.IsTimeout(err))
}

func TestAlign(t *testing.T) {
	prices, scores, dates := Align(tcsBars(), []models.DailySentiment{
		{Date: "2024-01-05", Average: 0.7},
		{Date: "2024-01-02", Average: -0.2},
		{Date: "2024-01-06", Average: 0.1},
	})
	assert.Equal(t, []float64{-0.8, 1.9}, prices)
	assert.Equal(t, []float64{-0.2, 0.7}, scores)
	assert.Equal(t, []string{"2024-01-02", "2024-01-05"}, dates)
}

func TestExplainCarriesTruncatedNewsWindow(t *testing.T) {
	o := newOrchestrator(&fakePrices{bars: tcsBars()}, &fakeNews{items: tcsNews(), truncated: true}, &fakeEvidence{}, Options{})

	res, err := o.Explain(context.Background(), "TCS", "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	require.NotNil(t, res.SentimentAggregate)
	assert.True(t, res.SentimentAggregate.Truncated)
	assert.Equal(t, models.StatusOK, res.Status[models.StepSentimentAggregate])
}
