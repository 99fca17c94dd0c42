package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/circuitbreaker"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

var sampleBars = []models.PriceBar{
	{Date: "2024-01-03", Open: 99, High: 106, Low: 98, Close: 105, Volume: 3000},
	{Date: "2024-01-01", Open: 100, High: 103, Low: 99, Close: 102, Volume: 1000},
	{Date: "2024-01-02", Open: 102, High: 104, Low: 0, Close: 99, Volume: 2000},
}

func TestSummarize(t *testing.T) {
	s := Summarize("TCS", 7, sampleBars)
	assert.Equal(t, "TCS", s.Symbol)
	assert.Equal(t, 7, s.PeriodDays)
	assert.Equal(t, 100.0, s.OpenPrice)
	assert.Equal(t, 105.0, s.CurrentPrice)
	assert.Equal(t, 5.0, s.Change)
	assert.Equal(t, 5.0, s.ChangePercent)
	assert.Equal(t, 106.0, s.High)
	assert.Equal(t, 98.0, s.Low, "zero lows are ignored")
	assert.Equal(t, int64(2000), s.AvgVolume)
	assert.InDelta(t, 4.5, s.Volatility, 0.01)
	assert.Equal(t, "2024-01-03", s.LastUpdated)
	assert.Equal(t, 3, s.DataPoints)
}

func TestVolatilityEdgeCases(t *testing.T) {
	assert.Equal(t, 0.0, Volatility(nil))
	assert.Equal(t, 0.0, Volatility(sampleBars[:1]))
	flat := []models.PriceBar{{Close: 10}, {Close: 10}, {Close: 10}}
	assert.Equal(t, 0.0, Volatility(flat))
}

func TestWithChangesAndFilter(t *testing.T) {
	bars := WithChanges(SortBars(sampleBars))
	require.Len(t, bars, 3)
	assert.Equal(t, 2.0, bars[0].Change)
	assert.Equal(t, 2.0, bars[0].ChangePercent)
	assert.Equal(t, -3.0, bars[1].Change)
	assert.Equal(t, -2.94, bars[1].ChangePercent)
	assert.Equal(t, 6.06, bars[2].ChangePercent)
	assert.Equal(t, 0.0, sampleBars[0].Change, "input untouched")

	got := FilterRange(bars, day("2024-01-02"), day("2024-01-03"))
	require.Len(t, got, 2)
	assert.Equal(t, "2024-01-02", got[0].Date)
}

func TestAggregate(t *testing.T) {
	bars := SortBars(sampleBars)
	assert.Equal(t, bars, Aggregate(bars, 1))

	agg := Aggregate(bars, 2)
	require.Len(t, agg, 2)
	assert.Equal(t, "2024-01-02", agg[0].Date)
	assert.Equal(t, 100.0, agg[0].Open)
	assert.Equal(t, 99.0, agg[0].Close)
	assert.Equal(t, 104.0, agg[0].High)
	assert.Equal(t, 99.0, agg[0].Low)
	assert.Equal(t, int64(3000), agg[0].Volume)
	assert.Equal(t, -1.0, agg[0].ChangePercent)
	assert.Equal(t, "2024-01-03", agg[1].Date)
}

func TestWithinWindow(t *testing.T) {
	at := func(s string) models.Timestamp {
		ts, err := models.ParseTimestamp(s)
		require.NoError(t, err)
		return models.Timestamp{Time: ts}
	}
	articles := []models.NewsArticle{
		{ID: "a", PublishedAt: at("2024-01-02T10:00:00")},
		{ID: "b", PublishedAt: at("2024-01-07T23:00:00")},
		{ID: "c", PublishedAt: at("2024-01-08T00:00:00")},
		{ID: "d"},
		{ID: "e", PublishedAt: at("2024-01-05T00:00:00")},
	}
	got := WithinWindow(articles, day("2024-01-01"), day("2024-01-07"), 0)
	ids := make([]string, len(got))
	for i, a := range got {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{"b", "e", "a"}, ids)
	assert.Len(t, WithinWindow(articles, day("2024-01-01"), day("2024-01-07"), 1), 1)
}

func newBackend(t *testing.T, h http.HandlerFunc, breaker circuitbreaker.CircuitBreaker) *BackendClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewBackendClient(config.BackendConfig{
		BaseURL:      srv.URL + "/api",
		APIKey:       "k",
		Timeout:      "5s",
		NewsPageSize: 2,
		NewsMaxPages: 5,
	}, breaker, logger.Discard())
	c.now = func() time.Time { return day("2024-01-10") }
	return c
}

func pricesHandler(t *testing.T, days *string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		if r.URL.Path != "/api/stocks/prices/TCS" {
			http.NotFound(w, r)
			return
		}
		if days != nil {
			*days = r.URL.Query().Get("days")
		}
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"date": "2024-01-03T00:00:00", "open": 99, "high": 106, "low": 98, "close": 105, "volume": 3000.0},
			{"date": "2024-01-01", "open": 100, "high": 103, "low": 99, "close": 102, "volume": 1000},
			{"date": "2024-01-02", "open": 102, "high": 104, "low": 0, "close": 99, "volume": 2000},
		})
	}
}

func TestBackendStockSummary(t *testing.T) {
	var days string
	c := newBackend(t, pricesHandler(t, &days), nil)

	s, err := c.StockSummary(context.Background(), "tcs.ns", 7)
	require.NoError(t, err)
	assert.Equal(t, "7", days)
	assert.Equal(t, "TCS", s.Symbol)
	assert.Equal(t, 5.0, s.ChangePercent)
	assert.Equal(t, "2024-01-03", s.LastUpdated)

	_, err = c.StockSummary(context.Background(), " ", 7)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestBackendHistoricalPrices(t *testing.T) {
	var days string
	c := newBackend(t, pricesHandler(t, &days), nil)

	bars, err := c.HistoricalPrices(context.Background(), "TCS", day("2024-01-02"), day("2024-01-03"))
	require.NoError(t, err)
	assert.Equal(t, "9", days, "enough trailing days to reach the start date")
	require.Len(t, bars, 2)
	assert.Equal(t, "2024-01-02", bars[0].Date)
	assert.Equal(t, -3.0, bars[0].Change, "first bar is measured against its own open")
	assert.Equal(t, 6.06, bars[1].ChangePercent)
}

func TestBackendNoDataIsExternal(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}, nil)
	_, err := c.StockSummary(context.Background(), "TCS", 7)
	assert.ErrorIs(t, err, models.ErrExternalService)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestBackendNewsPaginates(t *testing.T) {
	var pages int32
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/news", r.URL.Path)
		assert.Equal(t, "TCS", r.URL.Query().Get("stock_symbol"))
		atomic.AddInt32(&pages, 1)
		var data []map[string]interface{}
		switch r.URL.Query().Get("page") {
		case "1":
			data = []map[string]interface{}{
				{"id": "n1", "title": "TCS slips", "published_at": "2024-01-03T08:00:00", "impact_score": -0.4},
				{"id": "n2", "title": "TCS order win", "published_at": "2024-01-05T08:00:00", "sentiment": "positive", "impact_score": 0.6},
			}
		case "2":
			data = []map[string]interface{}{
				{"id": "n3", "title": "Old news", "published_at": "2023-12-20T08:00:00"},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}, nil)

	got, err := c.News(context.Background(), "TCS", day("2024-01-01"), day("2024-01-07"), 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&pages))
	require.Len(t, got, 2)
	assert.Equal(t, "n2", got[0].ID)
	score, ok := got[1].Score()
	assert.True(t, ok)
	assert.Equal(t, -0.4, score)
}

type pageLog struct {
	mu    sync.Mutex
	pages []int
}

func (l *pageLog) add(p int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages = append(l.pages, p)
}

func (l *pageLog) get() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.pages...)
}

func newsServer(t *testing.T, pages map[int][]map[string]interface{}, requested *pageLog) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("start_date"))
		assert.Equal(t, "2024-01-07", r.URL.Query().Get("end_date"))
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		assert.NoError(t, err)
		requested.add(page)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": pages[page]})
	}
}

func article(id, published string) map[string]interface{} {
	return map[string]interface{}{"id": id, "title": id, "published_at": published}
}

func TestBackendNewsPagesPastNewerArticles(t *testing.T) {
	pages := map[int][]map[string]interface{}{}
	for p := 1; p <= 7; p++ {
		pages[p] = []map[string]interface{}{article(fmt.Sprintf("new%da", p), "2024-03-01T08:00:00"), article(fmt.Sprintf("new%db", p), "2024-03-01T07:00:00")}
	}
	pages[8] = []map[string]interface{}{article("in1", "2024-01-05T08:00:00"), article("in2", "2024-01-02T08:00:00")}
	pages[9] = []map[string]interface{}{article("in3", "2024-01-01T09:00:00"), article("old", "2023-12-28T08:00:00")}
	pages[10] = []map[string]interface{}{article("older", "2023-12-01T08:00:00"), article("oldest", "2023-11-01T08:00:00")}

	requested := &pageLog{}
	c := newBackend(t, newsServer(t, pages, requested), nil)
	c.maxPages = DefaultNewsMaxPages

	got, err := c.News(context.Background(), "TCS", day("2024-01-01"), day("2024-01-07"), 0)
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, a := range got {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{"in1", "in2", "in3"}, ids)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, requested.get(), "stops once a page reaches before start")
}

func TestBackendNewsStopsAtLimit(t *testing.T) {
	pages := map[int][]map[string]interface{}{
		1: {article("in1", "2024-01-06T08:00:00"), article("in2", "2024-01-05T08:00:00")},
		2: {article("in3", "2024-01-04T08:00:00"), article("in4", "2024-01-03T08:00:00")},
	}
	requested := &pageLog{}
	c := newBackend(t, newsServer(t, pages, requested), nil)

	got, err := c.News(context.Background(), "TCS", day("2024-01-01"), day("2024-01-07"), 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []int{1}, requested.get())
}

func TestBackendNewsUnsetPageCapUsesDefault(t *testing.T) {
	c := NewBackendClient(config.BackendConfig{BaseURL: "http://backend.local/api"}, nil, logger.Discard())
	assert.Equal(t, DefaultNewsMaxPages, c.maxPages)
}

func TestBackendServerErrorsTripBreaker(t *testing.T) {
	var calls int32
	breaker := circuitbreaker.New(circuitbreaker.Settings{FailureThreshold: 2, Timeout: time.Hour})
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, breaker)

	for i := 0; i < 3; i++ {
		_, err := c.StockSummary(context.Background(), "TCS", 7)
		assert.ErrorIs(t, err, models.ErrExternalService)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, circuitbreaker.Open, breaker.State())
}

func TestBackendClientErrorsDoNotTripBreaker(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.Settings{FailureThreshold: 1, Timeout: time.Hour})
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, breaker)

	_, err := c.StockSummary(context.Background(), "WIPRO", 7)
	assert.ErrorIs(t, err, models.ErrExternalService)
	assert.Equal(t, circuitbreaker.Closed, breaker.State())
}

func TestYahooSource(t *testing.T) {
	y := NewYahooSource(models.ExchangeSuffix, logger.Discard())
	y.now = func() time.Time { return day("2024-01-04") }
	var requested string
	y.fetch = func(symbol string, start, end time.Time) ([]models.PriceBar, error) {
		requested = symbol
		return sampleBars, nil
	}

	s, err := y.StockSummary(context.Background(), "tcs", 7)
	require.NoError(t, err)
	assert.Equal(t, "TCS.NS", requested)
	assert.Equal(t, "TCS", s.Symbol)
	assert.Equal(t, 3, s.DataPoints)

	_, err = y.HistoricalPrices(context.Background(), "^NSEI", day("2024-01-01"), day("2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, "^NSEI", requested)

	y.fetch = func(string, time.Time, time.Time) ([]models.PriceBar, error) { return nil, errors.New("rate limited") }
	_, err = y.StockSummary(context.Background(), "TCS", 7)
	assert.ErrorIs(t, err, models.ErrExternalService)
}
