package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/sentiment"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExplainer struct{ symbol, start, end string }

func (s *stubExplainer) Explain(_ context.Context, symbol, start, end string) (*models.ExplanationResult, error) {
	s.symbol, s.start, s.end = symbol, start, end
	return &models.ExplanationResult{Symbol: symbol, Status: map[string]string{}}, nil
}

type stubPrices struct{ days int }

func (s *stubPrices) StockSummary(_ context.Context, symbol string, days int) (*models.StockSummary, error) {
	s.days = days
	return &models.StockSummary{Symbol: symbol, PeriodDays: days}, nil
}

func (s *stubPrices) HistoricalPrices(context.Context, string, time.Time, time.Time) ([]models.PriceBar, error) {
	return []models.PriceBar{
		{Date: "2024-01-01", Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100},
		{Date: "2024-01-02", Open: 10.5, High: 12, Low: 10, Close: 11, Volume: 200},
		{Date: "2024-01-03", Open: 11, High: 11, Low: 8, Close: 9, Volume: 300},
	}, nil
}

type stubNews struct{ err error }

func score(v float64) *float64 { return &v }

func (s stubNews) FetchWindow(ctx context.Context, symbol string, start, end time.Time) (sentiment.Window, error) {
	items, err := s.Fetch(ctx, symbol, start, end)
	return sentiment.Window{Articles: items}, err
}

func (s stubNews) Fetch(context.Context, string, time.Time, time.Time) ([]models.NewsArticle, error) {
	if s.err != nil {
		return nil, s.err
	}
	at := func(d string) models.Timestamp {
		t, _ := time.Parse(models.DateLayout, d)
		return models.Timestamp{Time: t}
	}
	long := make([]rune, 400)
	for i := range long {
		long[i] = 'x'
	}
	return []models.NewsArticle{
		{ID: "old", Title: "old", PublishedAt: at("2024-01-01"), SentimentScore: score(0.4)},
		{ID: "new", Title: "new", Content: string(long), PublishedAt: at("2024-01-05"), ImpactScore: score(-0.3)},
		{ID: "mid", Title: "mid", PublishedAt: at("2024-01-03"), SentimentScore: score(0.01)},
	}, nil
}

type stubRetriever struct{ q models.EvidenceQuery }

func (s *stubRetriever) Retrieve(_ context.Context, q models.EvidenceQuery) ([]models.EvidenceItem, error) {
	s.q = q
	return []models.EvidenceItem{}, nil
}

func (s *stubRetriever) Stats(context.Context) (models.RAGStats, error) {
	return models.RAGStats{Status: "operational", TotalEmbeddings: 3}, nil
}

func newToolset(news stubNews) (*Toolset, *stubExplainer, *stubPrices, *stubRetriever) {
	e, p, r := &stubExplainer{}, &stubPrices{}, &stubRetriever{}
	return NewToolset(e, p, news, r, logger.Discard()), e, p, r
}

func window() Args {
	return Args{"symbol": "TCS", "start_date": "2024-01-01", "end_date": "2024-01-07"}
}

func TestToolTable(t *testing.T) {
	ts, _, _, _ := newToolset(stubNews{})
	names := make([]string, 0)
	for _, tool := range ts.Tools() {
		names = append(names, tool.Spec.Name)
		assert.NotEmpty(t, tool.Spec.Description)
	}
	assert.Equal(t, []string{
		"explain_price_change", "get_stock_summary", "get_historical_prices",
		"get_news_sentiment", "get_sentiment_aggregate", "get_rag_evidence",
		"get_rag_stats", "calculate_correlation", "calculate_sentiment_price_correlation",
	}, names)
	assert.Equal(t, map[string]int{"orchestrator": 1, "stock_data": 2, "news_sentiment": 2, "rag": 2, "correlation": 2}, ts.Categories())
}

func TestCallUnknownTool(t *testing.T) {
	ts, _, _, _ := newToolset(stubNews{})
	_, err := ts.Call(context.Background(), "delete_everything", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Equal(t, int64(0), ts.Calls())
}

func TestExplainAndSummaryTools(t *testing.T) {
	ts, e, p, _ := newToolset(stubNews{})
	ctx := context.Background()

	_, err := ts.Call(ctx, "explain_price_change", window())
	require.NoError(t, err)
	assert.Equal(t, "TCS", e.symbol)
	assert.Equal(t, "2024-01-07", e.end)

	_, err = ts.Call(ctx, "get_stock_summary", Args{"symbol": "TCS"})
	require.NoError(t, err)
	assert.Equal(t, 7, p.days)

	_, err = ts.Call(ctx, "get_stock_summary", Args{"symbol": "TCS", "period_days": 30.0})
	require.NoError(t, err)
	assert.Equal(t, 30, p.days)

	for _, bad := range []interface{}{0.0, 400.0, 2.5, "many"} {
		_, err = ts.Call(ctx, "get_stock_summary", Args{"symbol": "TCS", "period_days": bad})
		assert.ErrorIs(t, err, models.ErrInvalidInput, "%v", bad)
	}
	_, err = ts.Call(ctx, "get_stock_summary", Args{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, int64(8), ts.Calls())
}

func TestHistoricalPricesAggregation(t *testing.T) {
	ts, _, _, _ := newToolset(stubNews{})
	args := window()
	args["aggregation_period"] = 2.0
	out, err := ts.Call(context.Background(), "get_historical_prices", args)
	require.NoError(t, err)
	bars := out.([]models.PriceBar)
	require.Len(t, bars, 2)
	assert.Equal(t, 12.0, bars[0].High)
	assert.Equal(t, int64(300), bars[0].Volume)

	args["end_date"] = "2023-12-31"
	_, err = ts.Call(context.Background(), "get_historical_prices", args)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestNewsSentimentTool(t *testing.T) {
	ts, _, _, _ := newToolset(stubNews{})
	ctx := context.Background()

	out, err := ts.Call(ctx, "get_news_sentiment", window())
	require.NoError(t, err)
	items := out.([]NewsItem)
	require.Len(t, items, 3)
	assert.Equal(t, "new", items[0].ID)
	assert.Equal(t, -0.3, items[0].SentimentScore)
	assert.Equal(t, models.SentimentNegative, items[0].Sentiment)
	assert.Len(t, []rune(items[0].Summary), NewsSummaryLimit)

	args := window()
	args["sentiment_filter"] = "neutral"
	args["top_n"] = 1.0
	out, err = ts.Call(ctx, "get_news_sentiment", args)
	require.NoError(t, err)
	items = out.([]NewsItem)
	require.Len(t, items, 1)
	assert.Equal(t, "mid", items[0].ID)

	args["sentiment_filter"] = "bullish"
	_, err = ts.Call(ctx, "get_news_sentiment", args)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestSentimentAggregateTool(t *testing.T) {
	ts, _, _, _ := newToolset(stubNews{})
	out, err := ts.Call(context.Background(), "get_sentiment_aggregate", window())
	require.NoError(t, err)
	agg := out.(models.SentimentAggregate)
	assert.Equal(t, 3, agg.Total)
	assert.Equal(t, 1, agg.Positive)

	failing, _, _, _ := newToolset(stubNews{err: models.ExternalService("news", errors.New("down"))})
	_, err = failing.Call(context.Background(), "get_sentiment_aggregate", window())
	assert.ErrorIs(t, err, models.ErrExternalService)
}

func TestRagTools(t *testing.T) {
	ts, _, _, r := newToolset(stubNews{})
	args := window()
	args["query_text"] = "why did it fall"
	_, err := ts.Call(context.Background(), "get_rag_evidence", args)
	require.NoError(t, err)
	assert.Equal(t, 6, r.q.TopK)
	assert.Equal(t, "why did it fall", r.q.QueryText)

	delete(args, "query_text")
	_, err = ts.Call(context.Background(), "get_rag_evidence", args)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	out, err := ts.Call(context.Background(), "get_rag_stats", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, out.(models.RAGStats).TotalEmbeddings)
}

func TestCorrelationTools(t *testing.T) {
	ts, _, _, _ := newToolset(stubNews{})
	ctx := context.Background()

	out, err := ts.Call(ctx, "calculate_correlation", Args{
		"series_a": []interface{}{1.0, 2.0, 3.0},
		"series_b": []interface{}{2.0, 4.0, 6.0},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.(*models.CorrelationResult).Coefficient)

	_, err = ts.Call(ctx, "calculate_correlation", Args{
		"series_a": []interface{}{1.0, 1.0, 1.0},
		"series_b": []interface{}{2.0, 4.0, 6.0},
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = ts.Call(ctx, "calculate_correlation", Args{"series_a": "1,2,3", "series_b": []interface{}{1.0}})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	out, err = ts.Call(ctx, "calculate_sentiment_price_correlation", Args{
		"price_changes":    []interface{}{1.0, -2.0, 3.0},
		"sentiment_scores": []interface{}{0.2, -0.1, 0.5},
		"symbol":           "tcs",
	})
	require.NoError(t, err)
	assert.Equal(t, "TCS Price Change %", out.(*models.CorrelationResult).SeriesAName)
}

func TestToolResult(t *testing.T) {
	res, err := ToolResult(map[string]int{"n": 1}, nil)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, `{"n":1}`, res.Content[0].(mcp.TextContent).Text)

	res, err = ToolResult(nil, models.InvalidInput("op", "bad symbol"))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].(mcp.TextContent).Text, "invalid_input")
}
