// Package mcp exposes the analysis operations as named tools, served over the
// Model Context Protocol and over the HTTP /call endpoint.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Rishav0123/sentimatix/internal/correlation"
	"github.com/Rishav0123/sentimatix/internal/market"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/sentiment"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/mark3labs/mcp-go/mcp"
)

// ErrUnknownTool is returned by Call for names not in the table.
var ErrUnknownTool = errors.New("tool not found")

// NewsSummaryLimit caps the summary of a news item, in runes.
const NewsSummaryLimit = 300

type Explainer interface {
	Explain(ctx context.Context, symbol, startDate, endDate string) (*models.ExplanationResult, error)
}

type NewsFetcher interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.NewsArticle, error)
	FetchWindow(ctx context.Context, symbol string, start, end time.Time) (sentiment.Window, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, q models.EvidenceQuery) ([]models.EvidenceItem, error)
	Stats(ctx context.Context) (models.RAGStats, error)
}

// Handler runs one tool.
type Handler func(ctx context.Context, args Args) (interface{}, error)

// Tool pairs a schema with its handler.
type Tool struct {
	Category string
	Spec     mcp.Tool
	Handler  Handler
}

// Toolset is the dispatch table shared by every transport.
type Toolset struct {
	explainer Explainer
	prices    market.PriceSource
	news      NewsFetcher
	retriever Retriever
	log       *logger.Logger

	tools map[string]Tool
	order []string
	calls atomic.Int64
}

// NewsItem is one article as returned by get_news_sentiment.
type NewsItem struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	Summary        string                `json:"summary"`
	URL            string                `json:"url,omitempty"`
	Source         string                `json:"source,omitempty"`
	PublishedAt    models.Timestamp      `json:"published_at"`
	Sentiment      models.SentimentLabel `json:"sentiment"`
	SentimentScore float64               `json:"sentiment_score"`
	Symbol         string                `json:"stock_symbol,omitempty"`
	Sector         string                `json:"sector,omitempty"`
}

func NewToolset(explainer Explainer, prices market.PriceSource, news NewsFetcher, retriever Retriever, log *logger.Logger) *Toolset {
	ts := &Toolset{
		explainer: explainer,
		prices:    prices,
		news:      news,
		retriever: retriever,
		log:       log,
		tools:     map[string]Tool{},
	}
	ts.register()
	return ts
}

func (ts *Toolset) add(category string, spec mcp.Tool, h Handler) {
	ts.tools[spec.Name] = Tool{Category: category, Spec: spec, Handler: h}
	ts.order = append(ts.order, spec.Name)
}

// Tools lists the tools in registration order.
func (ts *Toolset) Tools() []Tool {
	out := make([]Tool, 0, len(ts.order))
	for _, name := range ts.order {
		out = append(out, ts.tools[name])
	}
	return out
}

// Categories counts tools per category.
func (ts *Toolset) Categories() map[string]int {
	out := map[string]int{}
	for _, t := range ts.tools {
		out[t.Category]++
	}
	return out
}

// Calls is the number of tool invocations served since start.
func (ts *Toolset) Calls() int64 { return ts.calls.Load() }

// Call runs the named tool.
func (ts *Toolset) Call(ctx context.Context, name string, args Args) (interface{}, error) {
	t, ok := ts.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	ts.calls.Add(1)
	if args == nil {
		args = Args{}
	}
	log := ts.log.WithField("tool", name)
	log.Info("Tool call")
	result, err := t.Handler(ctx, args)
	if err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Tool call failed")
		return nil, err
	}
	return result, nil
}

func (ts *Toolset) register() {
	symbol := mcp.WithString("symbol", mcp.Required(), mcp.Description("Stock symbol, e.g. TCS or HDFCBANK.NS"))
	start := mcp.WithString("start_date", mcp.Required(), mcp.Description("Start date in YYYY-MM-DD format"))
	end := mcp.WithString("end_date", mcp.Required(), mcp.Description("End date in YYYY-MM-DD format"))

	ts.add("orchestrator", mcp.NewTool("explain_price_change",
		mcp.WithDescription("Gathers price summary, history, news sentiment, semantic evidence and sentiment-price correlation to explain why a stock moved. Partial results are returned when a source fails."),
		symbol, start, end,
	), ts.explainPriceChange)

	ts.add("stock_data", mcp.NewTool("get_stock_summary",
		mcp.WithDescription("Stock price summary for the last N days: change, high, low, average volume and volatility"),
		symbol,
		mcp.WithNumber("period_days", mcp.Description("Number of days to analyze (default 7)"), mcp.DefaultNumber(7), mcp.Min(1), mcp.Max(365)),
	), ts.stockSummary)

	ts.add("stock_data", mcp.NewTool("get_historical_prices",
		mcp.WithDescription("Daily price bars between two dates, optionally aggregated into N-day periods"),
		symbol, start, end,
		mcp.WithNumber("aggregation_period", mcp.Description("Days per bar: 1 daily, 7 weekly, 30 monthly"), mcp.DefaultNumber(1), mcp.Min(1), mcp.Max(90)),
	), ts.historicalPrices)

	ts.add("news_sentiment", mcp.NewTool("get_news_sentiment",
		mcp.WithDescription("News articles with sentiment scores for a stock in a date range, newest first"),
		symbol, start, end,
		mcp.WithNumber("top_n", mcp.Description("Maximum number of articles (default 10)"), mcp.DefaultNumber(10), mcp.Min(1), mcp.Max(50)),
		mcp.WithString("sentiment_filter", mcp.Description("Only return articles with this sentiment"), mcp.Enum("positive", "negative", "neutral")),
	), ts.newsSentiment)

	ts.add("news_sentiment", mcp.NewTool("get_sentiment_aggregate",
		mcp.WithDescription("Average sentiment and label counts for a period. avg_sentiment is null when there is no news."),
		symbol, start, end,
	), ts.sentimentAggregate)

	ts.add("rag", mcp.NewTool("get_rag_evidence",
		mcp.WithDescription("Semantic search over indexed news for articles explaining a price move"),
		mcp.WithString("symbol", mcp.Description("Stock symbol; empty searches all symbols")),
		start, end,
		mcp.WithString("query_text", mcp.Required(), mcp.Description("What to search for, e.g. reasons for the drop")),
		mcp.WithNumber("top_k", mcp.Description("Number of results (default 6)"), mcp.DefaultNumber(6), mcp.Min(1), mcp.Max(50)),
	), ts.ragEvidence)

	ts.add("rag", mcp.NewTool("get_rag_stats",
		mcp.WithDescription("Vector store size, embedding model and status"),
	), ts.ragStats)

	ts.add("correlation", mcp.NewTool("calculate_correlation",
		mcp.WithDescription("Pearson correlation between two equal-length numeric series with a plain-language interpretation"),
		mcp.WithArray("series_a", mcp.Required(), mcp.Description("First series"), mcp.Items(map[string]interface{}{"type": "number"})),
		mcp.WithArray("series_b", mcp.Required(), mcp.Description("Second series"), mcp.Items(map[string]interface{}{"type": "number"})),
		mcp.WithString("series_a_name", mcp.Description("Label for the first series")),
		mcp.WithString("series_b_name", mcp.Description("Label for the second series")),
	), ts.correlate)

	ts.add("correlation", mcp.NewTool("calculate_sentiment_price_correlation",
		mcp.WithDescription("Correlation between daily price change percentages and sentiment scores, with divergence periods"),
		mcp.WithArray("price_changes", mcp.Required(), mcp.Description("Daily price change percentages"), mcp.Items(map[string]interface{}{"type": "number"})),
		mcp.WithArray("sentiment_scores", mcp.Required(), mcp.Description("Daily sentiment scores"), mcp.Items(map[string]interface{}{"type": "number"})),
		mcp.WithString("symbol", mcp.Description("Stock symbol used in labels")),
	), ts.correlateSentimentPrice)
}

func (ts *Toolset) explainPriceChange(ctx context.Context, args Args) (interface{}, error) {
	symbol, err := args.RequireString("symbol")
	if err != nil {
		return nil, err
	}
	return ts.explainer.Explain(ctx, symbol, args.String("start_date"), args.String("end_date"))
}

func (ts *Toolset) stockSummary(ctx context.Context, args Args) (interface{}, error) {
	symbol, err := args.RequireString("symbol")
	if err != nil {
		return nil, err
	}
	days, err := args.Int("period_days", 7, 1, 365)
	if err != nil {
		return nil, err
	}
	return ts.prices.StockSummary(ctx, symbol, days)
}

func (ts *Toolset) historicalPrices(ctx context.Context, args Args) (interface{}, error) {
	symbol, err := args.RequireString("symbol")
	if err != nil {
		return nil, err
	}
	start, end, err := args.Window()
	if err != nil {
		return nil, err
	}
	period, err := args.Int("aggregation_period", 1, 1, 90)
	if err != nil {
		return nil, err
	}
	bars, err := ts.prices.HistoricalPrices(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	out := market.Aggregate(bars, period)
	if out == nil {
		out = []models.PriceBar{}
	}
	return out, nil
}

func (ts *Toolset) newsSentiment(ctx context.Context, args Args) (interface{}, error) {
	symbol, err := args.RequireString("symbol")
	if err != nil {
		return nil, err
	}
	start, end, err := args.Window()
	if err != nil {
		return nil, err
	}
	topN, err := args.Int("top_n", 10, 1, 50)
	if err != nil {
		return nil, err
	}
	filter := models.SentimentLabel(args.String("sentiment_filter"))
	if filter != "" && !filter.Valid() {
		return nil, models.InvalidInput("tools.get_news_sentiment", "sentiment_filter must be positive, negative or neutral")
	}

	items, err := ts.news.Fetch(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if filter != "" {
		items = sentiment.Filter(items, filter)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].PublishedAt.After(items[j].PublishedAt.Time) })
	if len(items) > topN {
		items = items[:topN]
	}
	out := make([]NewsItem, len(items))
	for i, a := range items {
		score, _ := a.Score()
		out[i] = NewsItem{
			ID:             a.ID,
			Title:          a.Title,
			Summary:        models.TruncateRunes(a.Content, NewsSummaryLimit),
			URL:            a.URL,
			Source:         a.Source,
			PublishedAt:    a.PublishedAt,
			Sentiment:      a.Label(),
			SentimentScore: score,
			Symbol:         a.Symbol,
			Sector:         a.Sector,
		}
	}
	return out, nil
}

func (ts *Toolset) sentimentAggregate(ctx context.Context, args Args) (interface{}, error) {
	symbol, err := args.RequireString("symbol")
	if err != nil {
		return nil, err
	}
	start, end, err := args.Window()
	if err != nil {
		return nil, err
	}
	w, err := ts.news.FetchWindow(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	bare, _ := models.NormalizeSymbol(symbol)
	return sentiment.SummarizeWindow(bare, start, end, w), nil
}

func (ts *Toolset) ragEvidence(ctx context.Context, args Args) (interface{}, error) {
	start, end, err := args.Window()
	if err != nil {
		return nil, err
	}
	query, err := args.RequireString("query_text")
	if err != nil {
		return nil, err
	}
	topK, err := args.Int("top_k", 6, 1, 50)
	if err != nil {
		return nil, err
	}
	return ts.retriever.Retrieve(ctx, models.EvidenceQuery{
		Symbol:    args.String("symbol"),
		StartDate: start,
		EndDate:   end,
		QueryText: query,
		TopK:      topK,
	})
}

func (ts *Toolset) ragStats(ctx context.Context, _ Args) (interface{}, error) {
	return ts.retriever.Stats(ctx)
}

func (ts *Toolset) correlate(_ context.Context, args Args) (interface{}, error) {
	a, err := args.Floats("series_a")
	if err != nil {
		return nil, err
	}
	b, err := args.Floats("series_b")
	if err != nil {
		return nil, err
	}
	return correlation.Correlate(a, b, args.String("series_a_name"), args.String("series_b_name"))
}

func (ts *Toolset) correlateSentimentPrice(_ context.Context, args Args) (interface{}, error) {
	prices, err := args.Floats("price_changes")
	if err != nil {
		return nil, err
	}
	scores, err := args.Floats("sentiment_scores")
	if err != nil {
		return nil, err
	}
	bare, _ := models.NormalizeSymbol(args.String("symbol"))
	return correlation.CorrelateSentimentPrice(prices, scores, bare, nil)
}
