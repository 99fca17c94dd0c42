package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/interfaces"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/schema"
	"github.com/Rishav0123/sentimatix/pkg/logger"
)

// Defaults for evidence retrieval.
const (
	DefaultSimilarityThreshold = 0.7
	DefaultTopK                = 6
	DefaultMinResults          = 3
	DefaultHalfLifeDays        = 30.0
	DefaultFallbackThreshold   = 0.5

	// ExactSymbolBoost multiplies relevance when the record's symbol is a variant of the query symbol.
	ExactSymbolBoost = 1.08
	// AliasMentionBoost multiplies relevance when the title or preview names the company.
	AliasMentionBoost = 1.05
	fallbackPoolSize  = 3
)

// DefaultAdaptiveThresholds is the step-down sequence tried in adaptive mode.
var DefaultAdaptiveThresholds = []float64{0.7, 0.65, 0.6, 0.55, 0.5}

// RetrieverOptions tunes the evidence retriever.
type RetrieverOptions struct {
	Threshold float64
	TopK      int
	// Adaptive turns on threshold step-down, recency weighting and fallback search.
	Adaptive            bool
	AdaptiveThresholds  []float64
	MinResults          int
	RecencyHalfLifeDays float64
	FallbackThreshold   float64
}

// OptionsFromConfig maps the rag config section onto retriever options, filling defaults.
func OptionsFromConfig(cfg config.RAGConfig) RetrieverOptions {
	o := RetrieverOptions{
		Threshold:           cfg.SimilarityThreshold,
		TopK:                cfg.TopK,
		Adaptive:            cfg.Adaptive,
		AdaptiveThresholds:  cfg.AdaptiveThresholds,
		MinResults:          cfg.MinResults,
		RecencyHalfLifeDays: cfg.RecencyHalfLifeDays,
		FallbackThreshold:   cfg.FallbackThreshold,
	}
	return o.withDefaults()
}

func (o RetrieverOptions) withDefaults() RetrieverOptions {
	if o.Threshold <= 0 {
		o.Threshold = DefaultSimilarityThreshold
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if len(o.AdaptiveThresholds) == 0 {
		o.AdaptiveThresholds = DefaultAdaptiveThresholds
	}
	if o.MinResults <= 0 {
		o.MinResults = DefaultMinResults
	}
	if o.RecencyHalfLifeDays <= 0 {
		o.RecencyHalfLifeDays = DefaultHalfLifeDays
	}
	if o.FallbackThreshold <= 0 {
		o.FallbackThreshold = DefaultFallbackThreshold
	}
	return o
}

// EvidenceRetriever finds news articles semantically related to a query
// within a symbol and date window, and grades how well each one matched.
type EvidenceRetriever struct {
	embedder    interfaces.EmbeddingModel
	vectorStore interfaces.VectorStore
	opts        RetrieverOptions
	log         *logger.Logger
}

func NewEvidenceRetriever(
	embedder interfaces.EmbeddingModel,
	vectorStore interfaces.VectorStore,
	opts RetrieverOptions,
	log *logger.Logger,
) *EvidenceRetriever {
	return &EvidenceRetriever{
		embedder:    embedder,
		vectorStore: vectorStore,
		opts:        opts.withDefaults(),
		log:         log,
	}
}

// Retrieve embeds the query text, searches the store and returns ranked evidence.
// An empty symbol searches across all symbols. No match is an empty, non-nil slice.
// Embedding failures are returned unchanged so callers see the provider's error kind.
func (r *EvidenceRetriever) Retrieve(ctx context.Context, q models.EvidenceQuery) ([]models.EvidenceItem, error) {
	const op = "retriever.Retrieve"
	if strings.TrimSpace(q.QueryText) == "" {
		return nil, models.InvalidInput(op, "query_text is required")
	}
	if !q.StartDate.IsZero() && !q.EndDate.IsZero() && q.StartDate.After(q.EndDate) {
		return nil, models.InvalidInput(op, "start_date %s is after end_date %s",
			q.StartDate.Format(models.DateLayout), q.EndDate.Format(models.DateLayout))
	}
	topK := q.TopK
	if topK <= 0 {
		topK = r.opts.TopK
	}

	r.log.Info(fmt.Sprintf("Retrieving evidence: symbol=%q query=%q topK=%d", q.Symbol, truncateForLog(q.QueryText), topK))

	queryText := q.QueryText
	aliases := models.SymbolAliases(q.Symbol)
	if r.opts.Adaptive && len(aliases) > 0 {
		queryText = queryText + " " + strings.Join(aliases, " ")
	}
	vector, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		r.log.Error(fmt.Sprintf("Failed to embed query: %v", err))
		return nil, err
	}

	filter := dateFilter(q.StartDate, q.EndDate)
	filter.Symbols = models.SymbolVariants(q.Symbol)

	var items []models.EvidenceItem
	if r.opts.Adaptive {
		items, err = r.adaptive(ctx, vector, filter, q, aliases, topK)
	} else {
		var matches []schema.Match
		matches, err = r.vectorStore.Search(ctx, vector, filter, r.opts.Threshold, topK)
		items = toEvidence(matches, nil)
	}
	if err != nil {
		r.log.Error(fmt.Sprintf("Vector search failed: %v", err))
		return nil, models.ExternalService(op, err)
	}

	r.log.Info(fmt.Sprintf("Retrieved %d evidence items for %q", len(items), q.Symbol))
	return items, nil
}

// adaptive lowers the threshold step by step until enough results are found,
// weights them by recency and symbol relevance, and falls back to an
// unfiltered search with a text match when the symbol filter finds nothing.
func (r *EvidenceRetriever) adaptive(ctx context.Context, vector []float32, filter schema.Filter, q models.EvidenceQuery, aliases []string, topK int) ([]models.EvidenceItem, error) {
	seen := make(map[string]struct{})
	var collected []schema.Match
	for _, threshold := range r.opts.AdaptiveThresholds {
		matches, err := r.vectorStore.Search(ctx, vector, filter, threshold, topK)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if _, dup := seen[m.Record.ID]; dup {
				continue
			}
			seen[m.Record.ID] = struct{}{}
			collected = append(collected, m)
		}
		if len(collected) >= r.opts.MinResults {
			break
		}
	}

	if len(collected) > 0 {
		ref := q.EndDate
		if ref.IsZero() {
			ref = time.Now().UTC()
		}
		relevance := make(map[string]float64, len(collected))
		for _, m := range collected {
			relevance[m.Record.ID] = r.relevance(m, ref, filter.Symbols, aliases)
		}
		sort.SliceStable(collected, func(i, j int) bool {
			a, b := collected[i], collected[j]
			ra, rb := relevance[a.Record.ID], relevance[b.Record.ID]
			if ra != rb {
				return ra > rb
			}
			if a.Similarity != b.Similarity {
				return a.Similarity > b.Similarity
			}
			if !a.Record.PublishedAt.Equal(b.Record.PublishedAt) {
				return a.Record.PublishedAt.After(b.Record.PublishedAt)
			}
			return a.Record.ID < b.Record.ID
		})
		if len(collected) > topK {
			collected = collected[:topK]
		}
		return toEvidence(collected, relevance), nil
	}

	if len(filter.Symbols) == 0 {
		return []models.EvidenceItem{}, nil
	}
	return r.fallback(ctx, vector, filter, q.Symbol, aliases, topK), nil
}

// fallback searches all symbols and keeps rows that mention the symbol or its aliases.
// Failures are logged and yield no evidence.
func (r *EvidenceRetriever) fallback(ctx context.Context, vector []float32, filter schema.Filter, symbol string, aliases []string, topK int) []models.EvidenceItem {
	r.log.Info(fmt.Sprintf("No evidence for %s, trying fallback search without symbol filter", symbol))
	broad := filter
	broad.Symbols = nil
	matches, err := r.vectorStore.Search(ctx, vector, broad, r.opts.FallbackThreshold, topK*fallbackPoolSize)
	if err != nil {
		r.log.Warn(fmt.Sprintf("Fallback search failed: %v", err))
		return []models.EvidenceItem{}
	}

	needles := make([]string, 0, 4)
	bare, suffixed := models.NormalizeSymbol(symbol)
	for _, n := range append([]string{bare, suffixed}, aliases...) {
		if n != "" {
			needles = append(needles, strings.ToLower(n))
		}
	}
	kept := make([]schema.Match, 0, len(matches))
	for _, m := range matches {
		hay := strings.ToLower(m.Record.Title + " " + m.Record.ContentPreview + " " + m.Record.Symbol)
		for _, n := range needles {
			if strings.Contains(hay, n) {
				kept = append(kept, m)
				break
			}
		}
	}
	if len(kept) > topK {
		kept = kept[:topK]
	}
	r.log.Info(fmt.Sprintf("Fallback candidates: %d, mentioning %s: %d", len(matches), symbol, len(kept)))
	return toEvidence(kept, nil)
}

// relevance is similarity decayed by age with the configured half-life, then boosted
// for an exact symbol match and for a company-name mention.
func (r *EvidenceRetriever) relevance(m schema.Match, ref time.Time, variants, aliases []string) float64 {
	ageDays := math.Floor(ref.Sub(m.Record.PublishedAt).Hours() / 24)
	if ageDays < 0 {
		ageDays = 0
	}
	score := m.Similarity * math.Pow(0.5, ageDays/r.opts.RecencyHalfLifeDays)

	for _, v := range variants {
		if strings.EqualFold(v, m.Record.Symbol) {
			score *= ExactSymbolBoost
			break
		}
	}
	hay := strings.ToLower(m.Record.Title + " " + m.Record.ContentPreview)
	for _, a := range aliases {
		if strings.Contains(hay, strings.ToLower(a)) {
			score *= AliasMentionBoost
			break
		}
	}
	return score
}

// Stats reports the vector store contents and the embedding model in use.
func (r *EvidenceRetriever) Stats(ctx context.Context) (models.RAGStats, error) {
	st, err := r.vectorStore.Stats(ctx)
	if err != nil {
		return models.RAGStats{}, models.ExternalService("retriever.Stats", err)
	}
	out := models.RAGStats{
		Status:          "operational",
		Backend:         st.Backend,
		TotalEmbeddings: st.TotalEmbeddings,
		UniqueSymbols:   st.UniqueSymbols,
		Dimension:       st.Dimension,
	}
	if d, ok := r.embedder.(interface {
		Model() string
		Dimension() int
	}); ok {
		out.EmbeddingModel = d.Model()
		if out.Dimension == 0 {
			out.Dimension = d.Dimension()
		}
	}
	return out, nil
}

// dateFilter converts calendar dates into an inclusive timestamp window:
// the first instant of start through the last instant of end, in UTC.
func dateFilter(start, end time.Time) schema.Filter {
	var f schema.Filter
	if !start.IsZero() {
		s := truncateDay(start)
		f.Start = &s
	}
	if !end.IsZero() {
		e := truncateDay(end).Add(24*time.Hour - time.Nanosecond)
		f.End = &e
	}
	return f
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// toEvidence maps ranked matches to evidence items. Without a relevance map,
// relevance equals similarity.
func toEvidence(matches []schema.Match, relevance map[string]float64) []models.EvidenceItem {
	items := make([]models.EvidenceItem, 0, len(matches))
	for i, m := range matches {
		rel := m.Similarity
		if v, ok := relevance[m.Record.ID]; ok {
			rel = v
		}
		items = append(items, models.EvidenceItem{
			Rank:           i + 1,
			ID:             m.Record.ID,
			Title:          m.Record.Title,
			Summary:        m.Record.ContentPreview,
			Source:         m.Record.Source,
			URL:            m.Record.URL,
			Symbol:         m.Record.Symbol,
			PublishedAt:    m.Record.PublishedAt,
			Sentiment:      m.Record.Sentiment,
			SentimentScore: m.Record.SentimentScore,
			Similarity:     round(m.Similarity, 4),
			RelevanceScore: round(rel, 3),
			MatchQuality:   models.QualityFor(m.Similarity),
		})
	}
	return items
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func truncateForLog(s string) string {
	return models.TruncateRunes(s, 50)
}
