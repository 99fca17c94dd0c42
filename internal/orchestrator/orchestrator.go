// Package orchestrator answers "why did this symbol move?" by fanning out to
// prices, news sentiment and evidence retrieval, then correlating the results.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/internal/correlation"
	"github.com/Rishav0123/sentimatix/internal/market"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/sentiment"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSubCallTimeout       = 10 * time.Second
	DefaultMinCorrelationPoints = 3
	DefaultEvidenceTopK         = 6
	DefaultHistoricalPriceLimit = 14
	DefaultMaxRangeDays         = 366
)

// EvidenceQueryTemplate is filled with the display symbol.
const EvidenceQueryTemplate = "reasons for %s price change drop decline fall movement"

// NewsFetcher returns the news of a window. *sentiment.Aggregator implements it.
type NewsFetcher interface {
	FetchWindow(ctx context.Context, symbol string, start, end time.Time) (sentiment.Window, error)
}

// EvidenceRetriever finds articles explaining a move. *pipeline.EvidenceRetriever implements it.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, q models.EvidenceQuery) ([]models.EvidenceItem, error)
}

type Options struct {
	// SubCallTimeout bounds each branch independently.
	SubCallTimeout       time.Duration
	MinCorrelationPoints int
	EvidenceTopK         int
	// HistoricalPriceLimit truncates the returned bars. Correlation still sees all of them.
	HistoricalPriceLimit int
	MaxRangeDays         int
}

func OptionsFromConfig(cfg config.OrchestratorConfig) Options {
	return Options{
		SubCallTimeout:       config.Duration(cfg.SubCallTimeout, DefaultSubCallTimeout),
		MinCorrelationPoints: cfg.MinCorrelationPoints,
		EvidenceTopK:         cfg.EvidenceTopK,
		HistoricalPriceLimit: cfg.HistoricalPriceLimit,
		MaxRangeDays:         cfg.MaxRangeDays,
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.SubCallTimeout <= 0 {
		o.SubCallTimeout = DefaultSubCallTimeout
	}
	if o.MinCorrelationPoints < 2 {
		o.MinCorrelationPoints = DefaultMinCorrelationPoints
	}
	if o.EvidenceTopK <= 0 {
		o.EvidenceTopK = DefaultEvidenceTopK
	}
	if o.HistoricalPriceLimit < 0 {
		o.HistoricalPriceLimit = 0
	} else if o.HistoricalPriceLimit == 0 {
		o.HistoricalPriceLimit = DefaultHistoricalPriceLimit
	}
	if o.MaxRangeDays <= 0 {
		o.MaxRangeDays = DefaultMaxRangeDays
	}
	return o
}

// Orchestrator is stateless across calls and safe for concurrent use.
type Orchestrator struct {
	prices   market.PriceSource
	news     NewsFetcher
	evidence EvidenceRetriever
	opts     Options
	log      *logger.Logger
	now      func() time.Time
}

func New(prices market.PriceSource, news NewsFetcher, evidence EvidenceRetriever, opts Options, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		prices:   prices,
		news:     news,
		evidence: evidence,
		opts:     opts.withDefaults(),
		log:      log,
		now:      time.Now,
	}
}

// Explain gathers everything known about symbol's move between startDate and
// endDate (YYYY-MM-DD). A failing sub-call is recorded in the status map and
// never fails the whole call; only invalid input or cancellation of ctx do.
func (o *Orchestrator) Explain(ctx context.Context, symbol, startDate, endDate string) (*models.ExplanationResult, error) {
	const op = "orchestrator.Explain"
	display, _ := models.NormalizeSymbol(symbol)
	if display == "" {
		return nil, models.InvalidInput(op, "symbol is required")
	}
	start, err := time.Parse(models.DateLayout, strings.TrimSpace(startDate))
	if err != nil {
		return nil, models.InvalidInput(op, "start_date %q is not YYYY-MM-DD", startDate)
	}
	end, err := time.Parse(models.DateLayout, strings.TrimSpace(endDate))
	if err != nil {
		return nil, models.InvalidInput(op, "end_date %q is not YYYY-MM-DD", endDate)
	}
	if !start.Before(end) {
		return nil, models.InvalidInput(op, "start_date must be before end_date")
	}
	days := market.DaysBetween(start, end)
	if days > o.opts.MaxRangeDays {
		return nil, models.InvalidInput(op, "date range of %d days exceeds %d", days, o.opts.MaxRangeDays)
	}

	log := o.log.WithField("symbol", display).WithField("start", startDate).WithField("end", endDate)
	log.Info("Orchestrating price change explanation")
	began := time.Now()

	res := &models.ExplanationResult{
		Symbol:   display,
		Period:   models.Period{StartDate: start.Format(models.DateLayout), EndDate: end.Format(models.DateLayout), Days: days},
		Evidence: []models.EvidenceItem{},
	}
	st := newStatus()

	var (
		history []models.PriceBar
		items   []models.NewsArticle
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		s, err := call(ctx, o.opts.SubCallTimeout, func(ctx context.Context) (*models.StockSummary, error) {
			return o.prices.StockSummary(ctx, display, days)
		})
		if st.record(models.StepStockSummary, err) {
			res.StockSummary = s
		}
		return nil
	})
	g.Go(func() error {
		bars, err := call(ctx, o.opts.SubCallTimeout, func(ctx context.Context) ([]models.PriceBar, error) {
			return o.prices.HistoricalPrices(ctx, display, start, end)
		})
		if st.record(models.StepHistoricalPrices, err) {
			history = bars
		}
		return nil
	})
	g.Go(func() error {
		w, err := call(ctx, o.opts.SubCallTimeout, func(ctx context.Context) (sentiment.Window, error) {
			return o.news.FetchWindow(ctx, display, start, end)
		})
		if st.record(models.StepSentimentAggregate, err) {
			items = w.Articles
			agg := sentiment.SummarizeWindow(display, start, end, w)
			res.SentimentAggregate = &agg
		}
		return nil
	})
	g.Go(func() error {
		ev, err := call(ctx, o.opts.SubCallTimeout, func(ctx context.Context) ([]models.EvidenceItem, error) {
			return o.evidence.Retrieve(ctx, models.EvidenceQuery{
				Symbol:    display,
				StartDate: start,
				EndDate:   end,
				QueryText: fmt.Sprintf(EvidenceQueryTemplate, display),
				TopK:      o.opts.EvidenceTopK,
			})
		})
		if st.record(models.StepRAGEvidence, err) && ev != nil {
			res.Evidence = ev
		}
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Warn(fmt.Sprintf("Explanation abandoned: %v", err))
		return nil, models.ExternalService(op, err)
	}

	if history != nil {
		res.HistoricalPrices = history
		if len(history) > o.opts.HistoricalPriceLimit {
			res.HistoricalPrices = history[:o.opts.HistoricalPriceLimit]
		}
	}

	if o.shouldCorrelate(st, res) {
		prices, scores, dates := Align(history, sentiment.Daily(items))
		if len(prices) >= o.opts.MinCorrelationPoints {
			corr, err := correlation.CorrelateSentimentPrice(prices, scores, display, dates)
			if st.record(models.StepCorrelation, err) {
				res.Correlation = corr
			}
		} else {
			log.Debug(fmt.Sprintf("Skipping correlation: %d aligned days, need %d", len(prices), o.opts.MinCorrelationPoints))
		}
	}

	res.Status, res.Errors = st.snapshot()
	res.GeneratedAt = o.now().UTC()
	log.WithPayload(map[string]interface{}{"status": res.Status, "elapsed_ms": time.Since(began).Milliseconds()}).
		Info("Orchestration complete")
	return res, nil
}

// shouldCorrelate requires a price summary, non-empty sentiment and a price history.
func (o *Orchestrator) shouldCorrelate(st *status, res *models.ExplanationResult) bool {
	return st.ok(models.StepStockSummary) &&
		st.ok(models.StepHistoricalPrices) &&
		st.ok(models.StepSentimentAggregate) &&
		res.SentimentAggregate != nil && res.SentimentAggregate.Total > 0
}

// Align pairs each bar's change percent with the mean sentiment of the same day.
// Days without news are skipped.
func Align(bars []models.PriceBar, daily []models.DailySentiment) (priceChanges, sentimentScores []float64, dates []string) {
	byDate := make(map[string]float64, len(daily))
	for _, d := range daily {
		byDate[d.Date] = d.Average
	}
	for _, b := range bars {
		s, ok := byDate[b.Date]
		if !ok {
			continue
		}
		priceChanges = append(priceChanges, b.ChangePercent)
		sentimentScores = append(sentimentScores, s)
		dates = append(dates, b.Date)
	}
	return priceChanges, sentimentScores, dates
}

// call runs fn with its own deadline. It returns when fn does or when the
// deadline passes, whichever comes first; a late fn result is dropped.
// A panic in fn is reported as an error.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: models.ExternalService("orchestrator.call", fmt.Errorf("panic: %v", r))}
			}
		}()
		v, err := fn(cctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-cctx.Done():
		var zero T
		return zero, models.ExternalService("orchestrator.call", cctx.Err())
	}
}

// status is the per-request status map, written by concurrent branches.
type status struct {
	mu     sync.Mutex
	values map[string]string
	errors map[string]string
}

func newStatus() *status {
	return &status{values: map[string]string{}, errors: map[string]string{}}
}

// record stores the outcome of step and reports whether it succeeded.
func (s *status) record(step string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.values[step] = models.StatusError
		s.errors[step] = err.Error()
		return false
	}
	s.values[step] = models.StatusOK
	return true
}

func (s *status) ok(step string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[step] == models.StatusOK
}

func (s *status) snapshot() (map[string]string, map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := make(map[string]string, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	var errs map[string]string
	if len(s.errors) > 0 {
		errs = make(map[string]string, len(s.errors))
		for k, v := range s.errors {
			errs[k] = v
		}
	}
	return values, errs
}
