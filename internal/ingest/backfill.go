package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/Rishav0123/sentimatix/internal/market"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/robfig/cron/v3"
)

// backfillLimit caps the articles taken per symbol per run.
const backfillLimit = 1000

// Backfill pulls the last N days of news for each symbol and indexes it.
type Backfill struct {
	news    market.NewsSource
	symbols []string
	days    int
	service *Service
	log     *logger.Logger
	now     func() time.Time
}

// NewBackfill with no symbols backfills market-wide news.
func NewBackfill(news market.NewsSource, symbols []string, days int, service *Service, log *logger.Logger) *Backfill {
	if len(symbols) == 0 {
		symbols = []string{""}
	}
	if days <= 0 {
		days = 7
	}
	return &Backfill{
		news: news, symbols: symbols, days: days, service: service, log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Run backfills every symbol. A symbol whose fetch fails is logged and
// skipped; only cancellation aborts the run.
func (b *Backfill) Run(ctx context.Context) (models.IndexReport, error) {
	end := b.now()
	start := end.AddDate(0, 0, -b.days)
	total := models.IndexReport{}
	for _, sym := range b.symbols {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		articles, err := b.news.News(ctx, sym, start, end, backfillLimit)
		if err != nil {
			b.log.WithField("symbol", sym).WithError(models.ErrorInfoFrom(err, 0)).Warn("Backfill fetch failed")
			continue
		}
		report, err := b.service.Process(ctx, TriggerBackfill, articles)
		total.Add(report)
		if err != nil {
			return total, err
		}
	}
	b.log.Info(fmt.Sprintf("Backfill finished: indexed=%d skipped=%d failed=%d", total.Indexed, total.Skipped, total.Failed))
	return total, nil
}

// Scheduler runs the backfill on a cron schedule.
type Scheduler struct {
	backfill *Backfill
	cron     *cron.Cron
	timeout  time.Duration
	log      *logger.Logger
}

func NewScheduler(backfill *Backfill, log *logger.Logger) *Scheduler {
	return &Scheduler{backfill: backfill, cron: cron.New(), timeout: 30 * time.Minute, log: log}
}

// Start registers the job under schedule (standard cron or "@every 1h") and starts the scheduler.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		schedule = "@every 1h"
	}
	if _, err := s.cron.AddFunc(schedule, s.runOnce); err != nil {
		return fmt.Errorf("invalid backfill schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.log.WithField("schedule", schedule).Info("Backfill scheduler started")
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Backfill scheduler stopped")
}

// RunNow triggers an immediate backfill in the background.
func (s *Scheduler) RunNow() {
	go s.runOnce()
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.backfill.Run(ctx); err != nil {
		s.log.WithError(models.ErrorInfoFrom(err, 0)).Error("Scheduled backfill failed")
	}
}
