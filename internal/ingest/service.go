// Package ingest feeds news into the vector store from Kafka and from
// scheduled backfills of the backend news API.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Triggers recorded on audit rows.
const (
	TriggerKafka    = "kafka"
	TriggerBackfill = "backfill"
	TriggerCLI      = "cli"
)

type Indexer interface {
	Index(ctx context.Context, articles []models.NewsArticle) (models.IndexReport, error)
}

// Auditor records one row per processed batch.
type Auditor interface {
	RecordRun(ctx context.Context, run *models.IngestRun) error
}

// ArticleStore mirrors accepted articles into the relational store.
type ArticleStore interface {
	SaveArticles(ctx context.Context, articles []models.NewsArticle) error
}

type Service struct {
	indexer    Indexer
	normalizer *Normalizer
	audit      Auditor
	store      ArticleStore
	log        *logger.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithAuditor(a Auditor) Option { return func(s *Service) { s.audit = a } }

func WithArticleStore(st ArticleStore) Option { return func(s *Service) { s.store = st } }

func NewService(indexer Indexer, normalizer *Normalizer, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		indexer:    indexer,
		normalizer: normalizer,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process cleans, filters and indexes one batch. Articles from sources
// outside the allowlist count as skipped. Audit and mirror failures are
// logged and do not fail the batch.
func (s *Service) Process(ctx context.Context, trigger string, articles []models.NewsArticle) (models.IndexReport, error) {
	started := s.now()
	report := models.IndexReport{}
	accepted := make([]models.NewsArticle, 0, len(articles))
	for _, a := range articles {
		if !s.normalizer.Allowed(a.Source) {
			report.Skipped++
			continue
		}
		accepted = append(accepted, s.normalizer.Clean(a))
	}

	indexed, err := s.indexer.Index(ctx, accepted)
	report.Add(indexed)
	log := s.log.WithField("trigger", trigger).WithPayload(map[string]interface{}{
		"received": len(articles),
		"indexed":  report.Indexed,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
	})
	if err != nil {
		log.WithError(models.ErrorInfoFrom(err, 0)).Warn("Ingest batch interrupted")
		return report, err
	}
	log.Info("Ingest batch processed")

	if s.store != nil && len(accepted) > 0 {
		if err := s.store.SaveArticles(ctx, accepted); err != nil {
			log.WithError(models.ErrorInfoFrom(err, 0)).Warn("Failed to mirror articles to MySQL")
		}
	}
	if s.audit != nil {
		if err := s.audit.RecordRun(ctx, s.run(trigger, report, started)); err != nil {
			log.WithError(models.ErrorInfoFrom(err, 0)).Warn("Failed to record ingest run")
		}
	}
	return report, nil
}

func (s *Service) run(trigger string, report models.IndexReport, started time.Time) *models.IngestRun {
	run := &models.IngestRun{
		ID:         uuid.NewString(),
		Trigger:    trigger,
		Indexed:    report.Indexed,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
		StartedAt:  started,
		FinishedAt: s.now(),
	}
	if len(report.Errors) > 0 {
		if raw, err := json.Marshal(report.Errors); err == nil {
			run.Errors = datatypes.JSON(raw)
		} else {
			run.Errors = datatypes.JSON(fmt.Sprintf(`{"_encode":%q}`, err.Error()))
		}
	}
	return run
}
