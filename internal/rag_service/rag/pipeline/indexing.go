package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Rishav0123/sentimatix/internal/embedding"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/interfaces"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/Rishav0123/sentimatix/pkg/util"
	"golang.org/x/sync/errgroup"
)

// DefaultIndexConcurrency bounds parallel embedding calls per batch.
const DefaultIndexConcurrency = 4

// Indexer embeds news articles and upserts them into the vector store.
type Indexer struct {
	embedder    interfaces.EmbeddingModel
	vectorStore interfaces.VectorStore
	archive     interfaces.Archive
	seen        *util.ScalableBloomFilter
	concurrency int
	log         *logger.Logger
}

// IndexerOption customizes an Indexer.
type IndexerOption func(*Indexer)

// WithArchive stores every accepted raw article before it is embedded.
func WithArchive(a interfaces.Archive) IndexerOption {
	return func(ix *Indexer) { ix.archive = a }
}

// WithSeenFilter lets ids indexed earlier by this process skip the store lookup.
func WithSeenFilter(f *util.ScalableBloomFilter) IndexerOption {
	return func(ix *Indexer) { ix.seen = f }
}

// WithConcurrency sets how many articles are embedded at once.
func WithConcurrency(n int) IndexerOption {
	return func(ix *Indexer) {
		if n > 0 {
			ix.concurrency = n
		}
	}
}

func NewIndexer(embedder interfaces.EmbeddingModel, vectorStore interfaces.VectorStore, log *logger.Logger, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		embedder:    embedder,
		vectorStore: vectorStore,
		concurrency: DefaultIndexConcurrency,
		log:         log,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Index embeds and stores articles not yet in the vector store.
// Articles without id or title, duplicates within the batch and already
// indexed ids are skipped. Per-article failures are counted in the report;
// the returned error is reserved for cancellation.
func (ix *Indexer) Index(ctx context.Context, articles []models.NewsArticle) (models.IndexReport, error) {
	report := models.IndexReport{Errors: map[string]string{}}
	pending := make([]models.NewsArticle, 0, len(articles))
	inBatch := make(map[string]struct{}, len(articles))

	for _, a := range articles {
		if a.ID == "" || strings.TrimSpace(a.Title) == "" {
			report.Skipped++
			continue
		}
		if _, dup := inBatch[a.ID]; dup {
			report.Skipped++
			continue
		}
		inBatch[a.ID] = struct{}{}

		if ix.seen != nil && ix.seen.TestString(a.ID) {
			report.Skipped++
			continue
		}
		exists, err := ix.vectorStore.Exists(ctx, a.ID)
		if err != nil {
			report.Failed++
			report.Errors[a.ID] = err.Error()
			continue
		}
		if exists {
			ix.markSeen(a.ID)
			report.Skipped++
			continue
		}
		pending = append(pending, a)
	}
	if len(pending) == 0 {
		return report, ctx.Err()
	}

	ix.log.Info(fmt.Sprintf("Indexing %d new articles (%d skipped)", len(pending), report.Skipped))

	var (
		mu      sync.Mutex
		records = make([]models.NewsEmbeddingRecord, 0, len(pending))
	)
	fail := func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Failed++
		report.Errors[id] = err.Error()
	}

	g := new(errgroup.Group)
	g.SetLimit(ix.concurrency)
	for _, a := range pending {
		a := a
		g.Go(func() error {
			if ctx.Err() != nil {
				fail(a.ID, ctx.Err())
				return nil
			}
			if ix.archive != nil {
				if err := ix.archive.Put(ctx, a); err != nil {
					ix.log.Warn(fmt.Sprintf("Failed to archive article %s: %v", a.ID, err))
				}
			}
			text := embedding.PrepareArticle(a, models.SymbolAliases(a.Symbol)...)
			vec, err := ix.embedder.Embed(ctx, text)
			if err != nil {
				fail(a.ID, err)
				return nil
			}
			mu.Lock()
			records = append(records, models.RecordFromArticle(a, vec))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(records) > 0 {
		if err := ix.vectorStore.Upsert(ctx, records...); err != nil {
			ix.log.Error(fmt.Sprintf("Failed to upsert %d records: %v", len(records), err))
			for _, r := range records {
				report.Failed++
				report.Errors[r.ID] = err.Error()
			}
		} else {
			report.Indexed += len(records)
			for _, r := range records {
				ix.markSeen(r.ID)
			}
		}
	}

	ix.log.Info(fmt.Sprintf("Indexing finished: indexed=%d skipped=%d failed=%d", report.Indexed, report.Skipped, report.Failed))
	return report, ctx.Err()
}

func (ix *Indexer) markSeen(id string) {
	if ix.seen != nil {
		ix.seen.AddString(id)
	}
}
