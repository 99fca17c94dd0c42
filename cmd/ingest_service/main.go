package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Rishav0123/sentimatix/internal/app"
	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/internal/database/kafka"
	"github.com/Rishav0123/sentimatix/internal/database/minio"
	"github.com/Rishav0123/sentimatix/internal/database/mysql"
	"github.com/Rishav0123/sentimatix/internal/ingest"
	"github.com/Rishav0123/sentimatix/internal/market"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/pipeline"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/Rishav0123/sentimatix/pkg/util"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config.yaml")
	once := flag.Bool("once", false, "run one backfill and exit instead of consuming Kafka")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// 2. Initialize logger
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New("ingest_service", "", "")
	appLogger.Info("Starting ingest service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Embeddings, vector store and the backend news source
	stack, err := app.Build(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to build service: %v", err))
	}
	defer func() {
		if err := stack.Close(); err != nil {
			appLogger.Error(fmt.Sprintf("Failed to close collaborators cleanly: %v", err))
		}
	}()
	if stack.Milvus != nil {
		stack.Milvus.StartAutoFlush(10 * time.Second)
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			stack.Milvus.StopAutoFlush(flushCtx)
		}()
	}

	// 4. MySQL mirror and audit log
	db := stack.DB
	if db == nil {
		if db, err = mysql.Open(&cfg.Databases.MySQL, appLogger); err != nil {
			appLogger.Fatal(fmt.Sprintf("Failed to connect to MySQL: %v", err))
		}
		defer mysql.Close(db)
	}
	repo := market.NewRepository(db, appLogger)

	// 5. Indexer with the seen-id filter and the raw archive
	seen := loadSeenFilter(cfg.Ingest, appLogger)
	defer saveSeenFilter(seen, cfg.Ingest.BloomPath, appLogger)

	indexerOpts := []pipeline.IndexerOption{
		pipeline.WithSeenFilter(seen),
		pipeline.WithConcurrency(cfg.Ingest.Concurrency),
	}
	if cfg.Ingest.ArchiveRaw {
		mc, err := minio.New(ctx, &cfg.Databases.MinIO, appLogger)
		if err != nil {
			appLogger.Fatal(fmt.Sprintf("Failed to connect to MinIO: %v", err))
		}
		indexerOpts = append(indexerOpts, pipeline.WithArchive(minio.NewArticleArchive(mc, cfg.Databases.MinIO.Bucket)))
	}
	indexer := pipeline.NewIndexer(stack.Generator, stack.Store, appLogger, indexerOpts...)

	normalizer, err := ingest.NewNormalizer(cfg.Ingest.SourceAllowlist)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Invalid source allowlist: %v", err))
	}
	service := ingest.NewService(indexer, normalizer, appLogger,
		ingest.WithAuditor(repo),
		ingest.WithArticleStore(repo),
	)
	backfill := ingest.NewBackfill(stack.Backend, cfg.Ingest.Symbols, cfg.Ingest.BackfillDays, service, appLogger)

	if *once {
		report, err := backfill.Run(ctx)
		if err != nil {
			appLogger.Error(fmt.Sprintf("Backfill failed: %v", err))
			return
		}
		appLogger.Info(fmt.Sprintf("Backfill done: indexed=%d skipped=%d failed=%d", report.Indexed, report.Skipped, report.Failed))
		return
	}

	// 6. Periodic backfill
	scheduler := ingest.NewScheduler(backfill, appLogger)
	if err := scheduler.Start(cfg.Ingest.Schedule); err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to start backfill scheduler: %v", err))
	}
	defer scheduler.Stop()

	// 7. Kafka consumer, blocking until shutdown
	kc, err := kafka.New(&cfg.Databases.Kafka, appLogger)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to create Kafka client: %v", err))
	}
	defer kc.Close()

	consumer := ingest.NewConsumer(kc.Reader, service, cfg.Ingest.BatchSize,
		config.Duration(cfg.Ingest.FlushEvery, 2*time.Second), appLogger)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error(fmt.Sprintf("Consumer stopped: %v", err))
	}
	appLogger.Info("Ingest service stopped")
}

func loadSeenFilter(cfg config.IngestConfig, log *logger.Logger) *util.ScalableBloomFilter {
	if cfg.BloomPath != "" {
		f, err := util.LoadScalableBloomFilter(cfg.BloomPath)
		if err == nil {
			log.Info(fmt.Sprintf("Loaded seen-id filter with %d filters from %s", f.Len(), cfg.BloomPath))
			return f
		}
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn(fmt.Sprintf("Ignoring unreadable seen-id filter: %v", err))
		}
	}
	f, err := util.NewScalableBloomFilter(util.DefaultSBFConfig(cfg.BloomCapacity))
	if err != nil {
		log.Fatal(fmt.Sprintf("Failed to create seen-id filter: %v", err))
	}
	return f
}

func saveSeenFilter(f *util.ScalableBloomFilter, path string, log *logger.Logger) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warn(fmt.Sprintf("Failed to create %s: %v", filepath.Dir(path), err))
		return
	}
	if err := f.WriteToFile(path); err != nil {
		log.Warn(fmt.Sprintf("Failed to save seen-id filter: %v", err))
	}
}
