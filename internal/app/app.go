// Package app builds the analysis stack from configuration. Entry points call
// Build once and hand the pieces to their transports.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Rishav0123/sentimatix/internal/api"
	"github.com/Rishav0123/sentimatix/internal/cache"
	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/internal/database/milvus"
	"github.com/Rishav0123/sentimatix/internal/database/mysql"
	"github.com/Rishav0123/sentimatix/internal/database/redis"
	"github.com/Rishav0123/sentimatix/internal/embedding"
	"github.com/Rishav0123/sentimatix/internal/market"
	"github.com/Rishav0123/sentimatix/internal/mcp"
	"github.com/Rishav0123/sentimatix/internal/orchestrator"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/interfaces"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/pipeline"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/storages/vectorstore"
	"github.com/Rishav0123/sentimatix/internal/sentiment"
	"github.com/Rishav0123/sentimatix/pkg/circuitbreaker"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"gorm.io/gorm"
)

// DefaultLRUEntries sizes the in-process cache used when Redis is not configured.
const DefaultLRUEntries = 1024

// App holds every collaborator of the analysis stack.
type App struct {
	Config       *config.AppConfig
	Backend      *market.BackendClient
	Prices       market.PriceSource
	News         market.NewsSource
	Generator    *embedding.Generator
	Store        interfaces.VectorStore
	Retriever    *pipeline.EvidenceRetriever
	Aggregator   *sentiment.Aggregator
	Orchestrator *orchestrator.Orchestrator
	Tools        *mcp.Toolset
	// DB is set when a price or news source reads MySQL.
	DB     *gorm.DB
	Milvus *milvus.MilvusClient
	Checks map[string]api.HealthCheck

	closers []func() error
	log     *logger.Logger
}

// Build connects to the configured backends. On error everything opened so
// far is closed again.
func Build(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Checks: map[string]api.HealthCheck{}, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err = a.buildMarket(ctx); err != nil {
		return nil, err
	}

	provider, err := embedding.NewEmdModel(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedding client: %w", cfg.Embedding.Provider, err)
	}
	if c, ok := provider.(interface{ Close() error }); ok {
		a.onClose(c.Close)
	}
	a.Generator = embedding.NewGenerator(provider, cfg.Embedding, log)

	if a.Store, err = OpenVectorStore(ctx, cfg, a, log); err != nil {
		return nil, err
	}
	a.onClose(a.Store.Close)
	store := a.Store
	a.Checks["vector_store"] = func(ctx context.Context) error {
		_, err := store.Stats(ctx)
		return err
	}

	a.Retriever = pipeline.NewEvidenceRetriever(a.Generator, a.Store, pipeline.OptionsFromConfig(cfg.RAG), log)
	a.Aggregator = sentiment.NewAggregator(a.News, cfg.Sentiment.WindowLimit, log)
	a.Orchestrator = orchestrator.New(a.Prices, a.Aggregator, a.Retriever, orchestrator.OptionsFromConfig(cfg.Orchestrator), log)
	a.Tools = mcp.NewToolset(a.Orchestrator, a.Prices, a.Aggregator, a.Retriever, log)
	return a, nil
}

// buildMarket picks the price and news sources and puts the cache in front of them.
func (a *App) buildMarket(ctx context.Context) error {
	cfg := a.Config
	log := a.log

	breaker := circuitbreaker.FromConfig(cfg.Middleware.CircuitBreaker, func(from, to circuitbreaker.State) {
		log.Warn(fmt.Sprintf("Backend circuit breaker changed from %s to %s", from, to))
	})
	backend := market.NewBackendClient(cfg.Backend, breaker, log)
	a.Backend = backend

	if cfg.Backend.PriceSource == "mysql" || cfg.Backend.NewsSource == "mysql" {
		db, err := mysql.Open(&cfg.Databases.MySQL, log)
		if err != nil {
			return err
		}
		a.DB = db
		a.onClose(func() error { return mysql.Close(db) })
		a.Checks["mysql"] = func(ctx context.Context) error { return mysql.HealthCheck(ctx, db) }
	}

	var prices market.PriceSource = backend
	switch cfg.Backend.PriceSource {
	case "yahoo":
		prices = market.NewYahooSource(cfg.Backend.YahooSuffix, log)
	case "mysql":
		prices = market.NewRepository(a.DB, log)
	}
	var news market.NewsSource = backend
	if cfg.Backend.NewsSource == "mysql" {
		news = market.NewRepository(a.DB, log)
	}

	var store cache.Store
	if cfg.Databases.Redis.Address != "" {
		rdb, err := redis.New(ctx, &cfg.Databases.Redis, log)
		if err != nil {
			return err
		}
		a.onClose(rdb.Close)
		a.Checks["redis"] = func(ctx context.Context) error { return redis.HealthCheck(ctx, rdb) }
		store = cache.NewRedisStore(rdb)
	} else {
		lru, err := cache.NewLRUStore(DefaultLRUEntries)
		if err != nil {
			return err
		}
		store = lru
	}

	cached := cache.New(prices, news, store, config.Duration(cfg.Databases.Redis.TTL, 5*time.Minute), log)
	a.Prices = cached
	a.News = cached
	log.Info(fmt.Sprintf("Market data: prices=%s news=%s", cfg.Backend.PriceSource, cfg.Backend.NewsSource))
	return nil
}

// OpenVectorStore opens the backend named by cfg.RAG.VectorBackend. A Milvus
// client is recorded on a so callers can flush it.
func OpenVectorStore(ctx context.Context, cfg *config.AppConfig, a *App, log *logger.Logger) (interfaces.VectorStore, error) {
	dim := cfg.Embedding.Dimension
	switch cfg.RAG.VectorBackend {
	case "badger":
		return vectorstore.OpenBadgerStore(cfg.Databases.Badger.Path, dim, log)
	case "milvus":
		mc, err := milvus.New(ctx, cfg.Databases.Milvus, dim, log)
		if err != nil {
			return nil, err
		}
		a.onClose(mc.Close)
		if err := mc.EnsureCollection(ctx); err != nil {
			return nil, err
		}
		a.Milvus = mc
		a.Checks["milvus"] = mc.HealthCheck
		return vectorstore.NewMilvusStore(mc, log)
	case "memory", "":
		log.Warn("Using the in-memory vector store; embeddings are lost on exit")
		return vectorstore.NewMemoryStore(dim), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.RAG.VectorBackend)
	}
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases collaborators in reverse order of creation.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn(fmt.Sprintf("Close failed: %v", err))
			if first == nil {
				first = err
			}
		}
	}
	a.closers = nil
	return first
}
