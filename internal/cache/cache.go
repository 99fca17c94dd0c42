// Package cache decorates market sources with a read-through cache backed by
// Redis or an in-process LRU.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Rishav0123/sentimatix/internal/market"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/Rishav0123/sentimatix/pkg/util"
	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "sentimatix:"

// FetchTimeout bounds a shared source call once it no longer follows the
// caller that started it.
const FetchTimeout = 30 * time.Second

// Store holds opaque cached values.
type Store interface {
	// Get reports found=false on a miss.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore keeps values in Redis.
type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// LRUStore keeps values in process memory.
type LRUStore struct {
	lru *util.LRUCache[string, []byte]
}

// NewLRUStore bounds the store to capacity entries.
func NewLRUStore(capacity int) (*LRUStore, error) {
	lru, err := util.NewLRU[string, []byte](util.CacheConfig{Capacity: capacity})
	if err != nil {
		return nil, err
	}
	return &LRUStore{lru: lru}, nil
}

func (s *LRUStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.lru.Get(key)
	return v, ok, nil
}

func (s *LRUStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.lru.PutWithTTL(key, value, 1, ttl)
	return nil
}

// Cached wraps a price source and a news source. Concurrent misses on the same
// key share one upstream call. Cache failures are logged and bypassed; errors
// from the sources are never cached.
type Cached struct {
	prices market.PriceSource
	news   market.NewsSource
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	log    *logger.Logger

	fetchTimeout time.Duration
}

// New returns a caching decorator. Either source may be nil if unused.
func New(prices market.PriceSource, news market.NewsSource, store Store, ttl time.Duration, log *logger.Logger) *Cached {
	return &Cached{prices: prices, news: news, store: store, ttl: ttl, log: log, fetchTimeout: FetchTimeout}
}

func (c *Cached) StockSummary(ctx context.Context, symbol string, periodDays int) (*models.StockSummary, error) {
	bare, _ := models.NormalizeSymbol(symbol)
	key := keyPrefix + "summary:" + bare + ":" + strconv.Itoa(periodDays)
	return load(ctx, c, key, func(ctx context.Context) (*models.StockSummary, error) {
		return c.prices.StockSummary(ctx, symbol, periodDays)
	})
}

func (c *Cached) HistoricalPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	bare, _ := models.NormalizeSymbol(symbol)
	key := fmt.Sprintf("%sprices:%s:%s:%s", keyPrefix, bare, start.Format(models.DateLayout), end.Format(models.DateLayout))
	return load(ctx, c, key, func(ctx context.Context) ([]models.PriceBar, error) {
		return c.prices.HistoricalPrices(ctx, symbol, start, end)
	})
}

func (c *Cached) News(ctx context.Context, symbol string, start, end time.Time, limit int) ([]models.NewsArticle, error) {
	bare, _ := models.NormalizeSymbol(symbol)
	key := fmt.Sprintf("%snews:%s:%s:%s:%d", keyPrefix, bare, start.Format(models.DateLayout), end.Format(models.DateLayout), limit)
	return load(ctx, c, key, func(ctx context.Context) ([]models.NewsArticle, error) {
		return c.news.News(ctx, symbol, start, end, limit)
	})
}

// load serves key from the store or fetches it once for all concurrent callers.
// The shared fetch runs detached from any one caller's cancellation, bounded by
// FetchTimeout; each caller stops waiting when its own context ends.
func load[T any](ctx context.Context, c *Cached, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if raw, ok, err := c.store.Get(ctx, key); err != nil {
		c.log.WithField("key", key).Warn(fmt.Sprintf("Cache read failed: %v", err))
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		c.log.WithField("key", key).Warn("Discarding undecodable cache entry")
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		v, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(v); err == nil {
			if err := c.store.Set(fetchCtx, key, raw, c.ttl); err != nil {
				c.log.WithField("key", key).Warn(fmt.Sprintf("Cache write failed: %v", err))
			}
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
