package ratelimiter

import (
	"fmt"
	"sync"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/pkg/util"
)

// RateLimiter decides whether one more request may pass right now.
type RateLimiter interface {
	Allow() bool
}

// clock is swapped in tests.
type clock func() time.Time

// FromConfig builds the limiter named by cfg.Algorithm, defaulting to tokenBucket.
func FromConfig(cfg config.RateLimiterConfig) (RateLimiter, error) {
	f, err := Factory(cfg)
	if err != nil {
		return nil, err
	}
	return f(), nil
}

// Factory returns a constructor for fresh limiters of the configured
// algorithm. PerKey uses it to give every caller its own budget.
func Factory(cfg config.RateLimiterConfig) (func() RateLimiter, error) {
	switch cfg.Algorithm {
	case "", "tokenBucket":
		c := cfg.TokenBucket
		if c.Rate <= 0 || c.Capacity <= 0 {
			return nil, fmt.Errorf("tokenBucket needs positive rate and capacity")
		}
		return func() RateLimiter { return NewTokenBucket(c.Rate, c.Capacity) }, nil
	case "leakyBucket":
		c := cfg.LeakyBucket
		if c.Rate <= 0 || c.Capacity <= 0 {
			return nil, fmt.Errorf("leakyBucket needs positive rate and capacity")
		}
		return func() RateLimiter { return NewLeakyBucket(c.Rate, c.Capacity) }, nil
	case "fixedWindow":
		window, err := time.ParseDuration(cfg.FixedWindow.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid fixedWindow duration: %w", err)
		}
		limit := cfg.FixedWindow.Limit
		return func() RateLimiter { return NewFixedWindowCounter(limit, window) }, nil
	case "slidingLog":
		window, err := time.ParseDuration(cfg.SlidingLog.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid slidingLog duration: %w", err)
		}
		limit := cfg.SlidingLog.Limit
		return func() RateLimiter { return NewSlidingWindowLog(limit, window) }, nil
	case "slidingCounter":
		window, err := time.ParseDuration(cfg.SlidingCounter.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid slidingCounter duration: %w", err)
		}
		limit, buckets := cfg.SlidingCounter.Limit, cfg.SlidingCounter.NumBuckets
		return func() RateLimiter { return NewSlidingWindowCounter(limit, window, buckets) }, nil
	default:
		return nil, fmt.Errorf("unknown rate limiter algorithm: %s", cfg.Algorithm)
	}
}

// DefaultMaxKeys bounds how many callers PerKey tracks at once.
const DefaultMaxKeys = 10000

// PerKey keeps an independent limiter per caller key (API key or client IP).
// Idle keys are evicted least-recently-used first.
type PerKey struct {
	mu         sync.Mutex
	newLimiter func() RateLimiter
	limiters   *util.LRUCache[string, RateLimiter]
}

func NewPerKey(newLimiter func() RateLimiter, maxKeys int) (*PerKey, error) {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	cache, err := util.NewLRU[string, RateLimiter](util.CacheConfig{Capacity: maxKeys})
	if err != nil {
		return nil, err
	}
	return &PerKey{newLimiter: newLimiter, limiters: cache}, nil
}

// AllowKey reports whether key still has budget.
func (p *PerKey) AllowKey(key string) bool {
	p.mu.Lock()
	l, ok := p.limiters.Get(key)
	if !ok {
		l = p.newLimiter()
		p.limiters.Put(key, l)
	}
	p.mu.Unlock()
	return l.Allow()
}
