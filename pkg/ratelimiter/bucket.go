package ratelimiter

import (
	"sync"
	"time"
)

// TokenBucket refills rate tokens per second up to capacity; each request spends one.
// Bursts up to capacity pass immediately.
type TokenBucket struct {
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
	now      clock
	mutex    sync.Mutex
}

func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return newTokenBucket(rate, capacity, time.Now)
}

func newTokenBucket(rate float64, capacity int, now clock) *TokenBucket {
	return &TokenBucket{
		rate:     rate,
		capacity: float64(capacity),
		tokens:   float64(capacity),
		last:     now(),
		now:      now,
	}
}

func (tb *TokenBucket) Allow() bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	now := tb.now()
	if elapsed := now.Sub(tb.last); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed.Seconds()*tb.rate)
		tb.last = now
	}
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// LeakyBucket admits a request while the bucket has room; the level drains
// at rate per second, smoothing bursts into a steady flow.
type LeakyBucket struct {
	rate     float64
	capacity float64
	level    float64
	last     time.Time
	now      clock
	mutex    sync.Mutex
}

func NewLeakyBucket(rate float64, capacity int) *LeakyBucket {
	return newLeakyBucket(rate, capacity, time.Now)
}

func newLeakyBucket(rate float64, capacity int, now clock) *LeakyBucket {
	return &LeakyBucket{rate: rate, capacity: float64(capacity), last: now(), now: now}
}

func (lb *LeakyBucket) Allow() bool {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	now := lb.now()
	if elapsed := now.Sub(lb.last); elapsed > 0 {
		lb.level = max(0, lb.level-elapsed.Seconds()*lb.rate)
		lb.last = now
	}
	if lb.level < lb.capacity {
		lb.level++
		return true
	}
	return false
}
