package ratelimiter

import (
	"container/list"
	"sync"
	"time"
)

// FixedWindowCounter allows limit requests per window, resetting at window boundaries.
type FixedWindowCounter struct {
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	now         clock
	mutex       sync.Mutex
}

func NewFixedWindowCounter(limit int, window time.Duration) *FixedWindowCounter {
	return newFixedWindowCounter(limit, window, time.Now)
}

func newFixedWindowCounter(limit int, window time.Duration, now clock) *FixedWindowCounter {
	return &FixedWindowCounter{limit: limit, window: window, windowStart: now(), now: now}
}

func (f *FixedWindowCounter) Allow() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	now := f.now()
	if !now.Before(f.windowStart.Add(f.window)) {
		f.windowStart = now
		f.count = 0
	}
	if f.count < f.limit {
		f.count++
		return true
	}
	return false
}

// SlidingWindowLog remembers each admitted request's time and allows at most
// limit of them inside any trailing window.
type SlidingWindowLog struct {
	limit  int
	window time.Duration
	log    *list.List
	now    clock
	mutex  sync.Mutex
}

func NewSlidingWindowLog(limit int, window time.Duration) *SlidingWindowLog {
	return newSlidingWindowLog(limit, window, time.Now)
}

func newSlidingWindowLog(limit int, window time.Duration, now clock) *SlidingWindowLog {
	return &SlidingWindowLog{limit: limit, window: window, log: list.New(), now: now}
}

func (s *SlidingWindowLog) Allow() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	boundary := now.Add(-s.window)
	for e := s.log.Front(); e != nil && !e.Value.(time.Time).After(boundary); e = s.log.Front() {
		s.log.Remove(e)
	}
	if s.log.Len() < s.limit {
		s.log.PushBack(now)
		return true
	}
	return false
}

// SlidingWindowCounter splits the window into buckets and sums the live ones.
// It trades the log's exactness for constant memory.
type SlidingWindowCounter struct {
	limit      int
	numBuckets int
	bucketSize time.Duration
	buckets    []int
	current    int
	last       time.Time
	now        clock
	mutex      sync.Mutex
}

// NewSlidingWindowCounter defaults numBuckets to 10 when it is not positive.
func NewSlidingWindowCounter(limit int, window time.Duration, numBuckets int) *SlidingWindowCounter {
	return newSlidingWindowCounter(limit, window, numBuckets, time.Now)
}

func newSlidingWindowCounter(limit int, window time.Duration, numBuckets int, now clock) *SlidingWindowCounter {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	size := window / time.Duration(numBuckets)
	if size <= 0 {
		size = time.Nanosecond
	}
	return &SlidingWindowCounter{
		limit:      limit,
		numBuckets: numBuckets,
		bucketSize: size,
		buckets:    make([]int, numBuckets),
		last:       now(),
		now:        now,
	}
}

func (s *SlidingWindowCounter) slide() {
	now := s.now()
	steps := int(now.Sub(s.last) / s.bucketSize)
	if steps <= 0 {
		return
	}
	if steps >= s.numBuckets {
		clear(s.buckets)
	} else {
		for i := 1; i <= steps; i++ {
			s.buckets[(s.current+i)%s.numBuckets] = 0
		}
	}
	s.current = (s.current + steps) % s.numBuckets
	s.last = s.last.Add(time.Duration(steps) * s.bucketSize)
}

func (s *SlidingWindowCounter) Allow() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.slide()
	total := 0
	for _, c := range s.buckets {
		total += c
	}
	if total < s.limit {
		s.buckets[s.current]++
		return true
	}
	return false
}
