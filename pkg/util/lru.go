package util

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// CacheConfig bounds an LRUCache by entry count, by total weight, or both.
type CacheConfig struct {
	// Capacity is the maximum number of entries. 0 means unbounded.
	Capacity int
	// MaxWeight is the maximum summed weight of all entries. 0 means unbounded.
	MaxWeight int
	// TTL is the default lifetime of an entry. 0 means entries never expire.
	TTL time.Duration
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	weight     int
	expiration time.Time // zero when the entry never expires
}

// LRUCache is a generic, thread-safe least-recently-used cache with optional expiry.
type LRUCache[K comparable, V any] struct {
	config        CacheConfig
	ll            *list.List
	cache         map[K]*list.Element
	currentWeight int
	lock          sync.Mutex
	now           func() time.Time
}

// NewLRU creates a cache. At least one of Capacity and MaxWeight must be set.
func NewLRU[K comparable, V any](config CacheConfig) (*LRUCache[K, V], error) {
	if config.Capacity <= 0 && config.MaxWeight <= 0 {
		return nil, fmt.Errorf("lru: one of Capacity or MaxWeight must be set")
	}
	return &LRUCache[K, V]{
		config: config,
		ll:     list.New(),
		cache:  make(map[K]*list.Element),
		now:    time.Now,
	}, nil
}

// Get returns the value under key. Expired entries are removed lazily and reported as missing.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var zero V
	element, ok := c.cache[key]
	if !ok {
		return zero, false
	}
	e := element.Value.(*entry[K, V])
	if !e.expiration.IsZero() && c.now().After(e.expiration) {
		c.removeElement(element)
		return zero, false
	}
	c.ll.MoveToFront(element)
	return e.value, true
}

// Put stores value with weight 1 and the default TTL.
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.PutWithTTL(key, value, 1, c.config.TTL)
}

// PutWithTTL stores value with an explicit weight and lifetime, evicting
// least recently used entries until the cache is back within bounds.
func (c *LRUCache[K, V]) PutWithTTL(key K, value V, weight int, ttl time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var expiration time.Time
	if ttl > 0 {
		expiration = c.now().Add(ttl)
	}

	if element, ok := c.cache[key]; ok {
		e := element.Value.(*entry[K, V])
		c.currentWeight += weight - e.weight
		e.weight = weight
		e.value = value
		e.expiration = expiration
		c.ll.MoveToFront(element)
	} else {
		element := c.ll.PushFront(&entry[K, V]{key: key, value: value, weight: weight, expiration: expiration})
		c.cache[key] = element
		c.currentWeight += weight
	}

	// A single heavy entry may push out several light ones.
	for c.isOverCapacity() {
		c.evict()
	}
}

// Delete removes key if present.
func (c *LRUCache[K, V]) Delete(key K) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if element, ok := c.cache[key]; ok {
		c.removeElement(element)
	}
}

// caller holds the lock
func (c *LRUCache[K, V]) isOverCapacity() bool {
	if c.config.Capacity > 0 && c.ll.Len() > c.config.Capacity {
		return true
	}
	return c.config.MaxWeight > 0 && c.currentWeight > c.config.MaxWeight
}

// caller holds the lock
func (c *LRUCache[K, V]) evict() {
	if back := c.ll.Back(); back != nil {
		c.removeElement(back)
	}
}

// caller holds the lock
func (c *LRUCache[K, V]) removeElement(el *list.Element) {
	c.ll.Remove(el)
	e := el.Value.(*entry[K, V])
	delete(c.cache, e.key)
	c.currentWeight -= e.weight
}

// Len returns the number of entries, including expired ones not yet collected.
func (c *LRUCache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ll.Len()
}

// Weight returns the summed weight of all entries.
func (c *LRUCache[K, V]) Weight() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.currentWeight
}
