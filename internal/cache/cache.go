// Package cache provides a small bounded TTL cache used by the resolver,
// the validator, and the rate limiter's block table.
//
// The eviction policy is deliberately simpler than LRU: entries expire a
// fixed TTL after insertion, and when the cache is full the oldest-inserted
// entry is dropped regardless of access recency. That is adequate for the
// read-heavy, short-TTL workloads this cache serves, and keeps every
// operation O(1).
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
	elem       *list.Element // position in insertion order, holds the key
}

// Cache is a concurrency-safe bounded TTL cache. The zero value is not
// usable; construct with New.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	order   *list.List // front = oldest insertion
	ttl     time.Duration
	maxSize int

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache holding at most maxSize entries, each valid for ttl
// after insertion. A ttl of zero disables expiry; maxSize must be positive.
func New[V any](maxSize int, ttl time.Duration) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache[V]{
		entries: make(map[string]*entry[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get returns the cached value for key. An entry past its TTL counts as a
// miss and is removed as a side effect of the read.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	if c.ttl > 0 && time.Since(e.insertedAt) > c.ttl {
		c.removeLocked(key, e)
		c.misses++
		return zero, false
	}

	c.hits++
	return e.value, true
}

// Set inserts or replaces the value for key. Replacing counts as a fresh
// insertion for both TTL and eviction order. When the cache is full the
// single oldest-inserted entry is evicted first.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.insertedAt = time.Now()
		c.order.MoveToBack(e.elem)
		return
	}

	if len(c.entries) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest := front.Value.(string)
			c.removeLocked(oldest, c.entries[oldest])
			c.evictions++
		}
	}

	c.entries[key] = &entry[V]{
		value:      value,
		insertedAt: time.Now(),
		elem:       c.order.PushBack(key),
	}
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeLocked(key, e)
	}
}

// Clear empties the cache and returns the number of entries removed.
func (c *Cache[V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*entry[V])
	c.order.Init()

	return n
}

// CleanupExpired removes every entry past its TTL and returns the count.
func (c *Cache[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}

	removed := 0
	for key, e := range c.entries {
		if time.Since(e.insertedAt) > c.ttl {
			c.removeLocked(key, e)
			removed++
		}
	}

	return removed
}

// Len returns the current number of entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"maxSize"`
	TTL       string  `json:"ttl"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hitRate"`
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache[V]) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      len(c.entries),
		MaxSize:   c.maxSize,
		TTL:       c.ttl.String(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}

	return s
}

func (c *Cache[V]) removeLocked(key string, e *entry[V]) {
	c.order.Remove(e.elem)
	delete(c.entries, key)
}
