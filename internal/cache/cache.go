// Package cache provides a freshness cache: entries expire independently
// by TTL and there is no size bound or eviction policy beyond that.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	data     V
	storedAt time.Time
	ttl      time.Duration
}

func (e entry[V]) fresh(now time.Time) bool {
	return now.Sub(e.storedAt) <= e.ttl
}

// Cache is a key-value store with per-entry TTL expiry. Expired entries
// are purged lazily on read and may be purged eagerly with Prune.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// Get returns the value for key if it is still fresh. An expired entry is
// removed and counts as a miss; stale data is never returned.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && e.fresh(c.now()) {
		c.hits++
		return e.data, true
	}
	if ok {
		delete(c.entries, key)
	}
	c.misses++
	var zero V
	return zero, false
}

// Set stores value under key with the given TTL, replacing any prior entry.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{data: value, storedAt: c.now(), ttl: ttl}
}

// Has reports whether a fresh entry exists for key, removing it if expired.
// Has does not touch the hit/miss counters.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if !e.fresh(c.now()) {
		delete(c.entries, key)
		return false
	}
	return true
}

// Prune eagerly removes every expired entry and returns how many were removed.
func (c *Cache[V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !e.fresh(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the monotonic hit and miss counters.
func (c *Cache[V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Clear drops all entries and resets the counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
	c.hits = 0
	c.misses = 0
}
