// Package ttlcache provides a small first-seen cache with time-based
// eviction. It backs the duplicate-transaction and duplicate-message
// suppression: a key is recorded with the timestamp it was first observed
// at, and a caller-driven sweep drops entries older than a TTL.
//
// There is no background ticker. Callers sweep opportunistically after
// inserting, which keeps the structure trivial at the cost of the cache
// transiently holding expired entries when insertions stop.
package ttlcache

import (
	"sync"
	"time"
)

type Cache[K comparable] struct {
	mu      sync.Mutex
	entries map[K]time.Time
}

func New[K comparable]() *Cache[K] {
	return &Cache[K]{entries: make(map[K]time.Time)}
}

// Put records key as seen at ts. Re-inserting an existing key refreshes
// its timestamp.
func (c *Cache[K]) Put(key K, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ts
}

// PutIfAbsent records key as seen at ts unless it is already present and
// reports whether it inserted. Check and insert happen under one lock, so
// out of any number of concurrent callers exactly one claims the key.
func (c *Cache[K]) PutIfAbsent(key K, ts time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return false
	}
	c.entries[key] = ts
	return true
}

func (c *Cache[K]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Sweep removes every entry whose recorded timestamp is older than ttl
// relative to now and returns the number removed. An entry aged exactly
// ttl is kept.
func (c *Cache[K]) Sweep(now time.Time, ttl time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, ts := range c.entries {
		if now.Sub(ts) > ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
