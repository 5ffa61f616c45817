// Package cache is a small in-process TTL cache for read-mostly data such as
// the product listing. It is best-effort only: entries are invalidated
// explicitly on write paths and expire on their own, and nothing relies on
// it for correctness.
package cache

import (
	"sync"
	"time"
)

// Clock returns the current time; injected so expiry is testable.
type Clock func() time.Time

type entry struct {
	value     interface{}
	expiresAt time.Time
}

type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     Clock
}

// New creates a cache with the given default TTL. A nil clock uses time.Now.
func New(ttl time.Duration, now Clock) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the cached value if present and not expired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores a value under the default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops a key. Write paths call this so readers never see data
// older than the last write plus the TTL.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Flush drops everything.
func (c *Cache) Flush() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}
