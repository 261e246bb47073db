// SPDX-License-Identifier: MIT

// Package cache provides a small in-memory cache with per-entry TTL, used for
// resolved video metadata.
package cache

import (
	"sync"
	"time"
)

// Cache is a thread-safe key/value store with expiry.
type Cache interface {
	// Get retrieves a value. The second return is false if the key is absent
	// or expired.
	Get(key string) (any, bool)
	// Set stores a value with the given TTL.
	Set(key string, value any, ttl time.Duration)
	// Delete removes a value.
	Delete(key string)
	// Stats returns hit/miss counters and the current entry count.
	Stats() Stats
}

// Stats holds cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

type entry struct {
	value     any
	expiresAt time.Time
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	hits    int64
	misses  int64
	evicted int64
	stop    chan struct{}
	once    sync.Once
}

// NewMemory creates an in-memory cache. If cleanupInterval is positive a
// background janitor removes expired entries; Stop terminates it.
func NewMemory(cleanupInterval time.Duration) *memoryCache {
	c := &memoryCache{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *memoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return e.value, true
}

func (c *memoryCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evicted,
		Size:      len(c.entries),
	}
}

// Stop terminates the janitor goroutine. Idempotent.
func (c *memoryCache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *memoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *memoryCache) deleteExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			c.evicted++
		}
	}
}

// NewNoop returns a cache that stores nothing, used when caching is disabled.
func NewNoop() Cache {
	return noopCache{}
}

type noopCache struct{}

func (noopCache) Get(string) (any, bool)             { return nil, false }
func (noopCache) Set(string, any, time.Duration)     {}
func (noopCache) Delete(string)                      {}
func (noopCache) Stats() Stats                       { return Stats{} }
