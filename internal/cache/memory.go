package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache holds encoded verdicts in process memory. It is the first
// layer consulted on every claim; entries expire on their TTL and are
// reaped by the background janitor.
type MemoryCache struct {
	entries *gocache.Cache
}

// NewMemoryCache creates a memory verdict cache. defaultTTL applies to
// entries stored with a zero TTL; cleanupInterval is the janitor period.
func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{entries: gocache.New(defaultTTL, cleanupInterval)}
}

// Get returns the cached verdict bytes for a claim key.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	val, found := c.entries.Get(key)
	if !found {
		return nil, false
	}
	return val.([]byte), true
}

// Set stores verdict bytes under the claim key. A zero ttl uses the
// cache default.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	c.entries.Set(key, value, ttl)
	return nil
}

// Delete drops one claim key.
func (c *MemoryCache) Delete(key string) error {
	c.entries.Delete(key)
	return nil
}

// Clear drops every cached verdict.
func (c *MemoryCache) Clear() error {
	c.entries.Flush()
	return nil
}
