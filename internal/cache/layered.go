package cache

import "time"

// LayeredCache fronts the disk verdict cache with a memory layer. Memory
// answers the hot path; disk keeps verdicts across restarts. An empty
// directory disables the disk layer entirely, leaving memory-only caching.
type LayeredCache struct {
	memory Cache
	disk   Cache // nil when no directory is configured
}

// NewLayeredCache creates the verdict cache stack.
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	lc := &LayeredCache{memory: NewMemoryCache(memoryTTL, 10*time.Minute)}
	if diskDir != "" {
		lc.disk = NewDiskCache(diskDir, diskTTL)
	}
	return lc
}

// Get checks memory first, then disk. Disk hits are promoted to memory so
// repeated claims stop paying the file read.
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}
	if c.disk == nil {
		return nil, false
	}
	val, found := c.disk.Get(key)
	if !found {
		return nil, false
	}
	_ = c.memory.Set(key, val, 0)
	return val, true
}

// Set stores the verdict in every configured layer.
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}
	if c.disk == nil {
		return nil
	}
	return c.disk.Set(key, value, ttl)
}

// Delete removes the key from every configured layer.
func (c *LayeredCache) Delete(key string) error {
	_ = c.memory.Delete(key)
	if c.disk != nil {
		_ = c.disk.Delete(key)
	}
	return nil
}

// Clear empties every configured layer.
func (c *LayeredCache) Clear() error {
	_ = c.memory.Clear()
	if c.disk != nil {
		_ = c.disk.Clear()
	}
	return nil
}
