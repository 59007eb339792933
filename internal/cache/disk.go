package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DiskCache persists verdicts as one file per claim key so cached
// verification work survives process restarts between sweep runs.
type DiskCache struct {
	dir string
	ttl time.Duration
}

// NewDiskCache creates a disk verdict cache rooted at dir. The directory
// is created on first write.
func NewDiskCache(dir string, ttl time.Duration) *DiskCache {
	return &DiskCache{dir: dir, ttl: ttl}
}

type diskEntry struct {
	Verdict   []byte    `json:"verdict"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get returns the verdict bytes for a claim key. Expired entries are
// removed on read.
func (c *DiskCache) Get(key string) ([]byte, bool) {
	raw, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	var entry diskEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(c.path(key))
		return nil, false
	}
	return entry.Verdict, true
}

// Set writes the verdict under the claim key. The write goes through a
// temp file and rename so a crashed process never leaves a torn entry.
func (c *DiskCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	raw, err := json.Marshal(diskEntry{Verdict: value, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("encode verdict entry: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create verdict cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, "verdict-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write verdict entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close verdict entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store verdict entry: %w", err)
	}
	return nil
}

// Delete removes one claim key.
func (c *DiskCache) Delete(key string) error {
	return os.Remove(c.path(key))
}

// Clear removes the whole cache directory.
func (c *DiskCache) Clear() error {
	return os.RemoveAll(c.dir)
}

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.dir, key+".verdict")
}
