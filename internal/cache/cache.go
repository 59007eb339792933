package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for verdict caching. Values are encoded fact
// checks keyed by normalized claim text, so identical claims across posts
// are never verified twice.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key generates a cache key from normalized claim text.
func Key(normalizedClaim string) string {
	hash := sha256.Sum256([]byte(normalizedClaim))
	return "veracity:v1:" + hex.EncodeToString(hash[:])
}
