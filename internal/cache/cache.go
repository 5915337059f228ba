// Package cache provides content-addressable memoization of search and
// generation calls so repeated iterations and retries do not re-hit
// providers. Entries carry a time-bounded validity.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/reagent/config"
)

// Cache is the shared memoization layer. It is the only resource shared
// across concurrent runs; implementations must be safe for concurrent use.
// At-least-once population is acceptable.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key builds a stable cache key from a prefix and the call inputs.
// Inputs are normalized (lowercased, whitespace collapsed) before hashing so
// trivially different spellings of the same query share an entry.
func Key(prefix string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(prefix))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(Normalize(p)))
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))
}

// Normalize lowercases s and collapses runs of whitespace to single spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// New selects a cache backend from configuration.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
