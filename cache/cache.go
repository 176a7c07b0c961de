package cache

import (
	"context"
	"errors"
	"strings"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrInvalidKey    = errors.New("cache: key is invalid")
	ErrKeyTooLong    = errors.New("cache: key exceeds max length")
	ErrInvalidConfig = errors.New("cache: invalid config")
	ErrInvalidRegexp = errors.New("cache: invalid pattern")
)

// Cache is the key/value contract implemented by Bounded.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Absence: Get returns (zero, false) for keys never set, deleted or expired;
// absence is not an error.
// - Ownership: values are owned by the cache after Set and must not be
// mutated by the caller.
type Cache[V any] interface {
	// Get returns the live value for key.
	Get(ctx context.Context, key string) (V, bool)

	// Set inserts or replaces key, evicting as needed to honor the bounds.
	Set(ctx context.Context, key string, value V)

	// Delete removes key and reports whether it was present.
	Delete(ctx context.Context, key string) bool

	// Has reports whether key is live without touching recency or counters.
	Has(ctx context.Context, key string) bool

	// Clear removes all entries. Counters are kept.
	Clear(ctx context.Context)

	// InvalidatePattern removes every key matched by p and returns the count.
	InvalidatePattern(ctx context.Context, p Pattern) int

	// Stats returns a snapshot of the cache counters.
	Stats() Stats
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
