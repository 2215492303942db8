// Package idempotency caches the serialized result of side-effecting
// admission operations so retried requests replay the original response.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultTTL is how long a cached admission result is replayed.
const DefaultTTL = 24 * time.Hour

// Cache stores serialized results keyed by a hash of the client key.
type Cache interface {
	Get(ctx context.Context, keyHash string) ([]byte, bool, error)
	// Put stores the result unless another writer already did; the first
	// completed write wins.
	Put(ctx context.Context, keyHash string, result []byte) error
}

// HashKey derives the storage key from the client-supplied idempotency key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// WithIdempotency executes createFn at most once per key within the cache
// TTL. It returns the serialized result and whether it was replayed from
// the cache.
//
// Known race: two concurrent first calls with the same key may both execute
// createFn before either has written the cache. createFn must therefore be
// safe to run twice; the SetNX-style Put makes later replays converge on a
// single stored result.
func WithIdempotency(ctx context.Context, cache Cache, key string, createFn func() ([]byte, error)) ([]byte, bool, error) {
	keyHash := HashKey(key)

	if cached, ok, err := cache.Get(ctx, keyHash); err != nil {
		return nil, false, err
	} else if ok {
		return cached, true, nil
	}

	result, err := createFn()
	if err != nil {
		return nil, false, err
	}
	if err := cache.Put(ctx, keyHash, result); err != nil {
		return nil, false, err
	}
	// Read back so concurrent first-callers all return the winning result.
	if cached, ok, err := cache.Get(ctx, keyHash); err == nil && ok {
		return cached, false, nil
	}
	return result, false, nil
}
