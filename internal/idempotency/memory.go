package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	result    []byte
	expiresAt time.Time
}

// MemoryCache is an in-process cache for tests and single-node runs.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a cached result.
func (c *MemoryCache) Get(ctx context.Context, keyHash string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[keyHash]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, keyHash)
		return nil, false, nil
	}
	return entry.result, true, nil
}

// Put stores a result unless an unexpired one exists already.
func (c *MemoryCache) Put(ctx context.Context, keyHash string, result []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[keyHash]; ok && c.now().Before(entry.expiresAt) {
		return nil
	}
	c.entries[keyHash] = memoryEntry{result: result, expiresAt: c.now().Add(c.ttl)}
	return nil
}
