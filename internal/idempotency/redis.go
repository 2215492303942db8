package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the shared idempotency cache used when multiple
// orchestrator instances serve admission requests.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a redis-backed cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) key(keyHash string) string {
	return "idem:" + keyHash
}

// Get retrieves a cached result.
func (c *RedisCache) Get(ctx context.Context, keyHash string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(keyHash)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency cache: %w", err)
	}
	return val, true, nil
}

// Put stores a result unless one exists already.
func (c *RedisCache) Put(ctx context.Context, keyHash string, result []byte) error {
	if err := c.client.SetNX(ctx, c.key(keyHash), result, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write idempotency cache: %w", err)
	}
	return nil
}
