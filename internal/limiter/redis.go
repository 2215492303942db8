package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes a slot key only if it is still held by the given
// lease, so a lease that already expired and was re-granted is not revoked.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLimiter implements the slot semaphore on redis so occupancy is
// shared across orchestrator instances and worker processes. Each slot is
// one key whose TTL is the lock timeout; crashed holders are recovered by
// key expiry.
type RedisLimiter struct {
	client      *redis.Client
	prefix      string
	capacity    int
	lockTimeout time.Duration
	poll        time.Duration
}

// NewRedisLimiter creates a redis-backed limiter.
func NewRedisLimiter(client *redis.Client, capacity int, lockTimeout time.Duration) *RedisLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if lockTimeout <= 0 {
		lockTimeout = 30 * time.Minute
	}
	return &RedisLimiter{
		client:      client,
		prefix:      "slots",
		capacity:    capacity,
		lockTimeout: lockTimeout,
		poll:        250 * time.Millisecond,
	}
}

func (l *RedisLimiter) slotKey(slot int) string {
	return fmt.Sprintf("%s:%d", l.prefix, slot)
}

// Acquire claims a free slot, retrying until the timeout elapses.
func (l *RedisLimiter) Acquire(ctx context.Context, runID string, timeout time.Duration) (*Lease, error) {
	deadline := time.Now().Add(timeout)
	for {
		lease, err := l.tryAcquire(ctx, runID)
		if err != nil {
			return nil, err
		}
		if lease != nil {
			return lease, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrAcquireTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

func (l *RedisLimiter) tryAcquire(ctx context.Context, runID string) (*Lease, error) {
	leaseID := "lease_" + uuid.New().String()[:8]
	for slot := 0; slot < l.capacity; slot++ {
		ok, err := l.client.SetNX(ctx, l.slotKey(slot), leaseID, l.lockTimeout).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to claim slot: %w", err)
		}
		if ok {
			return &Lease{
				LeaseID:   leaseID,
				Slot:      slot,
				RunID:     runID,
				ExpiresAt: time.Now().Add(l.lockTimeout),
			}, nil
		}
	}
	return nil, nil
}

// Release frees a slot if this lease still holds it.
func (l *RedisLimiter) Release(ctx context.Context, lease *Lease) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.slotKey(lease.Slot)}, lease.LeaseID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	return nil
}

// Status counts currently held slots.
func (l *RedisLimiter) Status(ctx context.Context) (Status, error) {
	keys := make([]string, l.capacity)
	for slot := 0; slot < l.capacity; slot++ {
		keys[slot] = l.slotKey(slot)
	}
	n, err := l.client.Exists(ctx, keys...).Result()
	if err != nil {
		return Status{}, fmt.Errorf("failed to read slot occupancy: %w", err)
	}
	return Status{Capacity: l.capacity, InUse: int(n)}, nil
}
