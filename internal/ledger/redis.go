package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger stores seen-event entries in redis with a retention TTL, so
// dedup decisions hold across orchestrator instances.
type RedisLedger struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisLedger creates a redis-backed ledger.
func NewRedisLedger(client *redis.Client, retention time.Duration) *RedisLedger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisLedger{client: client, retention: retention}
}

func (l *RedisLedger) key(eventID string) string {
	return "seen:" + eventID
}

// Seen reports whether the event id has been recorded.
func (l *RedisLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dedup ledger: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records the event id. SetNX keeps the first record's run id.
func (l *RedisLedger) MarkSeen(ctx context.Context, eventID, runID string) error {
	if err := l.client.SetNX(ctx, l.key(eventID), runID, l.retention).Err(); err != nil {
		return fmt.Errorf("failed to write dedup ledger: %w", err)
	}
	return nil
}
