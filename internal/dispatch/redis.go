package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue on redis. Layout:
//
//	<key>:pending  list  - jobs ready to claim
//	<key>:claims   hash  - job id -> serialized job, while in flight
//	<key>:visible  zset  - job id scored by visibility deadline (unix ms)
//	<key>:delayed  zset  - serialized job scored by retry due time (unix ms)
//	<key>:dead     list  - jobs past the attempt limit
type RedisQueue struct {
	client      *redis.Client
	key         string
	maxAttempts int
	backoffBase time.Duration
}

// NewRedisQueue creates a redis-backed queue.
func NewRedisQueue(client *redis.Client, key string, maxAttempts int, backoffBase time.Duration) *RedisQueue {
	if key == "" {
		key = "dispatch"
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &RedisQueue{client: client, key: key, maxAttempts: maxAttempts, backoffBase: backoffBase}
}

func (q *RedisQueue) pendingKey() string { return q.key + ":pending" }
func (q *RedisQueue) claimsKey() string  { return q.key + ":claims" }
func (q *RedisQueue) visibleKey() string { return q.key + ":visible" }
func (q *RedisQueue) delayedKey() string { return q.key + ":delayed" }
func (q *RedisQueue) deadKey() string    { return q.key + ":dead" }

// Enqueue appends a job for the run.
func (q *RedisQueue) Enqueue(ctx context.Context, runID string) (string, error) {
	job := Job{
		JobID:      "job_" + uuid.New().String()[:8],
		RunID:      runID,
		EnqueuedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.pendingKey(), raw).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.JobID, nil
}

// Claim redelivers overdue work, then hands out the oldest pending job.
func (q *RedisQueue) Claim(ctx context.Context, consumer string, visibility time.Duration) (*Job, error) {
	if visibility <= 0 {
		visibility = 15 * time.Second
	}
	if err := q.redeliver(ctx); err != nil {
		return nil, err
	}

	raw, err := q.client.RPop(ctx, q.pendingKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// Undecodable entries go straight to the dead list.
		_ = q.client.LPush(ctx, q.deadKey(), raw).Err()
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	job.Attempts++

	updated, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	visibleAt := time.Now().Add(visibility).UnixMilli()
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.claimsKey(), job.JobID, updated)
	pipe.ZAdd(ctx, q.visibleKey(), redis.Z{Score: float64(visibleAt), Member: job.JobID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to record claim: %w", err)
	}
	return &job, nil
}

// Ack removes a completed job.
func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.claimsKey(), jobID)
	pipe.ZRem(ctx, q.visibleKey(), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// Nack schedules a retry with exponential backoff, or parks the job on the
// dead list once the attempt limit is reached.
func (q *RedisQueue) Nack(ctx context.Context, jobID string, reason string) error {
	raw, err := q.client.HGet(ctx, q.claimsKey(), jobID).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read claim: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return fmt.Errorf("failed to decode job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.claimsKey(), jobID)
	pipe.ZRem(ctx, q.visibleKey(), jobID)
	if job.Attempts >= q.maxAttempts {
		pipe.LPush(ctx, q.deadKey(), raw)
	} else {
		dueAt := time.Now().Add(Backoff(q.backoffBase, job.Attempts)).UnixMilli()
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(dueAt), Member: raw})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to nack job: %w", err)
	}
	return nil
}

// Stats reports queue depth.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	if err := q.redeliver(ctx); err != nil {
		return Stats{}, err
	}
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.pendingKey())
	inFlight := pipe.HLen(ctx, q.claimsKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	dead := pipe.LLen(ctx, q.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return Stats{
		Pending:  int(pending.Val()),
		InFlight: int(inFlight.Val()),
		Delayed:  int(delayed.Val()),
		Dead:     int(dead.Val()),
	}, nil
}

// redeliver moves due delayed jobs and expired claims back to pending.
func (q *RedisQueue) redeliver(ctx context.Context) error {
	nowMs := strconv.FormatInt(time.Now().UnixMilli(), 10)

	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{Min: "-inf", Max: nowMs}).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read delayed jobs: %w", err)
	}
	for _, raw := range due {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.delayedKey(), raw)
		pipe.LPush(ctx, q.pendingKey(), raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to redeliver delayed job: %w", err)
		}
	}

	expired, err := q.client.ZRangeByScore(ctx, q.visibleKey(), &redis.ZRangeBy{Min: "-inf", Max: nowMs}).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read expired claims: %w", err)
	}
	for _, jobID := range expired {
		raw, err := q.client.HGet(ctx, q.claimsKey(), jobID).Result()
		if err == redis.Nil {
			q.client.ZRem(ctx, q.visibleKey(), jobID)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read expired claim: %w", err)
		}
		var job Job
		dest := q.pendingKey()
		if json.Unmarshal([]byte(raw), &job) == nil && job.Attempts >= q.maxAttempts {
			dest = q.deadKey()
		}
		pipe := q.client.TxPipeline()
		pipe.HDel(ctx, q.claimsKey(), jobID)
		pipe.ZRem(ctx, q.visibleKey(), jobID)
		pipe.LPush(ctx, dest, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to redeliver expired claim: %w", err)
		}
	}
	return nil
}
