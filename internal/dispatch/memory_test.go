package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	base := 5 * time.Second
	assert.Equal(t, 5*time.Second, Backoff(base, 1))
	assert.Equal(t, 10*time.Second, Backoff(base, 2))
	assert.Equal(t, 20*time.Second, Backoff(base, 3))
	assert.Equal(t, 40*time.Second, Backoff(base, 4))
	assert.Equal(t, 5*time.Second, Backoff(base, 0), "attempts below 1 use the base delay")
}

func TestMemoryQueueEnqueueClaimAck(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3, time.Second)

	jobID, err := q.Enqueue(ctx, "run_1")
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	job, err := q.Claim(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobID, job.JobID)
	assert.Equal(t, "run_1", job.RunID)
	assert.Equal(t, 1, job.Attempts)

	// Nothing else is ready.
	job2, err := q.Claim(ctx, "worker-2", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job2)

	require.NoError(t, q.Ack(ctx, jobID))
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestMemoryQueueClaimOrder(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3, time.Second)

	first, err := q.Enqueue(ctx, "run_1")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "run_2")
	require.NoError(t, err)

	job, err := q.Claim(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first, job.JobID, "oldest job is handed out first")
}

func TestMemoryQueueNackRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3, time.Second)

	now := time.Now()
	q.now = func() time.Time { return now }

	jobID, err := q.Enqueue(ctx, "run_1")
	require.NoError(t, err)

	job, err := q.Claim(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.Nack(ctx, job.JobID, "pod pull failed"))

	// Backed off, not yet ready.
	job, err = q.Claim(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Delayed)

	// After the backoff it is redelivered with the attempt count intact.
	now = now.Add(2 * time.Second)
	job, err = q.Claim(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobID, job.JobID)
	assert.Equal(t, 2, job.Attempts)
}

func TestMemoryQueueDeadLetterAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(2, time.Second)

	now := time.Now()
	q.now = func() time.Time { return now }

	_, err := q.Enqueue(ctx, "run_1")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		job, err := q.Claim(ctx, "worker-1", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, job, "attempt %d", i+1)
		require.NoError(t, q.Nack(ctx, job.JobID, "still broken"))
		now = now.Add(time.Minute)
	}

	job, err := q.Claim(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job, "dead-lettered job must not be redelivered")

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dead)
}

func TestMemoryQueueVisibilityTimeout(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(5, time.Second)

	now := time.Now()
	q.now = func() time.Time { return now }

	jobID, err := q.Enqueue(ctx, "run_1")
	require.NoError(t, err)

	_, err = q.Claim(ctx, "worker-1", 30*time.Second)
	require.NoError(t, err)

	// Claimed but never acked; after the visibility timeout another worker
	// gets the job.
	now = now.Add(31 * time.Second)
	job, err := q.Claim(ctx, "worker-2", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobID, job.JobID)
	assert.Equal(t, 2, job.Attempts)
}

func TestMemoryQueueNackUnknownJob(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3, time.Second)
	assert.NoError(t, q.Nack(ctx, "job_missing", "whatever"))
	assert.NoError(t, q.Ack(ctx, "job_missing"))
}
