package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type claimedJob struct {
	job       Job
	visibleAt time.Time
}

type delayedJob struct {
	job   Job
	dueAt time.Time
}

// MemoryQueue is an in-process queue for tests and single-node runs. It
// mirrors the redis queue's semantics: visibility timeouts, nack backoff
// and a dead list.
type MemoryQueue struct {
	mu          sync.Mutex
	pending     []Job
	claimed     map[string]claimedJob
	delayed     []delayedJob
	dead        []Job
	maxAttempts int
	backoffBase time.Duration
	now         func() time.Time
}

// NewMemoryQueue creates an in-memory queue.
func NewMemoryQueue(maxAttempts int, backoffBase time.Duration) *MemoryQueue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &MemoryQueue{
		claimed:     make(map[string]claimedJob),
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		now:         time.Now,
	}
}

// Enqueue appends a job for the run.
func (q *MemoryQueue) Enqueue(ctx context.Context, runID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job := Job{
		JobID:      "job_" + uuid.New().String()[:8],
		RunID:      runID,
		EnqueuedAt: q.now(),
	}
	q.pending = append(q.pending, job)
	return job.JobID, nil
}

// Claim hands out the oldest ready job.
func (q *MemoryQueue) Claim(ctx context.Context, consumer string, visibility time.Duration) (*Job, error) {
	if visibility <= 0 {
		visibility = 15 * time.Second
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.redeliverLocked()

	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	job.Attempts++
	q.claimed[job.JobID] = claimedJob{job: job, visibleAt: q.now().Add(visibility)}
	return &job, nil
}

// Ack removes a completed job.
func (q *MemoryQueue) Ack(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.claimed, jobID)
	return nil
}

// Nack schedules a retry with exponential backoff, or parks the job on the
// dead list once the attempt limit is reached.
func (q *MemoryQueue) Nack(ctx context.Context, jobID string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	claimed, ok := q.claimed[jobID]
	if !ok {
		return nil
	}
	delete(q.claimed, jobID)
	if claimed.job.Attempts >= q.maxAttempts {
		q.dead = append(q.dead, claimed.job)
		return nil
	}
	q.delayed = append(q.delayed, delayedJob{
		job:   claimed.job,
		dueAt: q.now().Add(Backoff(q.backoffBase, claimed.job.Attempts)),
	})
	return nil
}

// Stats reports queue depth.
func (q *MemoryQueue) Stats(ctx context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.redeliverLocked()
	return Stats{
		Pending:  len(q.pending),
		InFlight: len(q.claimed),
		Delayed:  len(q.delayed),
		Dead:     len(q.dead),
	}, nil
}

// redeliverLocked moves due delayed jobs and expired claims back to
// pending.
func (q *MemoryQueue) redeliverLocked() {
	now := q.now()

	var stillDelayed []delayedJob
	for _, d := range q.delayed {
		if now.After(d.dueAt) || now.Equal(d.dueAt) {
			q.pending = append(q.pending, d.job)
		} else {
			stillDelayed = append(stillDelayed, d)
		}
	}
	q.delayed = stillDelayed

	for jobID, c := range q.claimed {
		if now.After(c.visibleAt) {
			delete(q.claimed, jobID)
			if c.job.Attempts >= q.maxAttempts {
				q.dead = append(q.dead, c.job)
			} else {
				q.pending = append(q.pending, c.job)
			}
		}
	}
}
