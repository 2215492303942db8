// Package dispatch hands "start this run" jobs to external workers through
// a durable, at-least-once work queue with bounded retries.
package dispatch

import (
	"context"
	"time"
)

// Job is one unit of dispatch work.
type Job struct {
	JobID      string    `json:"job_id"`
	RunID      string    `json:"run_id"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Stats reports queue depth for operator visibility.
type Stats struct {
	Pending  int `json:"pending"`
	InFlight int `json:"in_flight"`
	Delayed  int `json:"delayed"`
	Dead     int `json:"dead"`
}

// Queue delivers jobs at least once. A claimed job that is neither acked
// nor nacked becomes redeliverable once its visibility timeout passes.
// Nacked jobs are retried with exponential backoff until the attempt limit,
// then parked on the dead list for operator attention.
type Queue interface {
	Enqueue(ctx context.Context, runID string) (string, error)
	// Claim returns (nil, nil) when no job is ready.
	Claim(ctx context.Context, consumer string, visibility time.Duration) (*Job, error)
	Ack(ctx context.Context, jobID string) error
	Nack(ctx context.Context, jobID string, reason string) error
	Stats(ctx context.Context) (Stats, error)
}

// Backoff returns the retry delay before the given attempt (1-based):
// base, 2*base, 4*base, ...
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
