// Package limiter bounds the number of concurrently executing runs against
// a fixed pool of compute slots.
package limiter

import (
	"context"
	"errors"
	"time"
)

// ErrAcquireTimeout signals that no slot freed within the acquisition
// timeout. It is an expected outcome, not a failure: the caller decides to
// retry or queue.
var ErrAcquireTimeout = errors.New("no slot available before timeout")

// Lease is a time-bounded grant of one slot. It expires after the lock
// timeout so slots held by crashed workers are recovered.
type Lease struct {
	LeaseID   string    `json:"lease_id"`
	Slot      int       `json:"slot"`
	RunID     string    `json:"run_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Status reports capacity and occupancy for admission control and
// reporting.
type Status struct {
	Capacity int `json:"capacity"`
	InUse    int `json:"in_use"`
}

// Limiter is a counting semaphore over the slot pool. Acquire blocks until
// a slot frees or the timeout elapses (ErrAcquireTimeout).
type Limiter interface {
	Acquire(ctx context.Context, runID string, timeout time.Duration) (*Lease, error)
	Release(ctx context.Context, lease *Lease) error
	Status(ctx context.Context) (Status, error)
}
