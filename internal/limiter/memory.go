package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const acquirePollInterval = 10 * time.Millisecond

// MemoryLimiter is an in-process slot semaphore for tests and single-node
// runs. Lease expiry is evaluated lazily on each acquire/status call.
type MemoryLimiter struct {
	mu          sync.Mutex
	capacity    int
	lockTimeout time.Duration
	slots       map[int]*Lease
	now         func() time.Time
}

// NewMemoryLimiter creates an in-memory limiter.
func NewMemoryLimiter(capacity int, lockTimeout time.Duration) *MemoryLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if lockTimeout <= 0 {
		lockTimeout = 30 * time.Minute
	}
	return &MemoryLimiter{
		capacity:    capacity,
		lockTimeout: lockTimeout,
		slots:       make(map[int]*Lease),
		now:         time.Now,
	}
}

// Acquire grabs a free slot, polling until the timeout elapses.
func (l *MemoryLimiter) Acquire(ctx context.Context, runID string, timeout time.Duration) (*Lease, error) {
	deadline := l.now().Add(timeout)
	for {
		if lease := l.tryAcquire(runID); lease != nil {
			return lease, nil
		}
		if l.now().After(deadline) {
			return nil, ErrAcquireTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}
}

func (l *MemoryLimiter) tryAcquire(runID string) *Lease {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked()
	for slot := 0; slot < l.capacity; slot++ {
		if _, held := l.slots[slot]; held {
			continue
		}
		lease := &Lease{
			LeaseID:   "lease_" + uuid.New().String()[:8],
			Slot:      slot,
			RunID:     runID,
			ExpiresAt: l.now().Add(l.lockTimeout),
		}
		l.slots[slot] = lease
		return lease
	}
	return nil
}

// Release returns a slot early. Releasing an expired or unknown lease is a
// no-op.
func (l *MemoryLimiter) Release(ctx context.Context, lease *Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.slots[lease.Slot]; ok && held.LeaseID == lease.LeaseID {
		delete(l.slots, lease.Slot)
	}
	return nil
}

// Status reports capacity and current occupancy.
func (l *MemoryLimiter) Status(ctx context.Context) (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked()
	return Status{Capacity: l.capacity, InUse: len(l.slots)}, nil
}

func (l *MemoryLimiter) expireLocked() {
	now := l.now()
	for slot, lease := range l.slots {
		if now.After(lease.ExpiresAt) {
			delete(l.slots, slot)
		}
	}
}
