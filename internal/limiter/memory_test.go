package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterAcquireRelease(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(2, time.Minute)

	a, err := l.Acquire(ctx, "run_a", 50*time.Millisecond)
	require.NoError(t, err)
	b, err := l.Acquire(ctx, "run_b", 50*time.Millisecond)
	require.NoError(t, err)
	assert.NotEqual(t, a.Slot, b.Slot)

	status, err := l.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Capacity: 2, InUse: 2}, status)

	// Pool exhausted.
	_, err = l.Acquire(ctx, "run_c", 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrAcquireTimeout)

	require.NoError(t, l.Release(ctx, a))
	c, err := l.Acquire(ctx, "run_c", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, a.Slot, c.Slot)
}

func TestMemoryLimiterBlocksUntilFree(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, time.Minute)

	lease, err := l.Acquire(ctx, "run_a", 50*time.Millisecond)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		l.Release(context.Background(), lease)
	}()

	got, err := l.Acquire(ctx, "run_b", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "run_b", got.RunID)
}

func TestMemoryLimiterLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, time.Minute)

	now := time.Now()
	l.now = func() time.Time { return now }

	_, err := l.Acquire(ctx, "run_a", 0)
	require.NoError(t, err)

	// A crashed holder never releases; the lock timeout recovers the slot.
	now = now.Add(2 * time.Minute)
	lease, err := l.Acquire(ctx, "run_b", 0)
	require.NoError(t, err)
	assert.Equal(t, "run_b", lease.RunID)

	status, err := l.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.InUse)
}

func TestMemoryLimiterReleaseStaleLease(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, time.Minute)

	now := time.Now()
	l.now = func() time.Time { return now }

	old, err := l.Acquire(ctx, "run_a", 0)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	fresh, err := l.Acquire(ctx, "run_b", 0)
	require.NoError(t, err)

	// Releasing the expired lease must not revoke the fresh one.
	require.NoError(t, l.Release(ctx, old))
	status, err := l.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.InUse)

	require.NoError(t, l.Release(ctx, fresh))
	status, err = l.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.InUse)
}

func TestMemoryLimiterAcquireContextCanceled(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	_, err := l.Acquire(context.Background(), "run_a", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = l.Acquire(ctx, "run_b", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
