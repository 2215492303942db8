package ledger

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	runID     string
	expiresAt time.Time
}

// MemoryLedger is an in-process ledger for tests and single-node runs.
type MemoryLedger struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	retention time.Duration
	now       func() time.Time
}

// NewMemoryLedger creates an in-memory ledger.
func NewMemoryLedger(retention time.Duration) *MemoryLedger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryLedger{
		entries:   make(map[string]memoryEntry),
		retention: retention,
		now:       time.Now,
	}
}

// Seen reports whether the event id has an unexpired entry.
func (l *MemoryLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[eventID]
	if !ok {
		return false, nil
	}
	if l.now().After(entry.expiresAt) {
		delete(l.entries, eventID)
		return false, nil
	}
	return true, nil
}

// MarkSeen records the event id, keeping an existing unexpired entry.
func (l *MemoryLedger) MarkSeen(ctx context.Context, eventID, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.entries[eventID]; ok && l.now().Before(entry.expiresAt) {
		return nil
	}
	l.entries[eventID] = memoryEntry{runID: runID, expiresAt: l.now().Add(l.retention)}
	return nil
}
