// Package ledger records which event identifiers have already been
// processed, so redelivered events can be short-circuited.
package ledger

import (
	"context"
	"time"
)

// DefaultRetention bounds the ledger's size while comfortably exceeding
// plausible producer retry windows.
const DefaultRetention = 7 * 24 * time.Hour

// Ledger is the deduplication ledger. MarkSeen is an idempotent insert: a
// second mark of the same event id must not overwrite the first record's
// run id.
type Ledger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID, runID string) error
}
