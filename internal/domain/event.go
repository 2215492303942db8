package domain

import (
	"encoding/json"
	"time"
)

// EventRecord is an immutable entry in the append-only event log. The
// EventID is assigned by the producer and doubles as the dedup key. Seq is
// nil for heartbeat-class events that carry no sequence number.
type EventRecord struct {
	EventID    string          `json:"event_id"`
	RunID      string          `json:"run_id"`
	Type       EventType       `json:"type"`
	Source     string          `json:"source"`
	Seq        *int64          `json:"seq,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	ReceivedAt time.Time       `json:"received_at"`
}
