// Package event validates inbound event envelopes and decodes their
// type-specific payloads against a closed catalog.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/runlab/orchestrator/internal/domain"
)

// Envelope is the fixed 1.0-format wrapper every inbound event arrives in.
type Envelope struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject"`
	Time            string          `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
	Extensions      *Extensions     `json:"extensions,omitempty"`
}

// Extensions is the optional envelope extension block.
type Extensions struct {
	Seq         *int64 `json:"seq,omitempty"`
	TraceParent string `json:"traceparent,omitempty"`
}

// ValidationError names the first violated field and the shape that was
// expected there.
type ValidationError struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: expected %s", e.Field, e.Expected)
}

// Event is a validated, typed event ready for ingestion.
type Event struct {
	ID          string
	Source      string
	RunID       string
	Type        domain.EventType
	Time        time.Time
	Seq         *int64
	TraceParent string
	Payload     Payload
	RawData     json.RawMessage
}

// Payload is the closed union of per-type event payloads.
type Payload interface {
	validate() *ValidationError
}

// Decode validates a raw envelope and its payload. It is a pure function:
// either a typed event or a structured validation failure, no side effects.
func Decode(raw []byte) (*Event, *ValidationError) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ValidationError{Field: "(body)", Expected: "a JSON object"}
	}
	return DecodeEnvelope(&env)
}

// DecodeEnvelope validates an already-parsed envelope.
func DecodeEnvelope(env *Envelope) (*Event, *ValidationError) {
	if env.SpecVersion != "1.0" {
		return nil, &ValidationError{Field: "specversion", Expected: `"1.0"`}
	}
	if env.ID == "" {
		return nil, &ValidationError{Field: "id", Expected: "a non-empty event identifier"}
	}
	if env.Source == "" {
		return nil, &ValidationError{Field: "source", Expected: "a non-empty source"}
	}
	newPayload, ok := catalog[env.Type]
	if !ok {
		return nil, &ValidationError{Field: "type", Expected: "a registered event type"}
	}
	runID, ok := strings.CutPrefix(env.Subject, "run/")
	if !ok || runID == "" {
		return nil, &ValidationError{Field: "subject", Expected: `"run/{run_id}"`}
	}
	ts, err := time.Parse(time.RFC3339, env.Time)
	if err != nil {
		return nil, &ValidationError{Field: "time", Expected: "an RFC3339 timestamp"}
	}
	if env.DataContentType != "application/json" {
		return nil, &ValidationError{Field: "datacontenttype", Expected: `"application/json"`}
	}

	evt := &Event{
		ID:      env.ID,
		Source:  env.Source,
		RunID:   runID,
		Type:    domain.EventType(env.Type),
		Time:    ts,
		RawData: env.Data,
	}
	if env.Extensions != nil {
		if env.Extensions.Seq != nil {
			if *env.Extensions.Seq <= 0 {
				return nil, &ValidationError{Field: "extensions.seq", Expected: "a positive integer"}
			}
			evt.Seq = env.Extensions.Seq
		}
		evt.TraceParent = env.Extensions.TraceParent
	}

	payload := newPayload()
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return nil, &ValidationError{Field: "data", Expected: "a JSON object matching the " + env.Type + " schema"}
		}
	}
	if verr := payload.validate(); verr != nil {
		return nil, verr
	}
	evt.Payload = payload
	return evt, nil
}
