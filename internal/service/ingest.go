package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/runlab/orchestrator/internal/domain"
	"github.com/runlab/orchestrator/internal/event"
	"github.com/runlab/orchestrator/internal/policy"
	"github.com/runlab/orchestrator/internal/projector"
	"github.com/runlab/orchestrator/internal/store"
)

// ErrPolicyDenied signals that the source policy rejected the event.
var ErrPolicyDenied = errors.New("event rejected by source policy")

// IngestResult reports what happened to one ingested event.
type IngestResult struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"-"`
	Applied   bool   `json:"-"`
	Skipped   string `json:"-"`
}

// IngestEvent runs one event through the full pipeline: validate, policy
// check, dedup, append to the log, sequence gate, project.
//
// Consistency choice: the dedup ledger is written only after the
// projection commits. A crash in between causes a duplicate apply on
// resend, which the sequence gate neutralizes; a lost apply cannot happen.
func (s *Service) IngestEvent(ctx context.Context, raw []byte) (*IngestResult, error) {
	evt, verr := event.Decode(raw)
	if verr != nil {
		return nil, verr
	}
	return s.ingest(ctx, evt)
}

func (s *Service) ingest(ctx context.Context, evt *event.Event) (*IngestResult, error) {
	if s.policy != nil {
		decision, err := s.policy.Evaluate(ctx, policy.Input{Source: evt.Source, Type: string(evt.Type), RunID: evt.RunID})
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate source policy: %w", err)
		}
		if decision == policy.DecisionDeny {
			return nil, fmt.Errorf("%w: source %s may not emit %s", ErrPolicyDenied, evt.Source, evt.Type)
		}
	}

	seen, err := s.ledger.Seen(ctx, evt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check dedup ledger: %w", err)
	}
	if seen {
		return &IngestResult{EventID: evt.ID, Duplicate: true}, nil
	}

	run, err := s.store.GetRun(ctx, evt.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", evt.RunID, domain.ErrNotFound)
	}

	record := &domain.EventRecord{
		EventID:    evt.ID,
		RunID:      evt.RunID,
		Type:       evt.Type,
		Source:     evt.Source,
		Seq:        evt.Seq,
		Payload:    evt.RawData,
		OccurredAt: evt.Time,
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.store.CreateEvent(ctx, record); err != nil {
		// A crash between apply and mark-seen leaves the event in the log;
		// the resend must still be accepted.
		if !strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("failed to append event: %w", err)
		}
	}

	// Sequence gate: events at or below the applied sequence are kept in
	// the log for audit but never projected.
	if evt.Seq != nil && *evt.Seq <= run.LastEventSeq {
		log.Printf("INFO: run %s: event %s seq %d <= applied %d, skipping projection", run.RunID, evt.ID, *evt.Seq, run.LastEventSeq)
		if err := s.ledger.MarkSeen(ctx, evt.ID, evt.RunID); err != nil {
			return nil, fmt.Errorf("failed to mark event seen: %w", err)
		}
		return &IngestResult{EventID: evt.ID, Skipped: "out_of_order"}, nil
	}

	res, err := projector.Project(*run, evt)
	if err != nil {
		return nil, fmt.Errorf("failed to project event: %w", err)
	}
	if res.IllegalTransition != nil {
		// A late or malformed event must never crash ingestion; the status
		// stays put and the event remains in the log.
		log.Printf("WARN: run %s: event %s (%s): %v, status unchanged", run.RunID, evt.ID, evt.Type, res.IllegalTransition)
	}
	if res.Validation != nil {
		res.Validation.ValidationID = "val_" + uuid.New().String()[:8]
	}
	if res.Artifact != nil {
		res.Artifact.ArtifactID = "art_" + uuid.New().String()[:8]
	}

	applied, err := s.store.ApplyProjection(ctx, &store.ProjectionUpdate{
		Run:        res.Run,
		Stage:      res.Stage,
		Validation: res.Validation,
		Artifact:   res.Artifact,
		Seq:        evt.Seq,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply projection: %w", err)
	}
	if !applied {
		// A concurrent delivery advanced the run past this sequence while
		// we were projecting. Same outcome as the gate above.
		log.Printf("INFO: run %s: event %s lost the sequence race, skipping projection", run.RunID, evt.ID)
		if err := s.ledger.MarkSeen(ctx, evt.ID, evt.RunID); err != nil {
			return nil, fmt.Errorf("failed to mark event seen: %w", err)
		}
		return &IngestResult{EventID: evt.ID, Skipped: "sequence_conflict"}, nil
	}

	if err := s.ledger.MarkSeen(ctx, evt.ID, evt.RunID); err != nil {
		return nil, fmt.Errorf("failed to mark event seen: %w", err)
	}

	if s.hub != nil {
		if err := s.hub.BroadcastJSON(run.RunID, map[string]interface{}{
			"event_id": evt.ID,
			"type":     evt.Type,
			"run_id":   run.RunID,
			"status":   res.Run.Status,
		}); err != nil {
			log.Printf("WARN: failed to broadcast event %s: %v", evt.ID, err)
		}
	}

	return &IngestResult{EventID: evt.ID, Applied: true}, nil
}
