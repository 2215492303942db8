package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/runlab/orchestrator/internal/dispatch"
	"github.com/runlab/orchestrator/internal/domain"
	"github.com/runlab/orchestrator/internal/limiter"
)

// RunDetail is a run together with its per-stage, validation and artifact
// records.
type RunDetail struct {
	Run         *domain.Run         `json:"run"`
	Stages      []domain.Stage      `json:"stages"`
	Validations []domain.Validation `json:"validations"`
	Artifacts   []domain.Artifact   `json:"artifacts"`
}

// GetRun returns a run, or domain.ErrNotFound.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return run, nil
}

// GetRunDetail returns a run with its stages, validations and artifacts.
func (s *Service) GetRunDetail(ctx context.Context, runID string) (*RunDetail, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	stages, err := s.store.GetStages(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stages: %w", err)
	}
	validations, err := s.store.GetValidations(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get validations: %w", err)
	}
	artifacts, err := s.store.GetArtifacts(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifacts: %w", err)
	}
	return &RunDetail{Run: run, Stages: stages, Validations: validations, Artifacts: artifacts}, nil
}

// ListRuns returns recent runs, optionally filtered by hypothesis.
func (s *Service) ListRuns(ctx context.Context, hypothesisID string, limit int) ([]domain.Run, error) {
	return s.store.ListRuns(ctx, hypothesisID, limit)
}

// GetRunEvents returns the event log for a run, newest first.
func (s *Service) GetRunEvents(ctx context.Context, runID string, limit int) ([]domain.EventRecord, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return s.store.GetEvents(ctx, runID, limit)
}

// CancelRun transitions a run to CANCELED. Terminal runs surface an
// IllegalTransitionError so the handler can reject with a conflict. The
// cancellation is recorded in the event log as a synthetic event.
func (s *Service) CancelRun(ctx context.Context, runID string) (*domain.Run, error) {
	for attempt := 0; attempt < 3; attempt++ {
		run, err := s.store.GetRun(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to get run: %w", err)
		}
		if run == nil {
			return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
		}
		if run.Status == domain.RunStatusCanceled {
			return run, nil
		}
		if err := domain.AssertTransition(run.Status, domain.RunStatusCanceled); err != nil {
			return nil, err
		}

		ok, err := s.store.UpdateRunStatusIf(ctx, runID, run.Status, domain.RunStatusCanceled)
		if err != nil {
			return nil, fmt.Errorf("failed to update run status: %w", err)
		}
		if !ok {
			// An event delivery changed the status underneath us; re-read
			// and re-check the transition.
			continue
		}

		payload, _ := json.Marshal(map[string]string{"reason": "operator_cancel"})
		now := time.Now().UTC()
		record := &domain.EventRecord{
			EventID:    "evt_" + uuid.New().String(),
			RunID:      runID,
			Type:       domain.EventTypeRunCanceled,
			Source:     "orchestrator/operator",
			Payload:    payload,
			OccurredAt: now,
			ReceivedAt: now,
		}
		if err := s.store.CreateEvent(ctx, record); err != nil {
			log.Printf("WARN: failed to record cancel event for run %s: %v", runID, err)
		}

		run, err = s.store.GetRun(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to get run: %w", err)
		}
		if s.hub != nil && run != nil {
			if err := s.hub.BroadcastJSON(runID, map[string]interface{}{
				"type":   domain.EventTypeRunCanceled,
				"run_id": runID,
				"status": run.Status,
			}); err != nil {
				log.Printf("WARN: failed to broadcast cancel for run %s: %v", runID, err)
			}
		}
		return run, nil
	}
	return nil, fmt.Errorf("run %s: cancel lost the status race repeatedly", runID)
}

// HideRun marks a run hidden so it drops out of default listings.
func (s *Service) HideRun(ctx context.Context, runID string, hidden bool) error {
	ok, err := s.store.SetRunHidden(ctx, runID, hidden)
	if err != nil {
		return fmt.Errorf("failed to set run hidden: %w", err)
	}
	if !ok {
		return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return nil
}

// Capacity reports slot occupancy and queue depth.
type Capacity struct {
	Slots limiter.Status `json:"slots"`
	Queue dispatch.Stats `json:"queue"`
}

// GetCapacity returns the current slot and queue occupancy.
func (s *Service) GetCapacity(ctx context.Context) (*Capacity, error) {
	slots, err := s.limiter.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get limiter status: %w", err)
	}
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return &Capacity{Slots: slots, Queue: stats}, nil
}

// ClaimJob hands the next dispatch job to a worker, or (nil, nil) when the
// queue is empty.
func (s *Service) ClaimJob(ctx context.Context, consumer string) (*dispatch.Job, error) {
	return s.queue.Claim(ctx, consumer, s.config.QueueVisibility)
}

// AckJob acknowledges a dispatched job.
func (s *Service) AckJob(ctx context.Context, jobID string) error {
	return s.queue.Ack(ctx, jobID)
}

// NackJob returns a job for retry with backoff, or dead-letters it once the
// attempt limit is reached.
func (s *Service) NackJob(ctx context.Context, jobID, reason string) error {
	return s.queue.Nack(ctx, jobID, reason)
}

// AcquireSlot grants a worker one compute slot, blocking up to the
// configured acquisition timeout.
func (s *Service) AcquireSlot(ctx context.Context, runID string) (*limiter.Lease, error) {
	return s.limiter.Acquire(ctx, runID, s.config.AcquireTimeout)
}

// ReleaseSlot returns a leased slot to the pool.
func (s *Service) ReleaseSlot(ctx context.Context, lease *limiter.Lease) error {
	return s.limiter.Release(ctx, lease)
}
