package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/runlab/orchestrator/internal/domain"
	"github.com/runlab/orchestrator/internal/idempotency"
)

// AdmitRun creates a run for the hypothesis and enqueues a dispatch job.
// Retried requests carrying the same idempotency key replay the original
// serialized run byte for byte instead of creating a second run.
func (s *Service) AdmitRun(ctx context.Context, hypothesisID, idemKey string) ([]byte, bool, error) {
	createFn := func() ([]byte, error) {
		now := time.Now().UTC()
		run := &domain.Run{
			RunID:        "run_" + uuid.New().String()[:8],
			HypothesisID: hypothesisID,
			Status:       domain.RunStatusQueued,
			StageTiming:  map[string]domain.StageTiming{},
			Metrics:      map[string]float64{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.store.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}

		jobID, err := s.queue.Enqueue(ctx, run.RunID)
		if err != nil {
			return nil, fmt.Errorf("failed to enqueue dispatch job: %w", err)
		}
		log.Printf("INFO: admitted run %s for hypothesis %s (job %s)", run.RunID, hypothesisID, jobID)

		return json.Marshal(run)
	}

	return idempotency.WithIdempotency(ctx, s.cache, idemKey, createFn)
}
