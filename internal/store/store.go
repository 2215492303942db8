// Package store persists runs, stages, validations, artifacts and the
// append-only event log.
package store

import (
	"context"

	"github.com/runlab/orchestrator/internal/domain"
)

// ProjectionUpdate is the unit of work produced by projecting one event:
// the full projected run row plus any records created alongside it. Seq is
// the event's sequence number, or nil for heartbeat-class events.
type ProjectionUpdate struct {
	Run        domain.Run
	Stage      *domain.Stage
	Validation *domain.Validation
	Artifact   *domain.Artifact
	Seq        *int64
}

// Store is the durable document store behind the orchestrator. Lookups
// return (nil, nil) when the entity does not exist.
type Store interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, hypothesisID string, limit int) ([]domain.Run, error)

	// ApplyProjection applies an update inside one transaction. When Seq is
	// set the run row is written through a single conditional update
	// (last_event_seq < Seq); it reports false if the gate rejected the
	// write. Seqless updates touch only the liveness timestamps, never the
	// gated state or the counter.
	ApplyProjection(ctx context.Context, upd *ProjectionUpdate) (bool, error)

	// UpdateRunStatusIf transitions a run's status only if it still has the
	// expected current status. Used by operator actions to avoid races with
	// concurrent event delivery.
	UpdateRunStatusIf(ctx context.Context, runID string, from, to domain.RunStatus) (bool, error)

	SetRunHidden(ctx context.Context, runID string, hidden bool) (bool, error)

	CreateEvent(ctx context.Context, evt *domain.EventRecord) error
	GetEvents(ctx context.Context, runID string, limit int) ([]domain.EventRecord, error)

	GetStages(ctx context.Context, runID string) ([]domain.Stage, error)
	GetValidations(ctx context.Context, runID string) ([]domain.Validation, error)
	GetArtifacts(ctx context.Context, runID string) ([]domain.Artifact, error)

	Close() error
}
