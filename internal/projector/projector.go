// Package projector maps validated, in-order events to mutations on the
// run/stage/validation/artifact projections.
package projector

import (
	"fmt"
	"time"

	"github.com/runlab/orchestrator/internal/domain"
	"github.com/runlab/orchestrator/internal/event"
)

// Result is the partial update produced by projecting one event. Run is the
// full projected row; the optional records are inserted alongside it in the
// same transaction.
type Result struct {
	Run        domain.Run
	Stage      *domain.Stage
	Validation *domain.Validation
	Artifact   *domain.Artifact

	// IllegalTransition is set when the event asked for a status change the
	// lifecycle graph forbids. The status is left unchanged and the caller
	// logs the skip; everything else in the result still applies.
	IllegalTransition *domain.IllegalTransitionError
}

// Project applies a single validated event to a copy of the current run
// state. It is pure: no I/O, no clock reads beyond the event timestamp.
func Project(run domain.Run, evt *event.Event) (Result, error) {
	res := Result{Run: run}
	res.Run.StageTiming = copyTiming(run.StageTiming)
	res.Run.Metrics = copyMetrics(run.Metrics)
	res.Run.UpdatedAt = evt.Time

	switch p := evt.Payload.(type) {
	case *event.RunEnqueued:
		res.transition(domain.RunStatusScheduled)

	case *event.RunStarted:
		res.transition(domain.RunStatusRunning)
		res.Run.Pod = &domain.Pod{Name: p.PodName, InstanceType: p.InstanceType}
		t := evt.Time
		res.Run.StartedAt = &t

	case *event.RunHeartbeat:
		t := evt.Time
		res.Run.LastHeartbeatAt = &t

	case *event.RunStatusChanged:
		res.transition(domain.RunStatus(p.Status))
		res.stampTerminal(evt.Time)

	case *event.RunCompleted:
		res.transition(domain.RunStatusCompleted)
		for name, v := range p.Metrics {
			res.Run.Metrics[name] = v
		}
		res.stampTerminal(evt.Time)

	case *event.RunFailed:
		res.transition(domain.RunStatusFailed)
		res.Run.Error = &domain.RunError{Type: p.ErrorType, Message: p.Message, Traceback: p.Traceback}
		res.stampTerminal(evt.Time)

	case *event.RunCanceled:
		res.transition(domain.RunStatusCanceled)
		res.stampTerminal(evt.Time)

	case *event.StageStarted:
		t := evt.Time
		res.Stage = &domain.Stage{
			RunID:     run.RunID,
			Index:     domain.StageIndex(p.Stage),
			Name:      p.Stage,
			Status:    domain.StageStatusRunning,
			Progress:  0,
			StartedAt: &t,
		}
		res.Run.CurrentStage = domain.CurrentStage{Name: p.Stage}
		timing := res.Run.StageTiming[p.Stage]
		timing.StartedAt = &t
		res.Run.StageTiming[p.Stage] = timing

	case *event.StageProgress:
		progress := domain.ClampProgress(*p.Progress)
		res.Stage = &domain.Stage{
			RunID:    run.RunID,
			Index:    domain.StageIndex(p.Stage),
			Name:     p.Stage,
			Status:   domain.StageStatusRunning,
			Progress: progress,
		}
		res.Run.CurrentStage = domain.CurrentStage{
			Name:            p.Stage,
			Progress:        progress,
			Iteration:       p.Iteration,
			TotalIterations: p.TotalIterations,
			Nodes:           p.Nodes,
			BestMetric:      p.BestMetric,
		}
		if p.BestMetric == "" {
			res.Run.CurrentStage.BestMetric = run.CurrentStage.BestMetric
		}
		if p.Nodes == 0 {
			res.Run.CurrentStage.Nodes = run.CurrentStage.Nodes
		}
		if p.ElapsedSeconds > 0 {
			timing := res.Run.StageTiming[p.Stage]
			timing.ElapsedSeconds = p.ElapsedSeconds
			res.Run.StageTiming[p.Stage] = timing
		}

	case *event.StageMetric:
		res.Run.Metrics[p.Name] = *p.Value

	case *event.StageCompleted:
		t := evt.Time
		res.Stage = &domain.Stage{
			RunID:       run.RunID,
			Index:       domain.StageIndex(p.Stage),
			Name:        p.Stage,
			Status:      domain.StageStatusCompleted,
			Progress:    1,
			Summary:     p.Summary,
			CompletedAt: &t,
		}
		timing := res.Run.StageTiming[p.Stage]
		timing.CompletedAt = &t
		timing.DurationSeconds = p.DurationSeconds
		res.Run.StageTiming[p.Stage] = timing
		if run.CurrentStage.Name == p.Stage {
			res.Run.CurrentStage.Progress = 1
		}

	case *event.NodeCreated:
		res.Run.CurrentStage.Nodes = run.CurrentStage.Nodes + 1

	case *event.NodeCodeGenerated, *event.NodeExecuting, *event.NodeCompleted:
		// Audit log only.

	case *event.NodeSelectedBest:
		if p.Metric != "" {
			res.Run.CurrentStage.BestMetric = p.Metric
		}

	case *event.IdeationGenerated, *event.PaperStarted, *event.PaperGenerated:
		// Audit log only.

	case *event.AutoValidationStarted:
		res.transition(domain.RunStatusAutoValidating)

	case *event.AutoValidationCompleted:
		res.Validation = &domain.Validation{
			RunID:     run.RunID,
			Kind:      domain.ValidationKindAuto,
			Passed:    *p.Passed,
			Score:     p.Score,
			Rubric:    p.Rubric,
			CreatedAt: evt.Time,
		}
		res.transition(domain.RunStatusAwaitingHuman)

	case *event.RunLog, *event.ArtifactDetected, *event.ArtifactFailed:
		// Audit log only.

	case *event.ArtifactRegistered:
		res.Artifact = &domain.Artifact{
			RunID:       run.RunID,
			Key:         p.Key,
			URI:         p.URI,
			ContentType: p.ContentType,
			SizeBytes:   p.SizeBytes,
			Checksum:    p.Checksum,
			CreatedAt:   evt.Time,
		}

	default:
		return Result{}, fmt.Errorf("no projection handler for event type %s", evt.Type)
	}

	return res, nil
}

// transition attempts a status change, recording an illegal transition
// instead of failing.
func (r *Result) transition(to domain.RunStatus) {
	if r.Run.Status == to {
		// Re-delivery of an equivalent status is a no-op, not a violation.
		return
	}
	if err := domain.AssertTransition(r.Run.Status, to); err != nil {
		r.IllegalTransition = err.(*domain.IllegalTransitionError)
		return
	}
	r.Run.Status = to
}

// stampTerminal records the completion or failure timestamp after a
// transition into a terminal-ish status.
func (r *Result) stampTerminal(t time.Time) {
	if r.IllegalTransition != nil {
		return
	}
	switch r.Run.Status {
	case domain.RunStatusCompleted, domain.RunStatusCanceled, domain.RunStatusHumanValidated:
		ts := t
		r.Run.CompletedAt = &ts
	case domain.RunStatusFailed:
		ts := t
		r.Run.FailedAt = &ts
	}
}

func copyTiming(m map[string]domain.StageTiming) map[string]domain.StageTiming {
	out := make(map[string]domain.StageTiming, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
