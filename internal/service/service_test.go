package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/runlab/orchestrator/internal/config"
	"github.com/runlab/orchestrator/internal/dispatch"
	"github.com/runlab/orchestrator/internal/domain"
	"github.com/runlab/orchestrator/internal/event"
	"github.com/runlab/orchestrator/internal/idempotency"
	"github.com/runlab/orchestrator/internal/ledger"
	"github.com/runlab/orchestrator/internal/limiter"
	"github.com/runlab/orchestrator/internal/policy"
	"github.com/runlab/orchestrator/internal/store"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()

	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	cfg := &config.Config{
		SlotCapacity:     2,
		AcquireTimeout:   100 * time.Millisecond,
		LockTimeout:      time.Minute,
		QueueMaxAttempts: 3,
		QueueBackoffBase: time.Second,
		QueueVisibility:  time.Minute,
	}

	svc := New(db,
		ledger.NewMemoryLedger(time.Hour),
		idempotency.NewMemoryCache(time.Hour),
		limiter.NewMemoryLimiter(cfg.SlotCapacity, cfg.LockTimeout),
		dispatch.NewMemoryQueue(cfg.QueueMaxAttempts, cfg.QueueBackoffBase),
		engine, nil, cfg)
	return svc, db
}

func seedRun(t *testing.T, db store.Store, runID string, status domain.RunStatus) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, db.CreateRun(context.Background(), &domain.Run{
		RunID:        runID,
		HypothesisID: "hyp_1",
		Status:       status,
		StageTiming:  map[string]domain.StageTiming{},
		Metrics:      map[string]float64{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
}

func envelope(t *testing.T, eventID, runID, eventType string, seq int64, data map[string]interface{}) []byte {
	t.Helper()
	env := map[string]interface{}{
		"specversion":     "1.0",
		"id":              eventID,
		"source":          "worker/pod-1",
		"type":            eventType,
		"subject":         "run/" + runID,
		"time":            "2026-08-30T12:00:00Z",
		"datacontenttype": "application/json",
		"data":            data,
	}
	if seq > 0 {
		env["extensions"] = map[string]interface{}{"seq": seq}
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func TestIngestEventApplies(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	seedRun(t, db, "run_1", domain.RunStatusQueued)

	res, err := svc.IngestEvent(ctx, envelope(t, "evt-1", "run_1", "run.enqueued", 1, nil))
	require.NoError(t, err)
	assert.True(t, res.Applied)

	run, err := db.GetRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusScheduled, run.Status)
	assert.Equal(t, int64(1), run.LastEventSeq)

	events, err := db.GetEvents(ctx, "run_1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestIngestEventDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	seedRun(t, db, "run_1", domain.RunStatusQueued)

	raw := envelope(t, "evt-1", "run_1", "run.enqueued", 1, nil)
	res, err := svc.IngestEvent(ctx, raw)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	// Same event id again: acknowledged, nothing re-applied.
	res, err = svc.IngestEvent(ctx, raw)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.False(t, res.Applied)

	events, err := db.GetEvents(ctx, "run_1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestIngestEventOutOfOrderConverges(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	seedRun(t, db, "run_1", domain.RunStatusRunning)

	progress := func(id string, seq int64, p float64) []byte {
		return envelope(t, id, "run_1", "run.stage_progress", seq, map[string]interface{}{
			"stage": "Stage_1", "progress": p,
		})
	}

	// Delivery order 3, 1, 2: only the newest projects.
	res, err := svc.IngestEvent(ctx, progress("evt-3", 3, 0.75))
	require.NoError(t, err)
	assert.True(t, res.Applied)

	res, err = svc.IngestEvent(ctx, progress("evt-1", 1, 0.25))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "out_of_order", res.Skipped)

	res, err = svc.IngestEvent(ctx, progress("evt-2", 2, 0.5))
	require.NoError(t, err)
	assert.False(t, res.Applied)

	run, err := db.GetRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, 0.75, run.CurrentStage.Progress)
	assert.Equal(t, int64(3), run.LastEventSeq)

	// All three land in the audit log regardless.
	events, err := db.GetEvents(ctx, "run_1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestIngestEventValidationFailure(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	res, err := svc.IngestEvent(ctx, envelope(t, "evt-1", "run_1", "run.stage_progress", 1,
		map[string]interface{}{"stage": "Stage_1"}))
	assert.Nil(t, res)
	var verr *event.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "data.progress", verr.Field)
}

func TestIngestEventUnknownRun(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.IngestEvent(ctx, envelope(t, "evt-1", "run_ghost", "run.enqueued", 1, nil))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestEventPolicyDeniesTerminalFromUntrustedSource(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	seedRun(t, db, "run_1", domain.RunStatusRunning)

	env := map[string]interface{}{
		"specversion":     "1.0",
		"id":              "evt-1",
		"source":          "dashboard/ui",
		"type":            "run.completed",
		"subject":         "run/run_1",
		"time":            "2026-08-30T12:00:00Z",
		"datacontenttype": "application/json",
		"extensions":      map[string]interface{}{"seq": 1},
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	_, err = svc.IngestEvent(ctx, raw)
	assert.ErrorIs(t, err, ErrPolicyDenied)

	// The same event from a worker is accepted.
	res, err := svc.IngestEvent(ctx, envelope(t, "evt-2", "run_1", "run.completed", 1, nil))
	require.NoError(t, err)
	assert.True(t, res.Applied)
}

func TestIngestEventIllegalTransitionIsNonFatal(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	seedRun(t, db, "run_1", domain.RunStatusCompleted)

	// A late start report against a finished run: logged, status untouched.
	res, err := svc.IngestEvent(ctx, envelope(t, "evt-1", "run_1", "run.started", 1,
		map[string]interface{}{"pod_name": "pod-9"}))
	require.NoError(t, err)
	assert.True(t, res.Applied)

	run, err := db.GetRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, int64(1), run.LastEventSeq)
}

func TestIngestEventLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	seedRun(t, db, "run_1", domain.RunStatusQueued)

	steps := []struct {
		eventType string
		data      map[string]interface{}
		status    domain.RunStatus
	}{
		{"run.enqueued", nil, domain.RunStatusScheduled},
		{"run.started", map[string]interface{}{"pod_name": "pod-1"}, domain.RunStatusRunning},
		{"run.stage_started", map[string]interface{}{"stage": "Stage_1"}, domain.RunStatusRunning},
		{"run.stage_progress", map[string]interface{}{"stage": "Stage_1", "progress": 0.5}, domain.RunStatusRunning},
		{"run.stage_completed", map[string]interface{}{"stage": "Stage_1", "duration_seconds": 60.0}, domain.RunStatusRunning},
		{"validation.auto_started", nil, domain.RunStatusAutoValidating},
		{"validation.auto_completed", map[string]interface{}{"passed": true, "score": 0.8}, domain.RunStatusAwaitingHuman},
	}

	for i, step := range steps {
		res, err := svc.IngestEvent(ctx, envelope(t, fmt.Sprintf("evt-%d", i+1), "run_1", step.eventType, int64(i+1), step.data))
		require.NoError(t, err, "step %d (%s)", i+1, step.eventType)
		require.True(t, res.Applied, "step %d (%s)", i+1, step.eventType)

		run, err := db.GetRun(ctx, "run_1")
		require.NoError(t, err)
		assert.Equal(t, step.status, run.Status, "step %d (%s)", i+1, step.eventType)
	}

	stages, err := db.GetStages(ctx, "run_1")
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, domain.StageStatusCompleted, stages[0].Status)

	validations, err := db.GetValidations(ctx, "run_1")
	require.NoError(t, err)
	require.Len(t, validations, 1)
	assert.NotEmpty(t, validations[0].ValidationID)
}

func TestAdmitRunIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)

	first, replayed, err := svc.AdmitRun(ctx, "hyp_1", "key-1")
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := svc.AdmitRun(ctx, "hyp_1", "key-1")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first, second, "replay must be byte identical")

	runs, err := db.ListRuns(ctx, "hyp_1", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1, "one run despite two requests")
	assert.Equal(t, domain.RunStatusQueued, runs[0].Status)

	capacity, err := svc.GetCapacity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, capacity.Queue.Pending, "one dispatch job despite two requests")
}

func TestAdmitRunDistinctKeys(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)

	_, _, err := svc.AdmitRun(ctx, "hyp_1", "key-a")
	require.NoError(t, err)
	_, _, err = svc.AdmitRun(ctx, "hyp_1", "key-b")
	require.NoError(t, err)

	runs, err := db.ListRuns(ctx, "hyp_1", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestCancelRun(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	seedRun(t, db, "run_1", domain.RunStatusRunning)

	run, err := svc.CancelRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCanceled, run.Status)
	assert.NotNil(t, run.CompletedAt)

	// The cancellation is recorded as a synthetic event.
	events, err := db.GetEvents(ctx, "run_1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeRunCanceled, events[0].Type)
	assert.Equal(t, "orchestrator/operator", events[0].Source)

	// Cancel again: already canceled, idempotent success.
	run, err = svc.CancelRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCanceled, run.Status)
}

func TestCancelRunTerminal(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	seedRun(t, db, "run_1", domain.RunStatusCompleted)

	_, err := svc.CancelRun(ctx, "run_1")
	require.Error(t, err)
	assert.True(t, domain.IsIllegalTransition(err))
}

func TestCancelRunMissing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.CancelRun(ctx, "run_ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClaimAckNackFlow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, _, err := svc.AdmitRun(ctx, "hyp_1", "key-1")
	require.NoError(t, err)

	job, err := svc.ClaimJob(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, svc.NackJob(ctx, job.JobID, "image pull backoff"))
	require.NoError(t, svc.AckJob(ctx, job.JobID))

	// Queue is drained from the claimable set.
	job, err = svc.ClaimJob(ctx, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestAcquireReleaseSlot(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	a, err := svc.AcquireSlot(ctx, "run_a")
	require.NoError(t, err)
	b, err := svc.AcquireSlot(ctx, "run_b")
	require.NoError(t, err)

	_, err = svc.AcquireSlot(ctx, "run_c")
	assert.ErrorIs(t, err, limiter.ErrAcquireTimeout)

	capacity, err := svc.GetCapacity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, capacity.Slots.InUse)

	require.NoError(t, svc.ReleaseSlot(ctx, a))
	require.NoError(t, svc.ReleaseSlot(ctx, b))

	capacity, err = svc.GetCapacity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, capacity.Slots.InUse)
}
