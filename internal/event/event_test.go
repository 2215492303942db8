package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/runlab/orchestrator/internal/domain"
)

func validEnvelope() map[string]interface{} {
	return map[string]interface{}{
		"specversion":     "1.0",
		"id":              "evt-001",
		"source":          "worker/pod-1",
		"type":            "run.stage_progress",
		"subject":         "run/run_abc123",
		"time":            "2026-08-30T12:00:00Z",
		"datacontenttype": "application/json",
		"data": map[string]interface{}{
			"stage":    "Stage_2",
			"progress": 0.4,
		},
		"extensions": map[string]interface{}{
			"seq": 7,
		},
	}
}

func marshalEnvelope(t *testing.T, env map[string]interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func TestDecodeValid(t *testing.T) {
	evt, verr := Decode(marshalEnvelope(t, validEnvelope()))
	require.Nil(t, verr)

	assert.Equal(t, "evt-001", evt.ID)
	assert.Equal(t, "worker/pod-1", evt.Source)
	assert.Equal(t, "run_abc123", evt.RunID)
	assert.Equal(t, domain.EventTypeStageProgress, evt.Type)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), evt.Time.UTC())
	require.NotNil(t, evt.Seq)
	assert.Equal(t, int64(7), *evt.Seq)

	progress, ok := evt.Payload.(*StageProgress)
	require.True(t, ok)
	assert.Equal(t, "Stage_2", progress.Stage)
	assert.Equal(t, 0.4, *progress.Progress)
}

func TestDecodeEnvelopeFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(env map[string]interface{})
		field  string
	}{
		{"wrong specversion", func(e map[string]interface{}) { e["specversion"] = "2.0" }, "specversion"},
		{"missing id", func(e map[string]interface{}) { e["id"] = "" }, "id"},
		{"missing source", func(e map[string]interface{}) { delete(e, "source") }, "source"},
		{"unknown type", func(e map[string]interface{}) { e["type"] = "run.totally_new" }, "type"},
		{"bad subject prefix", func(e map[string]interface{}) { e["subject"] = "job/run_abc123" }, "subject"},
		{"empty run id", func(e map[string]interface{}) { e["subject"] = "run/" }, "subject"},
		{"bad time", func(e map[string]interface{}) { e["time"] = "yesterday" }, "time"},
		{"wrong content type", func(e map[string]interface{}) { e["datacontenttype"] = "text/plain" }, "datacontenttype"},
		{"zero seq", func(e map[string]interface{}) {
			e["extensions"] = map[string]interface{}{"seq": 0}
		}, "extensions.seq"},
		{"negative seq", func(e map[string]interface{}) {
			e["extensions"] = map[string]interface{}{"seq": -3}
		}, "extensions.seq"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := validEnvelope()
			tc.mutate(env)
			evt, verr := Decode(marshalEnvelope(t, env))
			assert.Nil(t, evt)
			require.NotNil(t, verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestDecodeNotJSON(t *testing.T) {
	evt, verr := Decode([]byte("not json at all"))
	assert.Nil(t, evt)
	require.NotNil(t, verr)
	assert.Equal(t, "(body)", verr.Field)
}

func TestDecodePayloadValidation(t *testing.T) {
	cases := []struct {
		name  string
		typ   string
		data  map[string]interface{}
		field string
	}{
		{"stage_progress missing progress", "run.stage_progress", map[string]interface{}{"stage": "Stage_1"}, "data.progress"},
		{"stage_progress unknown stage", "run.stage_progress", map[string]interface{}{"stage": "Stage_9", "progress": 0.1}, "data.stage"},
		{"run.started missing pod", "run.started", map[string]interface{}{}, "data.pod_name"},
		{"run.failed missing message", "run.failed", map[string]interface{}{"error_type": "OOM"}, "data.message"},
		{"status_changed unknown status", "run.status_changed", map[string]interface{}{"status": "EXPLODED"}, "data.status"},
		{"metric missing value", "run.stage_metric", map[string]interface{}{"name": "val_loss"}, "data.value"},
		{"auto validation missing verdict", "validation.auto_completed", map[string]interface{}{"score": 0.9}, "data.passed"},
		{"artifact missing uri", "artifact.registered", map[string]interface{}{"key": "paper.pdf"}, "data.uri"},
		{"node missing id", "node.created", map[string]interface{}{}, "data.node_id"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := validEnvelope()
			env["type"] = tc.typ
			env["data"] = tc.data
			evt, verr := Decode(marshalEnvelope(t, env))
			assert.Nil(t, evt)
			require.NotNil(t, verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestDecodeHeartbeatWithoutSeq(t *testing.T) {
	env := validEnvelope()
	env["type"] = "run.heartbeat"
	env["data"] = map[string]interface{}{"uptime_seconds": 120.5}
	delete(env, "extensions")

	evt, verr := Decode(marshalEnvelope(t, env))
	require.Nil(t, verr)
	assert.Nil(t, evt.Seq)
	_, ok := evt.Payload.(*RunHeartbeat)
	assert.True(t, ok)
}

func TestCatalogCoversAllEventTypes(t *testing.T) {
	types := []domain.EventType{
		domain.EventTypeRunEnqueued, domain.EventTypeRunStarted, domain.EventTypeRunHeartbeat,
		domain.EventTypeRunStatusChanged, domain.EventTypeRunCompleted, domain.EventTypeRunFailed,
		domain.EventTypeRunCanceled, domain.EventTypeStageStarted, domain.EventTypeStageProgress,
		domain.EventTypeStageMetric, domain.EventTypeStageCompleted, domain.EventTypeNodeCreated,
		domain.EventTypeNodeCodeGenerated, domain.EventTypeNodeExecuting, domain.EventTypeNodeCompleted,
		domain.EventTypeNodeSelectedBest, domain.EventTypeIdeationGenerated, domain.EventTypePaperStarted,
		domain.EventTypePaperGenerated, domain.EventTypeAutoValStarted, domain.EventTypeAutoValCompleted,
		domain.EventTypeRunLog, domain.EventTypeArtifactDetected, domain.EventTypeArtifactRegistered,
		domain.EventTypeArtifactFailed,
	}
	assert.Len(t, catalog, len(types))
	for _, typ := range types {
		_, ok := catalog[string(typ)]
		assert.True(t, ok, "catalog missing %s", typ)
	}
}
