package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	cases := []struct {
		name     string
		input    Input
		decision string
	}{
		{"worker may complete", Input{Source: "worker/pod-1", Type: "run.completed"}, DecisionAllow},
		{"orchestrator may cancel", Input{Source: "orchestrator/operator", Type: "run.canceled"}, DecisionAllow},
		{"dashboard may not complete", Input{Source: "dashboard/ui", Type: "run.completed"}, DecisionDeny},
		{"dashboard may not fail", Input{Source: "dashboard/ui", Type: "run.failed"}, DecisionDeny},
		{"anyone may report progress", Input{Source: "dashboard/ui", Type: "run.stage_progress"}, DecisionAllow},
		{"anyone may heartbeat", Input{Source: "sidecar/agent", Type: "run.heartbeat"}, DecisionAllow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := engine.Evaluate(ctx, tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.decision, decision)
		})
	}
}

func TestCustomPolicyDefaultsToAllow(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, `
package event_policy

default decision = "allow"
`)
	require.NoError(t, err)

	decision, err := engine.Evaluate(ctx, Input{Source: "anywhere", Type: "run.completed"})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, decision)
}

func TestBrokenPolicyFailsToPrepare(t *testing.T) {
	_, err := NewEngine(context.Background(), "this is not rego")
	assert.Error(t, err)
}
