// Package policy gates event ingestion on a rego source policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.event_policy.decision"),
		rego.Module("event_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input describes one inbound event for policy evaluation.
type Input struct {
	Source string `json:"source"`
	Type   string `json:"type"`
	RunID  string `json:"run_id"`
}

// Evaluate returns allow or deny for the given event. Policies that say
// nothing default to allow.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, nil
	}
	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionAllow, nil
}

// DefaultPolicy is the default source policy: anyone may report progress,
// but lifecycle terminal events must come from a worker or the
// orchestrator itself.
const DefaultPolicy = `
package event_policy

default decision = "allow"

terminal_types = {"run.completed", "run.failed", "run.canceled"}

decision = "deny" {
	terminal_types[input.type]
	not startswith(input.source, "worker/")
	not startswith(input.source, "orchestrator/")
}
`
