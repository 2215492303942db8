package domain

import "time"

// CurrentStage describes the stage a run is presently executing.
type CurrentStage struct {
	Name            string  `json:"name,omitempty"`
	Progress        float64 `json:"progress"`
	Iteration       int     `json:"iteration,omitempty"`
	TotalIterations int     `json:"total_iterations,omitempty"`
	Nodes           int     `json:"nodes,omitempty"`
	BestMetric      string  `json:"best_metric,omitempty"`
}

// StageTiming records elapsed/duration bookkeeping for one stage.
type StageTiming struct {
	ElapsedSeconds  float64    `json:"elapsed_seconds,omitempty"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Pod identifies the worker executing a run.
type Pod struct {
	Name         string `json:"name"`
	InstanceType string `json:"instance_type,omitempty"`
}

// RunError carries failure details reported by a worker.
type RunError struct {
	Type      string `json:"type,omitempty"`
	Message   string `json:"message,omitempty"`
	Traceback string `json:"traceback,omitempty"`
}

// Run represents a single experiment execution. It is created once at
// admission and mutated only through the event projector or an explicit
// operator action.
type Run struct {
	RunID        string                 `json:"run_id"`
	HypothesisID string                 `json:"hypothesis_id"`
	Status       RunStatus              `json:"status"`
	CurrentStage CurrentStage           `json:"current_stage"`
	StageTiming  map[string]StageTiming `json:"stage_timing,omitempty"`
	Metrics      map[string]float64     `json:"metrics,omitempty"`
	Pod          *Pod                   `json:"pod,omitempty"`
	LastEventSeq int64                  `json:"last_event_seq"`
	Error        *RunError              `json:"error,omitempty"`
	Hidden       bool                   `json:"hidden"`

	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	FailedAt        *time.Time `json:"failed_at,omitempty"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
}
