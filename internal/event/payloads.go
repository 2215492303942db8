package event

import "github.com/runlab/orchestrator/internal/domain"

// catalog maps every registered event type to its payload constructor.
// Every entry has an explicit schema; there is no lenient fallback.
var catalog = map[string]func() Payload{
	"run.enqueued":              func() Payload { return &RunEnqueued{} },
	"run.started":               func() Payload { return &RunStarted{} },
	"run.heartbeat":             func() Payload { return &RunHeartbeat{} },
	"run.status_changed":        func() Payload { return &RunStatusChanged{} },
	"run.completed":             func() Payload { return &RunCompleted{} },
	"run.failed":                func() Payload { return &RunFailed{} },
	"run.canceled":              func() Payload { return &RunCanceled{} },
	"run.stage_started":         func() Payload { return &StageStarted{} },
	"run.stage_progress":        func() Payload { return &StageProgress{} },
	"run.stage_metric":          func() Payload { return &StageMetric{} },
	"run.stage_completed":       func() Payload { return &StageCompleted{} },
	"node.created":              func() Payload { return &NodeCreated{} },
	"node.code_generated":       func() Payload { return &NodeCodeGenerated{} },
	"node.executing":            func() Payload { return &NodeExecuting{} },
	"node.completed":            func() Payload { return &NodeCompleted{} },
	"node.selected_best":        func() Payload { return &NodeSelectedBest{} },
	"ideation.generated":        func() Payload { return &IdeationGenerated{} },
	"paper.started":             func() Payload { return &PaperStarted{} },
	"paper.generated":           func() Payload { return &PaperGenerated{} },
	"validation.auto_started":   func() Payload { return &AutoValidationStarted{} },
	"validation.auto_completed": func() Payload { return &AutoValidationCompleted{} },
	"run.log":                   func() Payload { return &RunLog{} },
	"artifact.detected":         func() Payload { return &ArtifactDetected{} },
	"artifact.registered":       func() Payload { return &ArtifactRegistered{} },
	"artifact.failed":           func() Payload { return &ArtifactFailed{} },
}

// RunEnqueued acknowledges that a run entered the external work queue.
type RunEnqueued struct {
	HypothesisID string `json:"hypothesis_id,omitempty"`
}

func (p *RunEnqueued) validate() *ValidationError { return nil }

// RunStarted reports that a worker picked up the run.
type RunStarted struct {
	PodName      string `json:"pod_name"`
	InstanceType string `json:"instance_type,omitempty"`
}

func (p *RunStarted) validate() *ValidationError {
	if p.PodName == "" {
		return &ValidationError{Field: "data.pod_name", Expected: "a non-empty pod name"}
	}
	return nil
}

// RunHeartbeat is a liveness ping. Heartbeats carry no sequence number.
type RunHeartbeat struct {
	UptimeSeconds float64 `json:"uptime_seconds,omitempty"`
}

func (p *RunHeartbeat) validate() *ValidationError { return nil }

// RunStatusChanged requests a generic lifecycle transition.
type RunStatusChanged struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (p *RunStatusChanged) validate() *ValidationError {
	for _, s := range domain.AllStatuses {
		if string(s) == p.Status {
			return nil
		}
	}
	return &ValidationError{Field: "data.status", Expected: "a known run status"}
}

// RunCompleted marks a successful finish.
type RunCompleted struct {
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

func (p *RunCompleted) validate() *ValidationError { return nil }

// RunFailed carries worker failure details.
type RunFailed struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Traceback string `json:"traceback,omitempty"`
}

func (p *RunFailed) validate() *ValidationError {
	if p.Message == "" {
		return &ValidationError{Field: "data.message", Expected: "a non-empty failure message"}
	}
	return nil
}

// RunCanceled reports a worker-side cancellation.
type RunCanceled struct {
	Reason string `json:"reason,omitempty"`
}

func (p *RunCanceled) validate() *ValidationError { return nil }

// StageStarted opens one of the four fixed stages.
type StageStarted struct {
	Stage string `json:"stage"`
}

func (p *StageStarted) validate() *ValidationError {
	if domain.StageIndex(p.Stage) < 0 {
		return &ValidationError{Field: "data.stage", Expected: "one of Stage_1..Stage_4"}
	}
	return nil
}

// StageProgress updates stage progress and iteration counters.
type StageProgress struct {
	Stage           string   `json:"stage"`
	Progress        *float64 `json:"progress"`
	Iteration       int      `json:"iteration,omitempty"`
	TotalIterations int      `json:"total_iterations,omitempty"`
	Nodes           int      `json:"nodes,omitempty"`
	BestMetric      string   `json:"best_metric,omitempty"`
	ElapsedSeconds  float64  `json:"elapsed_seconds,omitempty"`
}

func (p *StageProgress) validate() *ValidationError {
	if domain.StageIndex(p.Stage) < 0 {
		return &ValidationError{Field: "data.stage", Expected: "one of Stage_1..Stage_4"}
	}
	if p.Progress == nil {
		return &ValidationError{Field: "data.progress", Expected: "a number"}
	}
	return nil
}

// StageMetric reports a single named metric value.
type StageMetric struct {
	Stage string   `json:"stage,omitempty"`
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

func (p *StageMetric) validate() *ValidationError {
	if p.Name == "" {
		return &ValidationError{Field: "data.name", Expected: "a non-empty metric name"}
	}
	if p.Value == nil {
		return &ValidationError{Field: "data.value", Expected: "a number"}
	}
	return nil
}

// StageCompleted closes a stage.
type StageCompleted struct {
	Stage           string  `json:"stage"`
	Summary         string  `json:"summary,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

func (p *StageCompleted) validate() *ValidationError {
	if domain.StageIndex(p.Stage) < 0 {
		return &ValidationError{Field: "data.stage", Expected: "one of Stage_1..Stage_4"}
	}
	return nil
}

// NodeCreated reports a new search-tree node.
type NodeCreated struct {
	NodeID string `json:"node_id"`
	Stage  string `json:"stage,omitempty"`
}

func (p *NodeCreated) validate() *ValidationError {
	if p.NodeID == "" {
		return &ValidationError{Field: "data.node_id", Expected: "a non-empty node id"}
	}
	return nil
}

// NodeCodeGenerated reports generated code for a node.
type NodeCodeGenerated struct {
	NodeID string `json:"node_id"`
}

func (p *NodeCodeGenerated) validate() *ValidationError {
	if p.NodeID == "" {
		return &ValidationError{Field: "data.node_id", Expected: "a non-empty node id"}
	}
	return nil
}

// NodeExecuting reports a node entering execution.
type NodeExecuting struct {
	NodeID string `json:"node_id"`
}

func (p *NodeExecuting) validate() *ValidationError {
	if p.NodeID == "" {
		return &ValidationError{Field: "data.node_id", Expected: "a non-empty node id"}
	}
	return nil
}

// NodeCompleted reports a node finishing execution.
type NodeCompleted struct {
	NodeID string   `json:"node_id"`
	Metric *float64 `json:"metric,omitempty"`
}

func (p *NodeCompleted) validate() *ValidationError {
	if p.NodeID == "" {
		return &ValidationError{Field: "data.node_id", Expected: "a non-empty node id"}
	}
	return nil
}

// NodeSelectedBest marks the best node of the current stage.
type NodeSelectedBest struct {
	NodeID string `json:"node_id"`
	Metric string `json:"metric,omitempty"`
}

func (p *NodeSelectedBest) validate() *ValidationError {
	if p.NodeID == "" {
		return &ValidationError{Field: "data.node_id", Expected: "a non-empty node id"}
	}
	return nil
}

// IdeationGenerated reports generated experiment ideas.
type IdeationGenerated struct {
	Summary string `json:"summary,omitempty"`
	Count   int    `json:"count,omitempty"`
}

func (p *IdeationGenerated) validate() *ValidationError { return nil }

// PaperStarted reports the start of write-up generation.
type PaperStarted struct{}

func (p *PaperStarted) validate() *ValidationError { return nil }

// PaperGenerated reports a finished write-up.
type PaperGenerated struct {
	ArtifactKey string `json:"artifact_key,omitempty"`
	Pages       int    `json:"pages,omitempty"`
}

func (p *PaperGenerated) validate() *ValidationError { return nil }

// AutoValidationStarted reports the automated rubric starting.
type AutoValidationStarted struct{}

func (p *AutoValidationStarted) validate() *ValidationError { return nil }

// AutoValidationCompleted carries the automated verdict.
type AutoValidationCompleted struct {
	Passed *bool   `json:"passed"`
	Score  float64 `json:"score,omitempty"`
	Rubric string  `json:"rubric,omitempty"`
}

func (p *AutoValidationCompleted) validate() *ValidationError {
	if p.Passed == nil {
		return &ValidationError{Field: "data.passed", Expected: "a boolean verdict"}
	}
	return nil
}

// RunLog is a worker log line, recorded for audit only.
type RunLog struct {
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
}

func (p *RunLog) validate() *ValidationError {
	if p.Message == "" {
		return &ValidationError{Field: "data.message", Expected: "a non-empty message"}
	}
	return nil
}

// ArtifactDetected reports an output object noticed in storage.
type ArtifactDetected struct {
	Key string `json:"key"`
}

func (p *ArtifactDetected) validate() *ValidationError {
	if p.Key == "" {
		return &ValidationError{Field: "data.key", Expected: "a non-empty object key"}
	}
	return nil
}

// ArtifactRegistered registers an output object.
type ArtifactRegistered struct {
	Key         string `json:"key"`
	URI         string `json:"uri"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
}

func (p *ArtifactRegistered) validate() *ValidationError {
	if p.Key == "" {
		return &ValidationError{Field: "data.key", Expected: "a non-empty object key"}
	}
	if p.URI == "" {
		return &ValidationError{Field: "data.uri", Expected: "a non-empty storage URI"}
	}
	return nil
}

// ArtifactFailed reports a failed artifact upload.
type ArtifactFailed struct {
	Key     string `json:"key"`
	Message string `json:"message,omitempty"`
}

func (p *ArtifactFailed) validate() *ValidationError {
	if p.Key == "" {
		return &ValidationError{Field: "data.key", Expected: "a non-empty object key"}
	}
	return nil
}
