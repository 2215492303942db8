// Package domain defines the core domain models for the orchestrator.
package domain

// RunStatus represents the lifecycle status of a run.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "QUEUED"
	RunStatusScheduled      RunStatus = "SCHEDULED"
	RunStatusStarting       RunStatus = "STARTING"
	RunStatusRunning        RunStatus = "RUNNING"
	RunStatusAutoValidating RunStatus = "AUTO_VALIDATING"
	RunStatusAwaitingHuman  RunStatus = "AWAITING_HUMAN"
	RunStatusHumanValidated RunStatus = "HUMAN_VALIDATED"
	RunStatusCompleted      RunStatus = "COMPLETED"
	RunStatusFailed         RunStatus = "FAILED"
	RunStatusCanceled       RunStatus = "CANCELED"
)

// StageStatus represents the status of a single stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "PENDING"
	StageStatusRunning   StageStatus = "RUNNING"
	StageStatusCompleted StageStatus = "COMPLETED"
	StageStatusFailed    StageStatus = "FAILED"
	StageStatusSkipped   StageStatus = "SKIPPED"
)

// ValidationKind distinguishes automated from human validations.
type ValidationKind string

const (
	ValidationKindAuto  ValidationKind = "auto"
	ValidationKindHuman ValidationKind = "human"
)

// EventType represents the type of an ingested event.
type EventType string

const (
	EventTypeRunEnqueued        EventType = "run.enqueued"
	EventTypeRunStarted         EventType = "run.started"
	EventTypeRunHeartbeat       EventType = "run.heartbeat"
	EventTypeRunStatusChanged   EventType = "run.status_changed"
	EventTypeRunCompleted       EventType = "run.completed"
	EventTypeRunFailed          EventType = "run.failed"
	EventTypeRunCanceled        EventType = "run.canceled"
	EventTypeStageStarted       EventType = "run.stage_started"
	EventTypeStageProgress      EventType = "run.stage_progress"
	EventTypeStageMetric        EventType = "run.stage_metric"
	EventTypeStageCompleted     EventType = "run.stage_completed"
	EventTypeNodeCreated        EventType = "node.created"
	EventTypeNodeCodeGenerated  EventType = "node.code_generated"
	EventTypeNodeExecuting      EventType = "node.executing"
	EventTypeNodeCompleted      EventType = "node.completed"
	EventTypeNodeSelectedBest   EventType = "node.selected_best"
	EventTypeIdeationGenerated  EventType = "ideation.generated"
	EventTypePaperStarted       EventType = "paper.started"
	EventTypePaperGenerated     EventType = "paper.generated"
	EventTypeAutoValStarted     EventType = "validation.auto_started"
	EventTypeAutoValCompleted   EventType = "validation.auto_completed"
	EventTypeRunLog             EventType = "run.log"
	EventTypeArtifactDetected   EventType = "artifact.detected"
	EventTypeArtifactRegistered EventType = "artifact.registered"
	EventTypeArtifactFailed     EventType = "artifact.failed"
)

// StageNames are the four fixed stages of a run, in order.
var StageNames = [4]string{"Stage_1", "Stage_2", "Stage_3", "Stage_4"}

// StageIndex returns the ordinal index (0-3) of a stage name, or -1 if the
// name is not one of the fixed stages.
func StageIndex(name string) int {
	for i, n := range StageNames {
		if n == name {
			return i
		}
	}
	return -1
}
