package domain

import "time"

// Validation is a pass/fail judgment of a completed run. Multiple historical
// records may exist; the newest of each kind is the current one.
type Validation struct {
	ValidationID string         `json:"validation_id"`
	RunID        string         `json:"run_id"`
	Kind         ValidationKind `json:"kind"`
	Passed       bool           `json:"passed"`
	Score        float64        `json:"score,omitempty"`
	Rubric       string         `json:"rubric,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Artifact is a registered output object of a run.
type Artifact struct {
	ArtifactID  string    `json:"artifact_id"`
	RunID       string    `json:"run_id"`
	Key         string    `json:"key"`
	URI         string    `json:"uri"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	Checksum    string    `json:"checksum,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
