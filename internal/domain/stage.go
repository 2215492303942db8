package domain

import "time"

// Stage is one of the four fixed phases of a run.
type Stage struct {
	RunID       string      `json:"run_id"`
	Index       int         `json:"index"`
	Name        string      `json:"name"`
	Status      StageStatus `json:"status"`
	Progress    float64     `json:"progress"`
	Summary     string      `json:"summary,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// ClampProgress bounds a progress value to [0,1]. Worker reports are not
// trusted to stay in range.
func ClampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
