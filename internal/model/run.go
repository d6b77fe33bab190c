package model

import "time"

// EvalRunStatus represents the state of a persisted evaluation run.
type EvalRunStatus string

const (
	EvalRunStatusRunning  EvalRunStatus = "running"
	EvalRunStatusComplete EvalRunStatus = "complete"
	EvalRunStatusFailed   EvalRunStatus = "failed"
)

// EvalRun is the persisted envelope for one evaluation batch: which result
// files were scored, against which ground truth, and when. The evaluations
// themselves hang off the run; summaries and rankings are recomputed from
// them on demand.
type EvalRun struct {
	ID          string        `json:"id"`
	Label       string        `json:"label,omitempty"`
	Status      EvalRunStatus `json:"status"`
	Strategies  []string      `json:"strategies,omitempty"`
	Receipts    int           `json:"receipts"`
	Evaluations int           `json:"evaluations"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
