// Package store persists evaluation runs and their per-receipt evaluations.
// Two backends implement the same interface: SQLite for local single-user
// work and Postgres for shared deployments.
package store

import (
	"context"
	"time"

	"github.com/sells-group/receipt-eval/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.EvalRunStatus `json:"status,omitempty"`
	Strategy     string              `json:"strategy,omitempty"`
	CreatedAfter time.Time           `json:"created_after,omitempty"`
	Limit        int                 `json:"limit,omitempty"`
	Offset       int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for evaluation runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, label string, strategies []string) (*model.EvalRun, error)
	CompleteRun(ctx context.Context, runID string, receipts, evaluations int) error
	FailRun(ctx context.Context, runID string, message string) error
	GetRun(ctx context.Context, runID string) (*model.EvalRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.EvalRun, error)

	// Evaluations
	SaveEvaluations(ctx context.Context, runID string, evals []model.Evaluation) error
	ListEvaluations(ctx context.Context, runID string) ([]model.Evaluation, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
