package ports

import (
	"context"
	"time"

	"gocombine/domain/combination"
	"gocombine/domain/core"
)

// RunSummary is the listing view of a stored run
type RunSummary struct {
	ID        core.RunID       `json:"id" db:"id"`
	Mode      combination.Mode `json:"mode" db:"mode"`
	Policy    string           `json:"policy" db:"policy"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	Points    int              `json:"points" db:"points"`
	Failures  int              `json:"failures" db:"failures"`
}

// ResultRepository defines the interface for combination run storage
type ResultRepository interface {
	// SaveRun stores a run and all of its point results
	SaveRun(ctx context.Context, run *combination.Run) error

	// GetRun retrieves a run by ID
	GetRun(ctx context.Context, id core.RunID) (*combination.Run, error)

	// ListRuns returns the most recent runs first, optionally limited
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// DeleteRun removes a run and its point results
	DeleteRun(ctx context.Context, id core.RunID) error
}
