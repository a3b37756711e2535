// Package memory keeps runs in process memory, for the CLI and for servers
// started without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"gocombine/domain/combination"
	"gocombine/domain/core"
	"gocombine/internal/errors"
	"gocombine/ports"
)

// ResultRepository implements ports.ResultRepository in memory
type ResultRepository struct {
	mu   sync.RWMutex
	runs map[core.RunID]*combination.Run
}

// NewResultRepository creates an empty store
func NewResultRepository() ports.ResultRepository {
	return &ResultRepository{runs: make(map[core.RunID]*combination.Run)}
}

func copyRun(run *combination.Run) *combination.Run {
	c := *run
	c.Points = append([]combination.PointResult(nil), run.Points...)
	return &c
}

// SaveRun stores a copy of run, replacing any run with the same ID
func (r *ResultRepository) SaveRun(ctx context.Context, run *combination.Run) error {
	if run == nil || run.ID == "" {
		return errors.InvalidInput("run must have an ID")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = copyRun(run)
	return nil
}

// GetRun retrieves a run by ID
func (r *ResultRepository) GetRun(ctx context.Context, id core.RunID) (*combination.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, core.NewNotFoundError("run", id.String())
	}
	return copyRun(run), nil
}

// ListRuns returns the most recent runs first
func (r *ResultRepository) ListRuns(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	r.mu.RLock()
	out := make([]ports.RunSummary, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, ports.RunSummary{
			ID:        run.ID,
			Mode:      run.Mode,
			Policy:    run.Policy,
			CreatedAt: run.CreatedAt,
			Points:    len(run.Points),
			Failures:  run.Failures(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteRun removes a run
func (r *ResultRepository) DeleteRun(ctx context.Context, id core.RunID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[id]; !ok {
		return core.NewNotFoundError("run", id.String())
	}
	delete(r.runs, id)
	return nil
}
