package migration

import (
	"context"

	"gocombine/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

var _ Migrator = (*MigrationRunner)(nil)

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.2.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order. Every step is
// idempotent.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create combination_runs table")
	}

	if err := r.createResultsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create combination_results table")
	}

	if err := r.addResultColumns(ctx, db); err != nil {
		return errors.Wrap(err, "failed to add missing columns")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS combination_runs (
			id UUID PRIMARY KEY,
			mode VARCHAR(20) NOT NULL,
			policy TEXT NOT NULL,
			input_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createResultsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS combination_results (
			run_id UUID NOT NULL REFERENCES combination_runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			point_id TEXT NOT NULL,
			best_analyses TEXT NOT NULL DEFAULT '',
			z DOUBLE PRECISION,
			payload JSONB NOT NULL,
			PRIMARY KEY (run_id, position)
		)
	`)
	return err
}

// addResultColumns brings tables created by earlier versions up to date
func (r *MigrationRunner) addResultColumns(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'combination_results' AND column_name = 'mu_hat'
			) THEN
				ALTER TABLE combination_results ADD COLUMN mu_hat DOUBLE PRECISION;
			END IF;

			IF NOT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'combination_results' AND column_name = 'failed'
			) THEN
				ALTER TABLE combination_results ADD COLUMN failed BOOLEAN NOT NULL DEFAULT false;
			END IF;

			IF NOT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'combination_runs' AND column_name = 'input_hash'
			) THEN
				ALTER TABLE combination_runs ADD COLUMN input_hash TEXT NOT NULL DEFAULT '';
			END IF;
		END $$;
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_combination_runs_created_at ON combination_runs(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_combination_results_point ON combination_results(point_id)`,
		`CREATE INDEX IF NOT EXISTS idx_combination_results_z ON combination_results(z DESC) WHERE NOT failed`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
