package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gocombine/domain/combination"
	"gocombine/domain/core"
	"gocombine/internal/errors"
	"gocombine/ports"

	"github.com/jmoiron/sqlx"
)

// pointPayload is a PointResult stored as a JSONB column
type pointPayload combination.PointResult

// Value implements driver.Valuer interface
func (p pointPayload) Value() (driver.Value, error) {
	return json.Marshal(combination.PointResult(p))
}

// Scan implements sql.Scanner interface
func (p *pointPayload) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*p = pointPayload{}
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into point payload", value)
	}
	var res combination.PointResult
	if err := json.Unmarshal(bytes, &res); err != nil {
		return err
	}
	*p = pointPayload(res)
	return nil
}

type runRow struct {
	ID        string    `db:"id"`
	Mode      string    `db:"mode"`
	Policy    string    `db:"policy"`
	InputHash string    `db:"input_hash"`
	CreatedAt time.Time `db:"created_at"`
}

type resultRow struct {
	RunID        string          `db:"run_id"`
	Position     int             `db:"position"`
	PointID      string          `db:"point_id"`
	BestAnalyses string          `db:"best_analyses"`
	Z            sql.NullFloat64 `db:"z"`
	MuHat        sql.NullFloat64 `db:"mu_hat"`
	Failed       bool            `db:"failed"`
	Payload      pointPayload    `db:"payload"`
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// ResultRepositoryImpl implements ResultRepository for PostgreSQL
type ResultRepositoryImpl struct {
	db *sqlx.DB
}

// NewResultRepository creates a new PostgreSQL result repository
func NewResultRepository(db *sqlx.DB) ports.ResultRepository {
	return &ResultRepositoryImpl{db: db}
}

// SaveRun stores a run and replaces any point results stored for it
func (r *ResultRepositoryImpl) SaveRun(ctx context.Context, run *combination.Run) error {
	if run == nil || run.ID == "" {
		return errors.InvalidInput("run must have an ID")
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to begin transaction"))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO combination_runs (id, mode, policy, input_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET mode = EXCLUDED.mode, policy = EXCLUDED.policy, input_hash = EXCLUDED.input_hash
	`, run.ID.String(), string(run.Mode), run.Policy, run.InputHash.String(), run.CreatedAt)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to save run"))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM combination_results WHERE run_id = $1`, run.ID.String()); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to clear point results"))
	}

	for i, p := range run.Points {
		row := resultRow{
			RunID:    run.ID.String(),
			Position: i,
			PointID:  p.PointID.String(),
			Failed:   p.Failed(),
			Payload:  pointPayload(p),
		}
		if best, ok := p.Best(); ok {
			row.BestAnalyses = best.AnalysisID()
			row.Z = nullFloat(best.Z)
			row.MuHat = nullFloat(best.MuHat)
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO combination_results (run_id, position, point_id, best_analyses, z, mu_hat, failed, payload)
			VALUES (:run_id, :position, :point_id, :best_analyses, :z, :mu_hat, :failed, :payload)
		`, row)
		if err != nil {
			return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to save point %s", p.PointID))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to commit run"))
	}
	return nil
}

// GetRun retrieves a run and its point results in input order
func (r *ResultRepositoryImpl) GetRun(ctx context.Context, id core.RunID) (*combination.Run, error) {
	var rr runRow
	err := r.db.GetContext(ctx, &rr, `
		SELECT id, mode, policy, input_hash, created_at
		FROM combination_runs
		WHERE id = $1
	`, id.String())
	if err == sql.ErrNoRows {
		return nil, core.NewNotFoundError("run", id.String())
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to load run"))
	}

	var rows []resultRow
	err = r.db.SelectContext(ctx, &rows, `
		SELECT run_id, position, point_id, best_analyses, z, mu_hat, failed, payload
		FROM combination_results
		WHERE run_id = $1
		ORDER BY position
	`, id.String())
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to load point results"))
	}

	run := &combination.Run{
		ID:        core.RunID(rr.ID),
		Mode:      combination.Mode(rr.Mode),
		Policy:    rr.Policy,
		InputHash: core.Hash(rr.InputHash),
		CreatedAt: rr.CreatedAt,
		Points:    make([]combination.PointResult, len(rows)),
	}
	for i, row := range rows {
		run.Points[i] = combination.PointResult(row.Payload)
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally limited
func (r *ResultRepositoryImpl) ListRuns(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	query := `
		SELECT r.id, r.mode, r.policy, r.created_at,
			COUNT(p.position) AS points,
			COUNT(p.position) FILTER (WHERE p.failed) AS failures
		FROM combination_runs r
		LEFT JOIN combination_results p ON p.run_id = r.id
		GROUP BY r.id, r.mode, r.policy, r.created_at
		ORDER BY r.created_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var out []ports.RunSummary
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to list runs"))
	}
	return out, nil
}

// DeleteRun removes a run; point results go with it
func (r *ResultRepositoryImpl) DeleteRun(ctx context.Context, id core.RunID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM combination_runs WHERE id = $1`, id.String())
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to delete run"))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NewNotFoundError("run", id.String())
	}
	return nil
}
