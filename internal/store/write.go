package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/uirun/internal/harness"
)

// timeLayout is the TEXT encoding of timestamps. UTC keeps rows comparable.
const timeLayout = time.RFC3339Nano

// WriteRun inserts a finished run and its step outcomes in one
// transaction. Writing a run ID that already exists is an error, as is a
// run that has not reached a terminal status.
func (s *Store) WriteRun(ctx context.Context, r *harness.RunResult) error {
	if !r.Status.Terminal() {
		return fmt.Errorf("write run %s: status %s is not terminal", r.RunID, r.Status)
	}

	diagnostic, err := marshalOptional(r.Diagnostic)
	if err != nil {
		return fmt.Errorf("write run %s: %w", r.RunID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run %s: begin: %w", r.RunID, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, scenario, source, status, failed_step, error, diagnostic, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.RunID,
		r.Scenario,
		r.Source,
		string(r.Status),
		r.FailedStep,
		r.Error,
		diagnostic,
		r.Started.UTC().Format(timeLayout),
		r.Finished.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("write run %s: %w", r.RunID, err)
	}

	for _, out := range r.Steps {
		observed, err := marshalOptional(out.Observed)
		if err != nil {
			return fmt.Errorf("write run %s: step %d: %w", r.RunID, out.Index, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO step_outcomes
			(run_id, step_index, label, action, status, attempts, duration_ns, error, observed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			r.RunID,
			out.Index,
			out.Label,
			string(out.Action),
			string(out.Status),
			out.Attempts,
			int64(out.Duration),
			out.Error,
			observed,
		)
		if err != nil {
			return fmt.Errorf("write run %s: step %d: %w", r.RunID, out.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run %s: commit: %w", r.RunID, err)
	}
	return nil
}

// Prune keeps the newest keep runs of every scenario and deletes the rest.
// It returns the number of runs deleted.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("prune: keep must be >= 0, got %d", keep)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("prune: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const doomed = `
		SELECT run_id FROM (
			SELECT run_id, ROW_NUMBER() OVER (PARTITION BY scenario ORDER BY seq DESC) AS rn
			FROM runs
		) WHERE rn > ?`

	if _, err := tx.ExecContext(ctx, `DELETE FROM step_outcomes WHERE run_id IN (`+doomed+`)`, keep); err != nil {
		return 0, fmt.Errorf("prune steps: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id IN (`+doomed+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("prune: commit: %w", err)
	}
	return n, nil
}

// marshalOptional encodes v as JSON TEXT, or NULL when v is nil.
func marshalOptional[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal %T: %w", v, err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalOptional decodes JSON TEXT written by marshalOptional.
func unmarshalOptional[T any](s sql.NullString) (*T, error) {
	if !s.Valid {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal([]byte(s.String), v); err != nil {
		return nil, fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return v, nil
}
