package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/uirun/internal/engine"
	"github.com/roach88/uirun/internal/harness"
	"github.com/roach88/uirun/internal/page"
	"github.com/roach88/uirun/internal/scenario"
)

// ReadRuns returns the newest runs first, with their step outcomes. An
// empty scenario name returns runs of every scenario. A limit of zero or
// less returns every matching run.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadRuns(ctx context.Context, scenarioName string, limit int) ([]*harness.RunResult, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, scenario, source, status, failed_step, error, diagnostic, started_at, finished_at
		FROM runs
		WHERE ? = '' OR scenario = ?
		ORDER BY seq DESC
		LIMIT ?
	`, scenarioName, scenarioName, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	runs := []*harness.RunResult{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	rows.Close()

	// Steps are read after the run cursor is closed; the store holds a
	// single connection.
	for _, r := range runs {
		steps, err := s.readSteps(ctx, r.RunID)
		if err != nil {
			return nil, err
		}
		r.Steps = steps
	}
	return runs, nil
}

// LastRun returns the most recent run of a scenario, or ErrNotFound.
func (s *Store) LastRun(ctx context.Context, scenarioName string) (*harness.RunResult, error) {
	runs, err := s.ReadRuns(ctx, scenarioName, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("scenario %q: %w", scenarioName, ErrNotFound)
	}
	return runs[0], nil
}

// ReadRun returns one run by ID, or ErrNotFound.
func (s *Store) ReadRun(ctx context.Context, runID string) (*harness.RunResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, scenario, source, status, failed_step, error, diagnostic, started_at, finished_at
		FROM runs
		WHERE run_id = ?
	`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if r.Steps, err = s.readSteps(ctx, runID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) readSteps(ctx context.Context, runID string) ([]engine.StepOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_index, label, action, status, attempts, duration_ns, error, observed
		FROM step_outcomes
		WHERE run_id = ?
		ORDER BY step_index ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps of %s: %w", runID, err)
	}
	defer rows.Close()

	steps := []engine.StepOutcome{}
	for rows.Next() {
		var (
			out      engine.StepOutcome
			action   string
			status   string
			duration int64
			observed sql.NullString
		)
		if err := rows.Scan(&out.Index, &out.Label, &action, &status, &out.Attempts, &duration, &out.Error, &observed); err != nil {
			return nil, fmt.Errorf("scan step of %s: %w", runID, err)
		}
		out.Action = scenario.Action(action)
		out.Status = engine.StepStatus(status)
		out.Duration = time.Duration(duration)
		if out.Error != "" {
			out.Err = errors.New(out.Error)
		}
		if out.Observed, err = unmarshalOptional[engine.Observation](observed); err != nil {
			return nil, fmt.Errorf("step %d of %s: %w", out.Index, runID, err)
		}
		steps = append(steps, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps of %s: %w", runID, err)
	}
	return steps, nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*harness.RunResult, error) {
	var (
		r          harness.RunResult
		status     string
		diagnostic sql.NullString
		started    string
		finished   string
	)
	err := row.Scan(&r.RunID, &r.Scenario, &r.Source, &status, &r.FailedStep, &r.Error, &diagnostic, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	r.Status = harness.Status(status)
	if r.Error != "" {
		r.Err = errors.New(r.Error)
	}
	if r.Diagnostic, err = unmarshalOptional[page.Snapshot](diagnostic); err != nil {
		return nil, fmt.Errorf("run %s: diagnostic: %w", r.RunID, err)
	}
	if r.Started, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("run %s: started_at: %w", r.RunID, err)
	}
	if r.Finished, err = time.Parse(timeLayout, finished); err != nil {
		return nil, fmt.Errorf("run %s: finished_at: %w", r.RunID, err)
	}
	r.Steps = []engine.StepOutcome{}
	return &r, nil
}
