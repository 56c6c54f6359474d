package harness

import (
	"fmt"
	"time"

	"github.com/roach88/uirun/internal/engine"
	"github.com/roach88/uirun/internal/page"
	"github.com/roach88/uirun/internal/scenario"
)

// Status is the lifecycle state of a scenario run.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusPassed   Status = "passed"
	StatusFailed   Status = "failed"
	StatusTimedOut Status = "timed_out"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusTimedOut
}

// NoFailedStep is RunResult.FailedStep when no step failed.
const NoFailedStep = -1

// RunResult is the outcome of one scenario execution.
type RunResult struct {
	// RunID uniquely identifies this execution.
	RunID string `json:"run_id"`

	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Source is the file the scenario was loaded from.
	Source string `json:"source,omitempty"`

	Status Status `json:"status"`

	// Steps holds one outcome per executed step, in order. Steps after
	// the first failure are not executed and not listed.
	Steps []engine.StepOutcome `json:"steps"`

	// FailedStep is the index of the first failing step, or NoFailedStep.
	// A scenario that fails before any step (fixtures, session) keeps
	// NoFailedStep.
	FailedStep int `json:"failed_step"`

	// Err is the failure cause: a *StepFailure for step failures.
	Err error `json:"-"`

	// Error is Err rendered for reports and storage.
	Error string `json:"error,omitempty"`

	// Diagnostic is the page state captured at the failure.
	Diagnostic *page.Snapshot `json:"diagnostic,omitempty"`

	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// NewRunResult creates a pending result.
func NewRunResult(runID string, sc *scenario.Scenario) *RunResult {
	return &RunResult{
		RunID:      runID,
		Scenario:   sc.Name,
		Source:     sc.Source,
		Status:     StatusPending,
		Steps:      []engine.StepOutcome{},
		FailedStep: NoFailedStep,
	}
}

// Transition moves the result to a new status. Leaving a terminal status,
// or going back to pending, is an error.
func (r *RunResult) Transition(to Status) error {
	if r.Status.Terminal() {
		return fmt.Errorf("run %s: cannot transition from terminal status %s to %s", r.RunID, r.Status, to)
	}
	if to == StatusPending || (to.Terminal() && r.Status != StatusRunning) {
		return fmt.Errorf("run %s: invalid transition %s -> %s", r.RunID, r.Status, to)
	}
	r.Status = to
	return nil
}

// Passed reports whether the scenario passed.
func (r *RunResult) Passed() bool {
	return r.Status == StatusPassed
}

// Duration is the wall time between start and finish.
func (r *RunResult) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// FailedOutcome returns the first failing step's outcome.
func (r *RunResult) FailedOutcome() (engine.StepOutcome, bool) {
	if r.FailedStep < 0 || r.FailedStep >= len(r.Steps) {
		return engine.StepOutcome{}, false
	}
	return r.Steps[r.FailedStep], true
}

// StepFailure wraps the error of the first failing step.
type StepFailure struct {
	Index  int
	Label  string
	Action scenario.Action
	Err    error
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Label, e.Err)
}

// Unwrap returns the step's error, so errors.Is(err, engine.ErrTargetNotFound)
// works on a StepFailure.
func (e *StepFailure) Unwrap() error {
	return e.Err
}

// Report aggregates the results of a suite run.
type Report struct {
	Results  []*RunResult `json:"results"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
}

// Summary counts results by status.
type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	TimedOut int           `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Summary counts the report's results.
func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.Results)}
	if !r.Finished.IsZero() {
		s.Duration = r.Finished.Sub(r.Started)
	}
	for _, res := range r.Results {
		switch res.Status {
		case StatusPassed:
			s.Passed++
		case StatusTimedOut:
			s.TimedOut++
		default:
			s.Failed++
		}
	}
	return s
}

// Passed reports whether every scenario passed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}
	return true
}
