package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/roach88/uirun/internal/engine"
	"github.com/roach88/uirun/internal/fixture"
	"github.com/roach88/uirun/internal/page"
	"github.com/roach88/uirun/internal/scenario"
)

// snapshotTimeout bounds the diagnostic capture after a failure.
const snapshotTimeout = 5 * time.Second

// Runner executes scenarios. It is safe for concurrent use; every Run opens
// its own page session.
type Runner struct {
	exec     *engine.Executor
	pages    page.Factory
	fixtures scenario.Lookup
	clock    engine.Clock
	newID    func() string
	logger   *slog.Logger
	workers  int
	limiter  *rate.Limiter
}

// Option configures a Runner.
type Option func(*Runner)

// WithFixtures sets the fixture source. Without it every fixture reference
// fails with fixture.ErrNotFound.
func WithFixtures(lookup scenario.Lookup) Option {
	return func(r *Runner) { r.fixtures = lookup }
}

// WithClock sets the clock used for start and finish times.
func WithClock(c engine.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithIDs sets the run ID source. The default is random UUIDs.
func WithIDs(next func() string) Option {
	return func(r *Runner) { r.newID = next }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithWorkers bounds how many scenarios RunAll runs at once. Values below 1
// mean 1.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = max(n, 1) }
}

// WithRate limits scenario starts to perSecond. Zero or negative means
// unlimited.
func WithRate(perSecond float64) Option {
	return func(r *Runner) {
		if perSecond <= 0 {
			r.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// New creates a runner that executes steps with exec on pages opened by
// pages.
func New(exec *engine.Executor, pages page.Factory, opts ...Option) *Runner {
	r := &Runner{
		exec:     exec,
		pages:    pages,
		fixtures: fixture.New(nil).Load,
		clock:    engine.SystemClock{},
		newID:    func() string { return uuid.NewString() },
		logger:   slog.New(slog.DiscardHandler),
		workers:  1,
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one scenario and returns its result. Run never returns an
// error: every failure is recorded on the result.
func (r *Runner) Run(ctx context.Context, sc *scenario.Scenario) *RunResult {
	res := NewRunResult(r.newID(), sc)
	res.Started = r.clock.Now()
	log := r.logger.With("scenario", sc.Name, "run_id", res.RunID)
	r.transition(res, StatusRunning)
	log.Info("scenario started", "steps", len(sc.Steps))

	r.execute(ctx, sc, res, log)

	res.Finished = r.clock.Now()
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	log.Info("scenario finished", "status", res.Status, "duration", res.Duration(), "failed_step", res.FailedStep)
	return res
}

func (r *Runner) execute(ctx context.Context, sc *scenario.Scenario, res *RunResult, log *slog.Logger) {
	bound, err := sc.Bind(r.fixtures)
	if err != nil {
		r.fail(res, StatusFailed, fmt.Errorf("bind fixtures: %w", err))
		return
	}

	p, err := r.pages(ctx)
	if err != nil {
		r.fail(res, StatusFailed, fmt.Errorf("open page session: %w", err))
		return
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn("close page session", "error", err)
		}
	}()

	for i, step := range bound.Steps {
		out := r.runStep(ctx, i, step, p)
		res.Steps = append(res.Steps, out)
		if out.Status == engine.StepPassed {
			continue
		}

		log.Warn("step failed", "step", i, "label", out.Label, "status", out.Status, "error", out.Err)
		res.FailedStep = i
		status := StatusFailed
		if out.Status == engine.StepTimeout {
			status = StatusTimedOut
		}
		r.fail(res, status, &StepFailure{Index: i, Label: out.Label, Action: out.Action, Err: out.Err})
		res.Diagnostic = r.snapshot(ctx, p, log)
		return
	}
	r.transition(res, StatusPassed)
}

// runStep executes a step, converting a panic into a failed outcome.
func (r *Runner) runStep(ctx context.Context, i int, step scenario.Step, p page.Page) (out engine.StepOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			out = engine.StepOutcome{
				Index:  i,
				Label:  step.Label(),
				Action: step.Action,
				Status: engine.StepFailed,
				Err:    err,
				Error:  err.Error(),
			}
		}
	}()
	out = r.exec.Execute(ctx, step, p)
	out.Index = i
	return out
}

// snapshot captures the page for diagnostics. It runs even when ctx is
// already cancelled or past its deadline.
func (r *Runner) snapshot(ctx context.Context, p page.Page, log *slog.Logger) *page.Snapshot {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotTimeout)
	defer cancel()

	snap, err := p.Snapshot(sctx)
	if err != nil {
		log.Warn("capture diagnostic snapshot", "error", err)
		return nil
	}
	snap.HTML = page.TruncateHTML(snap.HTML)
	return &snap
}

func (r *Runner) fail(res *RunResult, status Status, err error) {
	res.Err = err
	r.transition(res, status)
}

func (r *Runner) transition(res *RunResult, to Status) {
	if err := res.Transition(to); err != nil {
		r.logger.Error("invalid status transition", "error", err)
	}
}

// RunAll executes scenarios through the worker pool and returns a report
// whose results follow the order of scenarios.
//
// Scenario failures are in the report, not the error. The error is non-nil
// only when ctx ends; scenarios that never started are then reported as
// failed with the context error.
func (r *Runner) RunAll(ctx context.Context, scenarios []*scenario.Scenario) (*Report, error) {
	report := &Report{Started: r.clock.Now(), Results: make([]*RunResult, len(scenarios))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, sc := range scenarios {
		g.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				report.Results[i] = r.skipped(sc, err)
				return nil
			}
			report.Results[i] = r.Run(gctx, sc)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	report.Finished = r.clock.Now()
	s := report.Summary()
	r.logger.Info("suite finished",
		"total", s.Total, "passed", s.Passed, "failed", s.Failed, "timed_out", s.TimedOut,
		"duration", s.Duration)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// skipped records a scenario that could not start.
func (r *Runner) skipped(sc *scenario.Scenario, cause error) *RunResult {
	res := NewRunResult(r.newID(), sc)
	res.Started = r.clock.Now()
	r.transition(res, StatusRunning)
	r.fail(res, StatusFailed, fmt.Errorf("not started: %w", cause))
	res.Error = res.Err.Error()
	res.Finished = res.Started
	return res
}

// IsStepFailure reports whether err is, or wraps, a StepFailure.
func IsStepFailure(err error) bool {
	var sf *StepFailure
	return errors.As(err, &sf)
}
