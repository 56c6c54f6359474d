package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/uirun/internal/page"
	"github.com/roach88/uirun/internal/scenario"
)

// StepStatus is the result of one step.
type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepTimeout StepStatus = "timeout"
)

// StepOutcome records how a step ran.
type StepOutcome struct {
	// Index is the step's position in the scenario. Set by the runner.
	Index int `json:"index"`

	Label  string          `json:"label"`
	Action scenario.Action `json:"action"`
	Status StepStatus      `json:"status"`

	// Attempts counts target and condition checks.
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`

	// Err is nil for passed steps.
	Err error `json:"-"`

	// Error is Err rendered for reports and storage.
	Error string `json:"error,omitempty"`

	// Observed is the last page state seen by a failing step.
	Observed *Observation `json:"observed,omitempty"`
}

// Options configures an Executor.
type Options struct {
	// BaseURL resolves relative navigate URLs.
	BaseURL string

	// Timing is the default for steps and conditions without overrides.
	Timing Timing

	// Clock defaults to SystemClock.
	Clock Clock

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Executor runs single steps. It is safe for concurrent use with distinct
// pages.
type Executor struct {
	base     *url.URL
	timing   Timing
	clock    Clock
	logger   *slog.Logger
	asserter *Asserter
}

// NewExecutor validates opts and creates an executor. A zero Timing means
// DefaultTiming.
func NewExecutor(opts Options) (*Executor, error) {
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	if err := opts.Timing.Validate(); err != nil {
		return nil, fmt.Errorf("invalid timing: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	e := &Executor{
		timing:   opts.Timing,
		clock:    opts.Clock,
		logger:   opts.Logger,
		asserter: NewAsserter(opts.Clock, opts.Timing, opts.Logger),
	}
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		if !u.IsAbs() {
			return nil, fmt.Errorf("base URL %q must be absolute", opts.BaseURL)
		}
		e.base = u
	}
	return e, nil
}

// Asserter returns the executor's assertion engine.
func (e *Executor) Asserter() *Asserter {
	return e.asserter
}

// Execute performs one step and waits for its post-condition.
//
// Execute never panics on driver errors and never returns them directly:
// the outcome's Status and Err describe the result. Steps that time out
// waiting for a target or condition get StepTimeout.
func (e *Executor) Execute(ctx context.Context, step scenario.Step, p page.Page) StepOutcome {
	start := e.clock.Now()
	out := StepOutcome{Label: step.Label(), Action: step.Action}

	attempts, err := e.execute(ctx, step, p)
	out.Attempts = attempts
	out.Duration = e.clock.Now().Sub(start)

	if err == nil {
		out.Status = StepPassed
		e.logger.Debug("step passed", "step", out.Label, "attempts", attempts, "duration", out.Duration)
		return out
	}

	out.Status = StepFailed
	if IsTargetNotFound(err) || IsAssertionTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		out.Status = StepTimeout
	}
	out.Err = err
	out.Error = err.Error()
	var re *RuntimeError
	if errors.As(err, &re) {
		obs := re.Observed
		out.Observed = &obs
	}
	e.logger.Debug("step failed", "step", out.Label, "status", out.Status, "error", err)
	return out
}

func (e *Executor) execute(ctx context.Context, step scenario.Step, p page.Page) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t := e.timing.Override(step.Timeout, step.Poll)
	attempts := 0

	cond, hasCond := condition(step)
	since, err := requestMark(ctx, cond, hasCond, p)
	if err != nil {
		return 0, err
	}

	switch step.Action {
	case scenario.ActionNavigate:
		target, err := e.ResolveURL(step.Value)
		if err != nil {
			return 0, err
		}
		navCtx, cancel := context.WithTimeout(ctx, e.navigationTimeout(t))
		err = p.Navigate(navCtx, target)
		cancel()
		if err != nil {
			return 0, NewActionError("navigate "+target, Observation{URL: target}, err)
		}

	case scenario.ActionClick, scenario.ActionType, scenario.ActionSelect:
		el, n, err := e.resolve(ctx, *step.Target, p, t)
		attempts += n
		if err != nil {
			return attempts, err
		}
		if err := e.act(ctx, step, el, p); err != nil {
			return attempts, NewActionError(fmt.Sprintf("%s %s", step.Action, el), Observation{Matches: 1, Elements: []string{el.String()}}, err)
		}

	case scenario.ActionWaitFor:
		// no action; the condition below is the whole step

	default:
		return 0, fmt.Errorf("unknown action %q", step.Action)
	}

	if !hasCond {
		return attempts, nil
	}
	n, err := e.asserter.assert(ctx, cond, p, t.Override(cond.Timeout, cond.Poll), since)
	return attempts + n, err
}

// requestMark returns how many requests the page recorded before the step
// acts, so a step-scoped request-made condition ignores them. It is zero
// for every other condition.
func requestMark(ctx context.Context, c scenario.Condition, ok bool, p page.Page) (int, error) {
	if !ok || c.Kind != scenario.RequestMade || c.SessionScoped() {
		return 0, nil
	}
	reqs, err := p.Requests(ctx)
	if err != nil {
		return 0, fmt.Errorf("read requests: %w", err)
	}
	return len(reqs), nil
}

// condition returns the post-condition for step. A wait-for step with only
// a target waits for that element to exist.
func condition(step scenario.Step) (scenario.Condition, bool) {
	if step.Expect != nil {
		return *step.Expect, true
	}
	if step.Action == scenario.ActionWaitFor && step.Target != nil {
		return scenario.Condition{Kind: scenario.ElementExists, Target: step.Target}, true
	}
	return scenario.Condition{}, false
}

func (e *Executor) act(ctx context.Context, step scenario.Step, el page.Element, p page.Page) error {
	switch step.Action {
	case scenario.ActionClick:
		return p.Click(ctx, el, page.ClickOptions{Force: step.Force})
	case scenario.ActionType:
		return p.Type(ctx, el, step.Value, step.Clear)
	case scenario.ActionSelect:
		return p.Select(ctx, el, step.Value)
	}
	return fmt.Errorf("action %q takes no element", step.Action)
}

// resolve waits for the target to match exactly one element, or the indexed
// element when the target has an index.
//
// Zero matches keep polling until the timeout and then fail with
// ErrTargetNotFound. Several matches without an index fail immediately with
// ErrAmbiguousTarget: waiting cannot make an inherently multi-match
// descriptor unique.
func (e *Executor) resolve(ctx context.Context, t page.Target, p page.Page, timing Timing) (page.Element, int, error) {
	var (
		matches []page.Element
		last    Observation
	)
	res, err := poll(ctx, e.clock, timing, func(ctx context.Context) (bool, error) {
		m, err := p.Query(ctx, t)
		if err != nil {
			return false, err
		}
		matches = m
		last = observeMatches(m)
		switch {
		case t.Index != nil:
			return len(m) > *t.Index, nil
		case len(m) > 1:
			return false, stop(NewAmbiguousTargetError(t.String(), last))
		default:
			return len(m) == 1, nil
		}
	})

	switch {
	case err == nil:
		el, _ := t.Pick(matches)
		return el, res.Attempts, nil
	case errors.Is(err, errWaitTimeout):
		last.URL, _ = p.URL(ctx)
		return page.Element{}, res.Attempts, NewTargetNotFoundError(t.String(), last, res.LastErr)
	default:
		return page.Element{}, res.Attempts, err
	}
}

// ResolveURL resolves a navigate value against the base URL. Absolute URLs
// are returned unchanged.
func (e *Executor) ResolveURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if e.base == nil {
		return "", fmt.Errorf("relative URL %q needs a base URL", raw)
	}
	return e.base.ResolveReference(u).String(), nil
}

// navigationTimeout bounds a page load. A zero step timeout still allows the
// default.
func (e *Executor) navigationTimeout(t Timing) time.Duration {
	switch {
	case t.Timeout > 0:
		return t.Timeout
	case e.timing.Timeout > 0:
		return e.timing.Timeout
	}
	return DefaultTimeout
}
