package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/roach88/uirun/internal/page"
	"github.com/roach88/uirun/internal/scenario"
)

// Asserter evaluates post-conditions against a page.
type Asserter struct {
	clock  Clock
	timing Timing
	logger *slog.Logger
}

// NewAsserter creates an asserter with default timing t.
// A nil clock means SystemClock and a nil logger discards output.
func NewAsserter(clock Clock, t Timing, logger *slog.Logger) *Asserter {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Asserter{clock: clock, timing: t, logger: logger}
}

// Evaluate checks the condition once. It reports whether the condition
// holds and what was observed. A non-nil error means the page could not be
// inspected; it says nothing about the condition.
//
// Evaluate has no step to scope to, so request-made searches every request
// the page recorded.
func (a *Asserter) Evaluate(ctx context.Context, c scenario.Condition, p page.Page) (bool, Observation, error) {
	return a.evaluate(ctx, c, p, 0)
}

// evaluate is Evaluate with request-made limited to the requests from index
// since onward.
func (a *Asserter) evaluate(ctx context.Context, c scenario.Condition, p page.Page, since int) (bool, Observation, error) {
	var obs Observation

	switch c.Kind {
	case scenario.ElementExists, scenario.ElementVisible, scenario.ElementAbsent:
		if c.Target == nil {
			return false, obs, fmt.Errorf("%s requires a target", c.Kind)
		}
		matches, err := p.Query(ctx, *c.Target)
		if err != nil {
			return false, obs, fmt.Errorf("query %s: %w", c.Target, err)
		}
		obs = observeMatches(matches)
		return elementCondition(c.Kind, *c.Target, matches), obs, nil

	case scenario.URLContains:
		url, err := p.URL(ctx)
		if err != nil {
			return false, obs, fmt.Errorf("read url: %w", err)
		}
		obs.URL = url
		return strings.Contains(url, c.Value), obs, nil

	case scenario.RequestMade:
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return false, obs, stop(fmt.Errorf("invalid URL pattern %q: %w", c.Value, err))
		}
		reqs, err := p.Requests(ctx)
		if err != nil {
			return false, obs, fmt.Errorf("read requests: %w", err)
		}
		if since > 0 && since <= len(reqs) {
			reqs = reqs[since:]
		}
		obs.Detail = fmt.Sprintf("requests=%d", len(reqs))
		if since > 0 {
			obs.Detail += fmt.Sprintf(" skipped=%d", since)
		}
		for _, r := range reqs {
			if re.MatchString(r.URL) {
				obs.Detail = fmt.Sprintf("requests=%d matched=%s %s", len(reqs), r.Method, r.URL)
				return true, obs, nil
			}
		}
		if n := len(reqs); n > 0 {
			obs.Detail += " last=" + reqs[n-1].URL
		}
		return false, obs, nil
	}

	return false, obs, stop(fmt.Errorf("unknown condition kind %q", c.Kind))
}

// elementCondition decides the element kinds. With an index only the
// indexed element counts; without one any match counts.
func elementCondition(kind scenario.ConditionKind, t page.Target, matches []page.Element) bool {
	candidates := matches
	if t.Index != nil {
		el, ok := t.Pick(matches)
		if !ok {
			candidates = nil
		} else {
			candidates = []page.Element{el}
		}
	}

	switch kind {
	case scenario.ElementExists:
		return len(candidates) > 0
	case scenario.ElementAbsent:
		return len(candidates) == 0
	case scenario.ElementVisible:
		for _, el := range candidates {
			if el.Visible {
				return true
			}
		}
	}
	return false
}

// Assert waits until the condition holds, using the condition's own timing
// overrides on top of the asserter defaults. It returns an
// *RuntimeError with ErrCodeAssertionTimeout carrying the last observation
// when the timeout elapses.
func (a *Asserter) Assert(ctx context.Context, c scenario.Condition, p page.Page) error {
	_, err := a.assert(ctx, c, p, a.timing.Override(c.Timeout, c.Poll), 0)
	return err
}

// assert polls the condition. since is passed through to evaluate.
func (a *Asserter) assert(ctx context.Context, c scenario.Condition, p page.Page, t Timing, since int) (int, error) {
	var last Observation
	res, err := poll(ctx, a.clock, t, func(ctx context.Context) (bool, error) {
		ok, obs, err := a.evaluate(ctx, c, p, since)
		if err == nil {
			last = obs
		}
		return ok, err
	})

	switch {
	case err == nil:
		a.logger.Debug("condition held", "condition", Describe(c), "attempts", res.Attempts)
		return res.Attempts, nil
	case errors.Is(err, errWaitTimeout):
		if last.URL == "" {
			last.URL, _ = p.URL(ctx)
		}
		a.logger.Debug("condition timed out", "condition", Describe(c), "attempts", res.Attempts, "timeout", t.Timeout)
		return res.Attempts, NewAssertionTimeoutError(Describe(c), last, res.LastErr)
	default:
		return res.Attempts, err
	}
}

// Describe renders a condition for messages: element-visible .card [0].
func Describe(c scenario.Condition) string {
	switch {
	case c.Target != nil:
		return fmt.Sprintf("%s %s", c.Kind, c.Target)
	case c.Value != "":
		return fmt.Sprintf("%s %q", c.Kind, c.Value)
	default:
		return string(c.Kind)
	}
}

func observeMatches(matches []page.Element) Observation {
	obs := Observation{Matches: len(matches)}
	for i, el := range matches {
		if i == maxObservedElements {
			break
		}
		obs.Elements = append(obs.Elements, el.String())
	}
	return obs
}
