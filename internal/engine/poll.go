package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default timing used when neither the step nor the configuration sets one.
const (
	DefaultTimeout = 10 * time.Second
	DefaultPoll    = 100 * time.Millisecond
	DefaultMaxPoll = time.Second
)

// backoffFactor multiplies the poll interval after every unsuccessful attempt.
const backoffFactor = 2

// Timing bounds a wait.
type Timing struct {
	// Timeout is the total time allowed. Zero means a single attempt.
	Timeout time.Duration

	// Poll is the interval before the second attempt.
	Poll time.Duration

	// MaxPoll caps the interval as it backs off.
	MaxPoll time.Duration
}

// DefaultTiming returns the built-in defaults: 10s timeout, 100ms initial
// poll, 1s cap.
func DefaultTiming() Timing {
	return Timing{Timeout: DefaultTimeout, Poll: DefaultPoll, MaxPoll: DefaultMaxPoll}
}

// Override returns t with the non-nil overrides applied.
func (t Timing) Override(timeout, poll *time.Duration) Timing {
	if timeout != nil {
		t.Timeout = *timeout
	}
	if poll != nil {
		t.Poll = *poll
	}
	return t
}

// Validate checks that the timing can drive a wait.
func (t Timing) Validate() error {
	if t.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %s", t.Timeout)
	}
	if t.Poll <= 0 {
		return fmt.Errorf("poll must be positive, got %s", t.Poll)
	}
	if t.MaxPoll < t.Poll {
		return fmt.Errorf("max poll %s is below poll %s", t.MaxPoll, t.Poll)
	}
	return nil
}

// next returns the interval following cur.
func (t Timing) next(cur time.Duration) time.Duration {
	n := cur * backoffFactor
	limit := t.MaxPoll
	if limit < t.Poll {
		limit = t.Poll
	}
	if n > limit {
		return limit
	}
	return n
}

// errWaitTimeout is returned by poll when the deadline passes.
var errWaitTimeout = errors.New("wait timed out")

// stopError ends polling immediately with Err.
type stopError struct{ Err error }

func (e *stopError) Error() string { return e.Err.Error() }
func (e *stopError) Unwrap() error { return e.Err }

// stop marks err as final: poll returns it without further attempts.
func stop(err error) error { return &stopError{Err: err} }

// pollResult describes how a wait ended.
type pollResult struct {
	Attempts int

	// LastErr is the most recent transient check error.
	LastErr error
}

// poll runs check until it reports done, the timeout elapses, the check
// returns a stop error, or ctx ends.
//
// Transient check errors (a page mid-navigation, a detached node) do not end
// the wait; the last one is kept in the result. On timeout poll returns
// errWaitTimeout.
func poll(ctx context.Context, clock Clock, t Timing, check func(context.Context) (bool, error)) (pollResult, error) {
	var res pollResult
	deadline := clock.Now().Add(t.Timeout)
	interval := t.Poll

	for {
		res.Attempts++
		done, err := check(ctx)
		if err != nil {
			var se *stopError
			if errors.As(err, &se) {
				return res, se.Err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.LastErr = err
		} else {
			res.LastErr = nil
		}
		if done {
			return res, nil
		}

		remaining := deadline.Sub(clock.Now())
		if t.Timeout == 0 || remaining <= 0 {
			return res, errWaitTimeout
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-clock.After(wait):
		}
		interval = t.next(interval)
	}
}
