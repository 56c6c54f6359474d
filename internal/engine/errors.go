package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by errors.Is against any *RuntimeError of the same code.
var (
	ErrTargetNotFound   = errors.New("target not found")
	ErrAmbiguousTarget  = errors.New("ambiguous target")
	ErrAssertionTimeout = errors.New("assertion timeout")
)

// RuntimeError represents a failure detected while executing a step.
//
// Runtime errors include:
//   - Target not found: no element matched before the timeout
//   - Ambiguous target: several elements matched and no index was given
//   - Assertion timeout: a post-condition never held
//   - Action failed: the driver rejected navigate, click, type or select
//
// RuntimeError carries the last observed page state for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Observed is the page state seen by the last attempt.
	Observed Observation

	// Err is the underlying driver error, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeTargetNotFound indicates zero matches after the timeout.
	ErrCodeTargetNotFound RuntimeErrorCode = "TARGET_NOT_FOUND"

	// ErrCodeAmbiguousTarget indicates several matches without an index.
	ErrCodeAmbiguousTarget RuntimeErrorCode = "AMBIGUOUS_TARGET"

	// ErrCodeAssertionTimeout indicates a condition that never held.
	ErrCodeAssertionTimeout RuntimeErrorCode = "ASSERTION_TIMEOUT"

	// ErrCodeActionFailed indicates the driver failed to perform an action.
	ErrCodeActionFailed RuntimeErrorCode = "ACTION_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if obs := e.Observed.String(); obs != "" {
		fmt.Fprintf(&b, " (%s)", obs)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying driver error.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's code.
func (e *RuntimeError) Is(target error) bool {
	switch e.Code {
	case ErrCodeTargetNotFound:
		return target == ErrTargetNotFound
	case ErrCodeAmbiguousTarget:
		return target == ErrAmbiguousTarget
	case ErrCodeAssertionTimeout:
		return target == ErrAssertionTimeout
	}
	return false
}

// Observation is the page state recorded by the most recent attempt.
type Observation struct {
	// URL is the page URL at the time of the attempt.
	URL string `json:"url,omitempty"`

	// Matches is the number of elements the target matched.
	Matches int `json:"matches"`

	// Elements describes the first few matched elements.
	Elements []string `json:"elements,omitempty"`

	// Detail is condition-specific context, such as the requests seen.
	Detail string `json:"detail,omitempty"`
}

// maxObservedElements bounds Observation.Elements.
const maxObservedElements = 5

// String renders the observation for error messages.
func (o Observation) String() string {
	var parts []string
	if o.URL != "" {
		parts = append(parts, "url="+o.URL)
	}
	parts = append(parts, fmt.Sprintf("matches=%d", o.Matches))
	if len(o.Elements) > 0 {
		parts = append(parts, "elements=["+strings.Join(o.Elements, ", ")+"]")
	}
	if o.Detail != "" {
		parts = append(parts, o.Detail)
	}
	return strings.Join(parts, " ")
}

// IsTargetNotFound returns true if err is a target-not-found error.
// Uses errors.As to handle wrapped errors.
func IsTargetNotFound(err error) bool {
	return hasCode(err, ErrCodeTargetNotFound)
}

// IsAmbiguousTarget returns true if err is an ambiguous-target error.
func IsAmbiguousTarget(err error) bool {
	return hasCode(err, ErrCodeAmbiguousTarget)
}

// IsAssertionTimeout returns true if err is an assertion timeout.
func IsAssertionTimeout(err error) bool {
	return hasCode(err, ErrCodeAssertionTimeout)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewTargetNotFoundError creates a RuntimeError for a target with no match.
func NewTargetNotFoundError(target string, obs Observation, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeTargetNotFound,
		Message:  fmt.Sprintf("no element matches %s", target),
		Observed: obs,
		Err:      cause,
	}
}

// NewAmbiguousTargetError creates a RuntimeError for a multi-match target.
func NewAmbiguousTargetError(target string, obs Observation) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeAmbiguousTarget,
		Message:  fmt.Sprintf("%d elements match %s; add an index", obs.Matches, target),
		Observed: obs,
	}
}

// NewAssertionTimeoutError creates a RuntimeError for a condition that never
// held.
func NewAssertionTimeoutError(condition string, obs Observation, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeAssertionTimeout,
		Message:  fmt.Sprintf("timed out waiting for %s", condition),
		Observed: obs,
		Err:      cause,
	}
}

// NewActionError creates a RuntimeError for a driver failure.
func NewActionError(action string, obs Observation, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeActionFailed,
		Message:  fmt.Sprintf("%s failed", action),
		Observed: obs,
		Err:      cause,
	}
}
