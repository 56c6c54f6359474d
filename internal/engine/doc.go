// Package engine executes scenario steps against a live page.
//
// It holds the two halves of step execution:
//
// Step Executor (Executor.Execute):
// Resolves a step's target descriptor to exactly one live element, performs
// the action (navigate, type, click, select) and then waits for the step's
// expected post-condition. wait-for steps perform no action and only wait.
// A request-made post-condition only sees requests sent after the step
// began, unless it sets since: session.
//
// Assertion Engine (Asserter.Evaluate, Asserter.Assert):
// Evaluates a post-condition against the page once (Evaluate) or repeatedly
// until it holds or the timeout elapses (Assert). Assertions never mutate the
// page.
//
// WAITING:
//
// Every wait is cooperative polling against a deadline taken from an
// injectable Clock. The first check happens immediately; later checks back
// off exponentially from Timing.Poll up to Timing.MaxPoll. A timeout of zero
// checks exactly once. There are no fixed sleeps.
//
// ERRORS:
//
// Failures are reported as *RuntimeError values carrying the last observed
// page state. They match the sentinels ErrTargetNotFound, ErrAmbiguousTarget
// and ErrAssertionTimeout with errors.Is.
//
// An Executor holds no per-scenario state and may be shared by concurrently
// running scenarios, each with its own Page.
package engine
