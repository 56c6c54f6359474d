// Package harness runs scenarios and collects their results.
//
// # Scenario Runner
//
// Runner.Run executes one scenario:
//
//  1. Resolve every fixture the scenario references and bind placeholders
//  2. Open a fresh page session through the page.Factory
//  3. Execute the steps in declared order through the engine.Executor
//  4. Stop at the first failing step and capture a page snapshot
//  5. Close the session
//
// A fixture or session error fails the scenario before any step executes.
// Step errors and panics are recorded as a StepFailure on the RunResult;
// they never escape Run, so sibling scenarios keep running.
//
// # Status
//
// Every RunResult moves through
//
//	pending -> running -> passed | failed | timed_out
//
// and terminal states are final.
//
// # Suite Runner
//
// Runner.RunAll runs many scenarios through a bounded worker pool, each in
// its own session, optionally gated by a start-rate limiter. The report keeps
// the scenarios' declaration order regardless of completion order.
//
// # Deterministic Testing
//
// Tests inject a manual clock (WithClock) and sequential run IDs (WithIDs)
// so that results can be compared against golden files with AssertGolden.
package harness
