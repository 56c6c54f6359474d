// Package report renders suite results.
//
// Three writers share one harness.Report:
//
//   - WriteText: one line per scenario, with the first failing step and the
//     captured page for each failed scenario, then a summary line
//   - WriteJSON: the Document envelope with summary and full results
//   - WriteJUnit: JUnit XML with one testsuite per scenario file and one
//     testcase per scenario, for CI systems
package report
