package report

import (
	"fmt"
	"io"
	"time"

	"github.com/roach88/uirun/internal/harness"
)

// TextOptions configures WriteText.
type TextOptions struct {
	// Verbose lists every executed step, not only the failing one.
	Verbose bool
}

// WriteText writes a human-readable report.
func WriteText(w io.Writer, rep *harness.Report, opts TextOptions) error {
	tw := &textWriter{w: w}

	for _, res := range rep.Results {
		writeResult(tw, res, opts)
	}

	s := rep.Summary()
	tw.printf("\n")
	tw.printf("Summary: %d passed, %d failed, %d timed out, %d total (%s)\n",
		s.Passed, s.Failed, s.TimedOut, s.Total, formatDuration(s.Duration))
	if s.Total > 0 && s.Passed == s.Total {
		tw.printf("✓ All scenarios passed\n")
	}
	return tw.err
}

func writeResult(tw *textWriter, res *harness.RunResult, opts TextOptions) {
	if res.Passed() {
		tw.printf("✓ %s (%s)\n", res.Scenario, formatDuration(res.Duration()))
	} else {
		tw.printf("✗ %s (%s) [%s]\n", res.Scenario, formatDuration(res.Duration()), res.Status)
	}

	if opts.Verbose {
		for _, out := range res.Steps {
			tw.printf("    %d. %-7s %s (%s, %d attempts)\n",
				out.Index, out.Status, out.Label, formatDuration(out.Duration), out.Attempts)
		}
	}

	if res.Passed() {
		return
	}

	if out, ok := res.FailedOutcome(); ok {
		tw.printf("  failed at step %d: %s\n", out.Index, out.Label)
		tw.printf("  error: %s\n", out.Error)
		if out.Observed != nil {
			tw.printf("  observed: %s\n", out.Observed)
		}
	} else {
		tw.printf("  error: %s\n", res.Error)
	}

	if d := res.Diagnostic; d != nil {
		if d.Title != "" {
			tw.printf("  page: %s (%s)\n", d.URL, d.Title)
		} else {
			tw.printf("  page: %s\n", d.URL)
		}
	}
}

// formatDuration rounds to milliseconds so reports stay readable.
func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

// textWriter keeps the first write error.
type textWriter struct {
	w   io.Writer
	err error
}

func (t *textWriter) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

