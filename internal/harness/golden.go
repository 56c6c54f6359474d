package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// ResultSnapshot is the stable part of a RunResult used for golden
// comparison. Absolute times are dropped; durations are kept because tests
// run on a manual clock.
type ResultSnapshot struct {
	Scenario   string         `json:"scenario"`
	Status     Status         `json:"status"`
	FailedStep int            `json:"failed_step"`
	Error      string         `json:"error,omitempty"`
	Steps      []StepSnapshot `json:"steps"`
	Diagnostic string         `json:"diagnostic_url,omitempty"`
	Duration   string         `json:"duration"`
}

// StepSnapshot is the stable part of an engine.StepOutcome.
type StepSnapshot struct {
	Index    int    `json:"index"`
	Label    string `json:"label"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

// Snapshot extracts the comparable fields of a result.
func Snapshot(r *RunResult) ResultSnapshot {
	s := ResultSnapshot{
		Scenario:   r.Scenario,
		Status:     r.Status,
		FailedStep: r.FailedStep,
		Error:      r.Error,
		Steps:      make([]StepSnapshot, len(r.Steps)),
		Duration:   r.Duration().String(),
	}
	if r.Diagnostic != nil {
		s.Diagnostic = r.Diagnostic.URL
	}
	for i, out := range r.Steps {
		s.Steps[i] = StepSnapshot{
			Index:    out.Index,
			Label:    out.Label,
			Status:   string(out.Status),
			Attempts: out.Attempts,
			Duration: out.Duration.String(),
			Error:    out.Error,
		}
	}
	return s
}

// AssertGolden compares the result against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, r *RunResult) {
	t.Helper()

	data, err := json.MarshalIndent(Snapshot(r), "", "  ")
	if err != nil {
		t.Fatalf("marshal result snapshot: %v", err)
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
