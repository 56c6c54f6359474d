package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/uirun/internal/page"
	"github.com/roach88/uirun/internal/scenario"
	"github.com/roach88/uirun/internal/testutil"
)

func newAsserter(clock *testutil.ManualClock) *Asserter {
	return NewAsserter(clock, testTiming(), nil)
}

func avatarPage() *testutil.FakePage {
	p := testutil.NewFakePage().Add(
		testutil.El{Handle: "avatar", Tag: "svg", Selectors: []string{".MuiAvatar-root"}, Visible: true},
		testutil.El{Handle: "spinner", Tag: "div", Selectors: []string{".spinner"}, Visible: false},
	)
	p.SetURL("https://app.test/projects")
	return p
}

func TestEvaluate(t *testing.T) {
	p := avatarPage()
	p.Record("GET", "https://app.test/api/projects/123/export.csv")
	a := newAsserter(testutil.NewManualClock(time.Time{}))
	ctx := context.Background()

	tests := []struct {
		name string
		cond scenario.Condition
		want bool
	}{
		{"exists", scenario.Condition{Kind: scenario.ElementExists, Target: &page.Target{Selector: ".MuiAvatar-root"}}, true},
		{"exists missing", scenario.Condition{Kind: scenario.ElementExists, Target: &page.Target{Selector: "#create"}}, false},
		{"exists index out of range", scenario.Condition{Kind: scenario.ElementExists, Target: &page.Target{Selector: ".MuiAvatar-root", Index: page.IntPtr(1)}}, false},
		{"visible", scenario.Condition{Kind: scenario.ElementVisible, Target: &page.Target{Selector: ".MuiAvatar-root"}}, true},
		{"hidden is not visible", scenario.Condition{Kind: scenario.ElementVisible, Target: &page.Target{Selector: ".spinner"}}, false},
		{"absent", scenario.Condition{Kind: scenario.ElementAbsent, Target: &page.Target{Selector: "#create"}}, true},
		{"hidden is not absent", scenario.Condition{Kind: scenario.ElementAbsent, Target: &page.Target{Selector: ".spinner"}}, false},
		{"absent past index", scenario.Condition{Kind: scenario.ElementAbsent, Target: &page.Target{Selector: ".MuiAvatar-root", Index: page.IntPtr(1)}}, true},
		{"url contains", scenario.Condition{Kind: scenario.URLContains, Value: "/projects"}, true},
		{"url does not contain", scenario.Condition{Kind: scenario.URLContains, Value: "/experiments"}, false},
		{"request made", scenario.Condition{Kind: scenario.RequestMade, Value: `/api/projects/\d+/export\.csv$`}, true},
		{"request not made", scenario.Condition{Kind: scenario.RequestMade, Value: `/api/stimuli`}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := a.Evaluate(ctx, tt.cond, p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_RequestsSinceMark(t *testing.T) {
	p := avatarPage()
	p.Record("GET", "https://app.test/api/projects/123/export.csv")
	p.Record("GET", "https://app.test/api/stimuli")
	a := newAsserter(testutil.NewManualClock(time.Time{}))
	ctx := context.Background()
	export := scenario.Condition{Kind: scenario.RequestMade, Value: `export\.csv$`}

	ok, _, err := a.evaluate(ctx, export, p, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, obs, err := a.evaluate(ctx, export, p, 1)
	require.NoError(t, err)
	assert.False(t, ok, "the export request predates the mark")
	assert.Equal(t, "requests=1 skipped=1 last=https://app.test/api/stimuli", obs.Detail)

	ok, _, err = a.evaluate(ctx, scenario.Condition{Kind: scenario.RequestMade, Value: `/api/stimuli`}, p, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_Observation(t *testing.T) {
	p := avatarPage()
	a := newAsserter(testutil.NewManualClock(time.Time{}))

	_, obs, err := a.Evaluate(context.Background(), scenario.Condition{
		Kind:   scenario.ElementAbsent,
		Target: &page.Target{Selector: ".MuiAvatar-root"},
	}, p)
	require.NoError(t, err)
	assert.Equal(t, 1, obs.Matches)
	assert.Equal(t, []string{"svg"}, obs.Elements)
}

func TestEvaluate_DriverError(t *testing.T) {
	p := avatarPage()
	p.QueryErr = errors.New("detached")
	a := newAsserter(testutil.NewManualClock(time.Time{}))

	_, _, err := a.Evaluate(context.Background(), scenario.Condition{
		Kind:   scenario.ElementExists,
		Target: &page.Target{Selector: ".MuiAvatar-root"},
	}, p)
	assert.ErrorContains(t, err, "detached")
}

func TestAssert_ZeroTimeoutFailsWithoutPolling(t *testing.T) {
	p := avatarPage()
	clock := testutil.NewManualClock(time.Time{})
	a := newAsserter(clock)
	zero := time.Duration(0)

	err := a.Assert(context.Background(), scenario.Condition{
		Kind:    scenario.ElementExists,
		Target:  &page.Target{Selector: "#create"},
		Timeout: &zero,
	}, p)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssertionTimeout)
	assert.Equal(t, 1, p.Queries())
	assert.Empty(t, clock.Waits())
	assert.Equal(t, time.Duration(0), clock.Elapsed(testutil.Epoch))
}

func TestAssert_WaitsForLateElement(t *testing.T) {
	p := avatarPage().Add(testutil.El{Handle: "toast", Tag: "div", Text: "Saved", Selectors: []string{".toast"}, Visible: true, AfterQueries: 3})
	clock := testutil.NewManualClock(time.Time{})
	a := newAsserter(clock)

	err := a.Assert(context.Background(), scenario.Condition{
		Kind:   scenario.ElementVisible,
		Target: &page.Target{Selector: ".toast", Text: "saved"},
	}, p)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Queries())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.Waits())
}

func TestAssert_TimeoutCarriesLastObservation(t *testing.T) {
	p := avatarPage()
	a := newAsserter(testutil.NewManualClock(time.Time{}))

	err := a.Assert(context.Background(), scenario.Condition{
		Kind:   scenario.ElementAbsent,
		Target: &page.Target{Selector: ".MuiAvatar-root"},
	}, p)
	require.Error(t, err)
	assert.True(t, IsAssertionTimeout(err))

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 1, re.Observed.Matches)
	assert.Equal(t, "https://app.test/projects", re.Observed.URL)
	assert.Contains(t, err.Error(), "timed out waiting for element-absent .MuiAvatar-root")
}

func TestAssert_ConditionOverridesDefaults(t *testing.T) {
	p := avatarPage()
	clock := testutil.NewManualClock(time.Time{})
	a := newAsserter(clock)
	timeout := 250 * time.Millisecond
	pollEvery := 50 * time.Millisecond

	err := a.Assert(context.Background(), scenario.Condition{
		Kind:    scenario.URLContains,
		Value:   "/never",
		Timeout: &timeout,
		Poll:    &pollEvery,
	}, p)
	require.ErrorIs(t, err, ErrAssertionTimeout)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}, clock.Waits())
}

func TestAssert_InvalidPatternStops(t *testing.T) {
	p := avatarPage()
	clock := testutil.NewManualClock(time.Time{})
	a := newAsserter(clock)

	err := a.Assert(context.Background(), scenario.Condition{Kind: scenario.RequestMade, Value: "("}, p)
	require.Error(t, err)
	assert.False(t, IsAssertionTimeout(err))
	assert.Empty(t, clock.Waits())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, `url-contains "/projects"`, Describe(scenario.Condition{Kind: scenario.URLContains, Value: "/projects"}))
	assert.Equal(t, "element-visible .card [0]", Describe(scenario.Condition{Kind: scenario.ElementVisible, Target: &page.Target{Selector: ".card", Index: page.IntPtr(0)}}))
}
