package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/uirun/internal/testutil"
)

func testTiming() Timing {
	return Timing{Timeout: time.Second, Poll: 100 * time.Millisecond, MaxPoll: 400 * time.Millisecond}
}

func TestPoll_ImmediateSuccess(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	res, err := poll(context.Background(), clock, testTiming(), func(context.Context) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, clock.Waits())
}

func TestPoll_ExponentialBackoffUntilTimeout(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	res, err := poll(context.Background(), clock, testTiming(), func(context.Context) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, errWaitTimeout)
	assert.Equal(t, 5, res.Attempts)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		300 * time.Millisecond, // clipped to the deadline
	}, clock.Waits())
	assert.Equal(t, time.Second, clock.Elapsed(testutil.Epoch))
}

func TestPoll_ZeroTimeoutChecksOnce(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	timing := testTiming()
	timing.Timeout = 0

	res, err := poll(context.Background(), clock, timing, func(context.Context) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, errWaitTimeout)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, clock.Waits())
}

func TestPoll_SucceedsLater(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	calls := 0
	res, err := poll(context.Background(), clock, testTiming(), func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 300*time.Millisecond, clock.Elapsed(testutil.Epoch))
}

func TestPoll_StopEndsImmediately(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	boom := errors.New("boom")
	res, err := poll(context.Background(), clock, testTiming(), func(context.Context) (bool, error) {
		return false, stop(boom)
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, res.Attempts)
}

func TestPoll_TransientErrorsKeepPolling(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	flaky := errors.New("execution context was destroyed")
	calls := 0
	res, err := poll(context.Background(), clock, testTiming(), func(context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, flaky
		}
		return false, nil
	})
	require.ErrorIs(t, err, errWaitTimeout)
	assert.Equal(t, 5, res.Attempts)
	assert.NoError(t, res.LastErr, "a clean attempt clears the transient error")

	res, err = poll(context.Background(), clock, testTiming(), func(context.Context) (bool, error) {
		return false, flaky
	})
	require.ErrorIs(t, err, errWaitTimeout)
	assert.Same(t, flaky, res.LastErr)
}

func TestPoll_ContextCancelled(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := poll(ctx, clock, testTiming(), func(ctx context.Context) (bool, error) {
		return false, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTiming(t *testing.T) {
	def := DefaultTiming()
	assert.Equal(t, 10*time.Second, def.Timeout)
	assert.Equal(t, 100*time.Millisecond, def.Poll)
	assert.NoError(t, def.Validate())

	five := 5 * time.Second
	fifty := 50 * time.Millisecond
	got := def.Override(&five, &fifty)
	assert.Equal(t, Timing{Timeout: five, Poll: fifty, MaxPoll: time.Second}, got)
	assert.Equal(t, def, def.Override(nil, nil))

	assert.Error(t, Timing{Timeout: -1, Poll: 1, MaxPoll: 1}.Validate())
	assert.Error(t, Timing{Timeout: 1, Poll: 0, MaxPoll: 1}.Validate())
	assert.Error(t, Timing{Timeout: 1, Poll: 2, MaxPoll: 1}.Validate())

	// a poll override above the cap is honored rather than shrunk
	slow := Timing{Timeout: time.Minute, Poll: 2 * time.Second, MaxPoll: time.Second}
	assert.Equal(t, 2*time.Second, slow.next(2*time.Second))
}
