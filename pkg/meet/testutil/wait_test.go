package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"

	"github.com/thesyncim/meet/internal/clock"
)

func manualWaiter() (*Waiter, *clock.Manual) {
	clk := clock.NewManual(time.Time{})
	return &Waiter{Clock: clk, Interval: DefaultPollInterval}, clk
}

// scriptedDriver answers HasXPath from a fixed sequence, repeating the last value.
type scriptedDriver struct {
	answers []bool
	err     error
	calls   int
}

func (d *scriptedDriver) Navigate(context.Context, string) error { return nil }
func (d *scriptedDriver) ClickByID(context.Context, string) error { return nil }
func (d *scriptedDriver) Close() error                           { return nil }

func (d *scriptedDriver) Eval(context.Context, string, ...any) (gson.JSON, error) {
	return gson.New(nil), nil
}

func (d *scriptedDriver) HasXPath(context.Context, string) (bool, error) {
	d.calls++
	if d.err != nil {
		return false, d.err
	}
	i := d.calls - 1
	if i >= len(d.answers) {
		i = len(d.answers) - 1
	}
	return d.answers[i], nil
}

func TestPoll_ImmediateSuccessDoesNotSleep(t *testing.T) {
	w, clk := manualWaiter()

	ok, err := w.Poll(context.Background(), 5*time.Second, func(context.Context) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, clk.Slept())
}

func TestPoll_TimeoutIsBounded(t *testing.T) {
	w, clk := manualWaiter()
	calls := 0

	ok, err := w.Poll(context.Background(), time.Second, func(context.Context) (bool, error) {
		calls++
		return false, nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Second, clk.Slept(), "must not sleep past the deadline")
	// One check at t=0 plus one per 100ms interval up to and including t=1s.
	assert.Equal(t, 11, calls)
}

func TestPoll_LastSleepIsClipped(t *testing.T) {
	w, clk := manualWaiter()
	w.Interval = 300 * time.Millisecond

	ok, err := w.Poll(context.Background(), time.Second, func(context.Context) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Second, clk.Slept())
}

func TestPoll_ConditionErrorAborts(t *testing.T) {
	w, clk := manualWaiter()
	boom := errors.New("boom")

	_, err := w.Poll(context.Background(), time.Second, func(context.Context) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, clk.Slept())
}

func TestPoll_ContextCancelled(t *testing.T) {
	w, _ := manualWaiter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Poll(ctx, time.Second, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForElement_AppearsWithinBound(t *testing.T) {
	w, clk := manualWaiter()
	d := &scriptedDriver{answers: []bool{false, false, false, true}}

	err := w.ForElement(context.Background(), d, VideoMutedXPath, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, d.calls)
	assert.Equal(t, 300*time.Millisecond, clk.Slept())
}

func TestForElement_TimeoutError(t *testing.T) {
	w, _ := manualWaiter()
	d := &scriptedDriver{answers: []bool{false}}

	err := w.ForElement(context.Background(), d, VideoMutedXPath, 5*time.Second)
	require.Error(t, err)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, VideoMutedXPath, te.Locator)
	assert.Equal(t, 5*time.Second, te.Timeout)
	assert.True(t, te.WantPresent)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "not present after 5s")
}

func TestForElementGone(t *testing.T) {
	w, _ := manualWaiter()

	gone := &scriptedDriver{answers: []bool{true, true, false}}
	require.NoError(t, w.ForElementGone(context.Background(), gone, RemoteVideoMutedXPath, 10*time.Second))

	stuck := &scriptedDriver{answers: []bool{true}}
	err := w.ForElementGone(context.Background(), stuck, RemoteVideoMutedXPath, 10*time.Second)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.False(t, te.WantPresent)
	assert.Contains(t, err.Error(), "still present after 10s")
}

func TestForElement_DriverErrorIsWrapped(t *testing.T) {
	w, _ := manualWaiter()
	d := &scriptedDriver{err: ErrSessionClosed}

	err := w.ForElement(context.Background(), d, VideoMutedXPath, time.Second)
	assert.ErrorIs(t, err, ErrSessionClosed)
	var te *TimeoutError
	assert.False(t, errors.As(err, &te), "driver failure is not a timeout")
}

func TestPause_AdvancesClock(t *testing.T) {
	w, clk := manualWaiter()
	require.NoError(t, w.Pause(context.Background(), 1500*time.Millisecond))
	assert.Equal(t, 1500*time.Millisecond, clk.Slept())
}

func TestWaitForElementByXPath_RealClock(t *testing.T) {
	d := &scriptedDriver{answers: []bool{false, true}}
	require.NoError(t, WaitForElementByXPath(context.Background(), d, VideoMutedXPath, time.Second))

	gone := &scriptedDriver{answers: []bool{false}}
	require.NoError(t, WaitForElementNotPresentByXPath(context.Background(), gone, VideoMutedXPath, time.Second))
}
