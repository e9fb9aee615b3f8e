package testutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thesyncim/meet/internal/clock"
)

// DefaultPollInterval is how often waits re-check their condition.
const DefaultPollInterval = 100 * time.Millisecond

// ErrTimeout is wrapped by every error produced when a wait runs out of time.
var ErrTimeout = errors.New("timed out")

// TimeoutError reports an element that did not reach the awaited state.
type TimeoutError struct {
	Locator     string
	Timeout     time.Duration
	WantPresent bool
}

func (e *TimeoutError) Error() string {
	if e.WantPresent {
		return fmt.Sprintf("element %s not present after %v", e.Locator, e.Timeout)
	}
	return fmt.Sprintf("element %s still present after %v", e.Locator, e.Timeout)
}

// Unwrap lets callers match any wait timeout with errors.Is(err, ErrTimeout).
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// Waiter runs bounded polls. A wait checks its condition immediately, then
// every Interval until it holds or the timeout elapses. There is no backoff
// and no retry after a timeout.
type Waiter struct {
	Clock    clock.Clock
	Interval time.Duration
}

// NewWaiter returns a Waiter on the real clock with DefaultPollInterval.
func NewWaiter() *Waiter {
	return &Waiter{Clock: clock.Real{}, Interval: DefaultPollInterval}
}

// Poll evaluates cond until it returns true, an error, or timeout elapses.
// It returns false with a nil error on timeout.
func (w *Waiter) Poll(ctx context.Context, timeout time.Duration, cond func(context.Context) (bool, error)) (bool, error) {
	clk := w.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	deadline := clk.Now().Add(timeout)
	for {
		ok, err := cond(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		now := clk.Now()
		if !now.Before(deadline) {
			return false, nil
		}
		wait := interval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		if err := clk.Sleep(ctx, wait); err != nil {
			return false, err
		}
	}
}

// ForElement blocks until xpath matches in d's DOM.
func (w *Waiter) ForElement(ctx context.Context, d Driver, xpath string, timeout time.Duration) error {
	return w.waitPresence(ctx, d, xpath, timeout, true)
}

// ForElementGone blocks until xpath no longer matches in d's DOM.
func (w *Waiter) ForElementGone(ctx context.Context, d Driver, xpath string, timeout time.Duration) error {
	return w.waitPresence(ctx, d, xpath, timeout, false)
}

func (w *Waiter) waitPresence(ctx context.Context, d Driver, xpath string, timeout time.Duration, want bool) error {
	ok, err := w.Poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		has, err := d.HasXPath(ctx, xpath)
		if err != nil {
			return false, err
		}
		return has == want, nil
	})
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", xpath, err)
	}
	if !ok {
		return &TimeoutError{Locator: xpath, Timeout: timeout, WantPresent: want}
	}
	return nil
}

// Pause waits for d unconditionally.
func (w *Waiter) Pause(ctx context.Context, d time.Duration) error {
	clk := w.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return clk.Sleep(ctx, d)
}

var defaultWaiter = NewWaiter()

// WaitForElementByXPath waits on the real clock for xpath to appear.
func WaitForElementByXPath(ctx context.Context, d Driver, xpath string, timeout time.Duration) error {
	return defaultWaiter.ForElement(ctx, d, xpath, timeout)
}

// WaitForElementNotPresentByXPath waits on the real clock for xpath to disappear.
func WaitForElementNotPresentByXPath(ctx context.Context, d Driver, xpath string, timeout time.Duration) error {
	return defaultWaiter.ForElementGone(ctx, d, xpath, timeout)
}
