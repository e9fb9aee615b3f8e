// Package clock abstracts time for the bounded waits used by the browser helpers.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock reports the current time and blocks for a duration.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is a Clock backed by the system monotonic clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// Sleep waits on a timer, returning ctx.Err() if the context ends first.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Manual is a Clock whose time only moves when Sleep or Advance is called.
// Sleep returns immediately after advancing, so polling loops run without
// wall-clock delay in tests.
type Manual struct {
	mu      sync.Mutex
	current time.Time
	slept   time.Duration
}

// NewManual returns a Manual clock starting at t. A zero t starts at a fixed
// date so tests stay reproducible.
func NewManual(t time.Time) *Manual {
	if t.IsZero() {
		t = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Manual{current: t}
}

// Now returns the manual clock's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Sleep advances the clock by d.
func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Advance(d)
	return nil
}

// Advance moves the clock forward. Panics on a negative duration.
func (m *Manual) Advance(d time.Duration) {
	if d < 0 {
		panic("clock.Manual.Advance: duration must be non-negative")
	}
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.slept += d
	m.mu.Unlock()
}

// Slept returns the total duration passed to Sleep and Advance.
func (m *Manual) Slept() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slept
}
