// Package timeutil provides a testable abstraction over time operations.
//
// The estimator only needs wall-clock reads, so Clock is deliberately
// narrow. Any clockwork.Clock satisfies it, which is how tests inject a
// fake clock.
package timeutil

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock provides the time reads used for fit timestamps and durations.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// NewFakeClock returns a clockwork fake clock pinned at t, for tests and
// deterministic replays.
func NewFakeClock(t time.Time) *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(t)
}

// OrReal returns c, or RealClock when c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return RealClock{}
	}
	return c
}
