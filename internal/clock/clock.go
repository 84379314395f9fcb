// Package clock abstracts the time operations used by the batcher and the
// retry loop so tests can drive them deterministically.
//
// Production code uses Real(). Tests use Fake(), whose time stands still
// until Advance is called; WaitForTimers blocks until a goroutine has
// registered its timer, which removes the race between arming a timer and
// advancing the clock.
package clock

import "time"

// Clock is the subset of the time package the forwarder depends on.
type Clock interface {
	Now() time.Time
	// After behaves like time.After. If d <= 0 the channel fires at once.
	After(d time.Duration) <-chan time.Time
	// NewTimer behaves like time.NewTimer.
	NewTimer(d time.Duration) *Timer
}

// Timer is a one-shot timer with a receive channel.
type Timer struct {
	C <-chan time.Time

	stopFunc  func() bool
	resetFunc func(time.Duration) bool
}

// Stop prevents the timer from firing. It reports whether the call stopped
// an active timer. Stop does not drain C.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Reset re-arms the timer to fire after d and reports whether it was active.
func (t *Timer) Reset(d time.Duration) bool { return t.resetFunc(d) }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTimer(d time.Duration) *Timer {
	t := time.NewTimer(d)
	return &Timer{C: t.C, stopFunc: t.Stop, resetFunc: t.Reset}
}
