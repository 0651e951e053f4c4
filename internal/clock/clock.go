// Package clock abstracts the timers used by the carousel and the input
// debouncers so tests can drive them deterministically.
//
// Production code uses Real(). Tests use NewFake and call Advance; every
// AfterFunc callback whose deadline falls inside the advanced window runs
// synchronously on the caller's goroutine, in deadline order, with Now()
// reporting the callback's own deadline.
package clock

import "time"

// Clock is the subset of the time package the client needs.
type Clock interface {
	Now() time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer can cancel
	// the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop prevents the call from firing. It reports whether the call was
// still pending.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop}
}
