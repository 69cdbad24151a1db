// Package clock abstracts wall time and deferred callbacks so the scheduler
// and liveness monitor can be driven deterministically in tests.
package clock

import "time"

// Timer is a cancelable deferred callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

// Clock provides the current time and deferred callback scheduling.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// System returns a Clock backed by the real time package.
func System() Clock { return systemClock{} }
