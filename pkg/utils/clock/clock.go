// Package clock abstracts the timers used by the connection and search
// loops so tests can drive time explicitly.
package clock

import "time"

// Clock provides the current time and one-shot timers
type Clock interface {
	Now() time.Time
	// AfterFunc calls f once d has elapsed. If d <= 0 f is invoked
	// without delay.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call
type Timer interface {
	// Stop cancels the call. It returns false if the call already ran
	// or was stopped before.
	Stop() bool
}

// Real returns a Clock backed by the time package
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
