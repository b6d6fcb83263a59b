package shared

import "time"

// Timer is a scheduled one-shot action that can be cancelled.
type Timer interface {
	// Stop prevents the action from firing. Returns false if it already fired or was stopped.
	Stop() bool
}

// Clock abstracts time so session expiry can be driven by simulated time in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
