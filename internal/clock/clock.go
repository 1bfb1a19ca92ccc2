// Package clock abstracts timer scheduling so playback components can
// be driven by a fake time source in tests.
package clock

import "time"

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired.
	Stop() bool
}

// Clock schedules one-shot callbacks and reports the current time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

type realTimer struct {
	t *time.Timer
}

func (t *realTimer) Stop() bool { return t.t.Stop() }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return &realTimer{t: time.AfterFunc(d, fn)}
}

// New returns a Clock backed by the system clock.
func New() Clock { return realClock{} }
