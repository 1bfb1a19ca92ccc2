package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually-advanced Clock for tests. Timers fire
// synchronously, in deadline order, during Advance.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewFake returns a Fake clock starting at an arbitrary fixed time.
func NewFake() *Fake {
	return &Fake{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: fn}
	if d <= 0 {
		t.deadline = c.now
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires every timer whose deadline
// is reached, in deadline order. Callbacks may schedule new timers;
// those fire too if they fall within the advanced window.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.nextDue(target)
		if t == nil {
			break
		}
		c.mu.Lock()
		if t.deadline.After(c.now) {
			c.now = t.deadline
		}
		t.fired = true
		c.mu.Unlock()
		t.fn()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

func (c *Fake) nextDue(target time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live

	sort.SliceStable(c.timers, func(i, j int) bool {
		return c.timers[i].deadline.Before(c.timers[j].deadline)
	})

	for _, t := range c.timers {
		if !t.deadline.After(target) {
			return t
		}
	}
	return nil
}
