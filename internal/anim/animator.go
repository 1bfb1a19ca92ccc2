// Package anim drives progressive-reveal path animation. An Animator
// plays an ordered list of resolved paths in sequence, exposing the
// index of the path being revealed and a 0..1 progress fraction for it.
package anim

import (
	"sync"
	"time"

	"github.com/quietroom/stillengine/internal/clock"
	"github.com/quietroom/stillengine/internal/paths"
)

// Per-path duration bounds, in seconds.
const (
	minPathSeconds = 0.5
	maxPathSeconds = 60.0
)

type phase int

const (
	phaseIdle phase = iota
	phaseDelaying
	phaseAnimating
	phasePaused
	phaseFinished
)

// Events delivered to the Animator's owner. Callbacks run on the timer
// goroutine; the owner is expected to re-serialize them.
type Events struct {
	// PathCompleted fires when the path at index reaches full reveal.
	PathCompleted func(index int)
	// AllCompleted fires exactly once when every path has completed.
	AllCompleted func()
}

// Animator sequences reveal animation over a list of paths.
// Timer expiries arrive on timer goroutines; internal state is guarded
// by a mutex and stale expiries are fenced with a generation counter.
type Animator struct {
	clk    clock.Clock
	events Events

	mu         sync.Mutex
	generation uint64
	phase      phase
	pausedFrom phase

	list  []paths.ResolvedPath
	speed int
	delay time.Duration

	index     int
	duration  time.Duration
	startedAt time.Time
	elapsed   time.Duration
	completed []paths.ResolvedPath
	timer     clock.Timer
}

// New creates an Animator driven by clk.
func New(clk clock.Clock, events Events) *Animator {
	return &Animator{clk: clk, events: events, phase: phaseIdle}
}

// PathDuration returns the reveal duration for a path of n points at
// the given speed (points per time-unit), clamped to [0.5s, 60s].
func PathDuration(n, speed int) time.Duration {
	if speed <= 0 {
		return time.Duration(maxPathSeconds * float64(time.Second))
	}
	secs := float64(n) / (float64(speed) / 10.0)
	if secs < minPathSeconds {
		secs = minPathSeconds
	}
	if secs > maxPathSeconds {
		secs = maxPathSeconds
	}
	return time.Duration(secs * float64(time.Second))
}

// Start begins animating the list in order. An empty list completes
// immediately without starting a clock. delay is honored once, before
// the first path only.
func (a *Animator) Start(list []paths.ResolvedPath, speed int, delay time.Duration) {
	a.mu.Lock()
	a.stopTimerLocked()
	a.generation++
	a.list = list
	a.speed = speed
	a.delay = delay
	a.index = -1
	a.elapsed = 0
	a.completed = nil

	if len(list) == 0 {
		a.phase = phaseFinished
		done := a.events.AllCompleted
		a.mu.Unlock()
		if done != nil {
			done()
		}
		return
	}

	if delay > 0 {
		a.phase = phaseDelaying
		a.startedAt = a.clk.Now()
		a.duration = delay
		gen := a.generation
		a.timer = a.clk.AfterFunc(delay, func() { a.fire(gen) })
		a.mu.Unlock()
		return
	}

	a.beginNextLocked()
}

// beginNextLocked advances to the next path, releasing the lock before
// invoking completion callbacks. Caller must hold a.mu.
func (a *Animator) beginNextLocked() {
	a.index++
	if a.index >= len(a.list) {
		a.phase = phaseFinished
		a.stopTimerLocked()
		done := a.events.AllCompleted
		a.mu.Unlock()
		if done != nil {
			done()
		}
		return
	}

	a.phase = phaseAnimating
	a.elapsed = 0
	a.startedAt = a.clk.Now()
	a.duration = PathDuration(len(a.list[a.index].Points), a.speed)
	gen := a.generation
	a.timer = a.clk.AfterFunc(a.duration, func() { a.fire(gen) })
	a.mu.Unlock()
}

// fire handles a timer expiry for either the initial delay or the
// current path.
func (a *Animator) fire(gen uint64) {
	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		return
	}

	if a.phase == phaseDelaying {
		a.beginNextLocked()
		return
	}
	if a.phase != phaseAnimating {
		a.mu.Unlock()
		return
	}

	idx := a.index
	a.completed = append(a.completed, a.list[idx])
	pathDone := a.events.PathCompleted
	if pathDone != nil {
		// Unlock around the callback, then re-take for the next path.
		a.mu.Unlock()
		pathDone(idx)
		a.mu.Lock()
		if gen != a.generation {
			a.mu.Unlock()
			return
		}
	}
	a.beginNextLocked()
}

// Pause freezes the animation clock, retaining elapsed progress.
func (a *Animator) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != phaseAnimating && a.phase != phaseDelaying {
		return
	}
	a.stopTimerLocked()
	a.generation++
	a.elapsed += a.clk.Now().Sub(a.startedAt)
	a.pausedFrom = a.phase
	a.phase = phasePaused
}

// Resume continues from where Pause left off rather than restarting.
func (a *Animator) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != phasePaused {
		return
	}
	a.phase = a.pausedFrom
	a.startedAt = a.clk.Now()
	remaining := a.duration - a.elapsed
	if remaining < 0 {
		remaining = 0
	}
	gen := a.generation
	a.timer = a.clk.AfterFunc(remaining, func() { a.fire(gen) })
}

// Stop cancels the animation, discarding the in-flight path. The
// completed list is left intact for the caller to read.
func (a *Animator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopTimerLocked()
	a.generation++
	a.phase = phaseIdle
}

func (a *Animator) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// CurrentIndex returns the index of the path being animated, or -1
// before the first path starts.
func (a *Animator) CurrentIndex() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index
}

// Progress returns the 0..1 reveal fraction of the current path.
func (a *Animator) Progress() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.phase {
	case phaseFinished:
		return 1.0
	case phaseAnimating:
		elapsed := a.elapsed + a.clk.Now().Sub(a.startedAt)
		return fraction(elapsed, a.duration)
	case phasePaused:
		if a.pausedFrom != phaseAnimating {
			return 0
		}
		return fraction(a.elapsed, a.duration)
	default:
		return 0
	}
}

// Completed returns the paths that have fully revealed so far, in
// completion order. They render at full progress for the rest of the
// segment.
func (a *Animator) Completed() []paths.ResolvedPath {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]paths.ResolvedPath, len(a.completed))
	copy(out, a.completed)
	return out
}

// Finished reports whether every path has completed.
func (a *Animator) Finished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase == phaseFinished
}

func fraction(elapsed, total time.Duration) float64 {
	if total <= 0 {
		return 1.0
	}
	f := float64(elapsed) / float64(total)
	if f > 1.0 {
		f = 1.0
	}
	if f < 0 {
		f = 0
	}
	return f
}
