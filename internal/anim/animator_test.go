package anim

import (
	"sync"
	"testing"
	"time"

	"github.com/quietroom/stillengine/internal/clock"
	"github.com/quietroom/stillengine/internal/paths"
)

func makePath(id string, n int) paths.ResolvedPath {
	pts := make([]paths.Point, n)
	for i := range pts {
		pts[i] = paths.Point{X: float64(i), Y: float64(i)}
	}
	return paths.ResolvedPath{ID: id, Points: pts}
}

// recorder collects animator events.
type recorder struct {
	mu        sync.Mutex
	pathDone  []int
	allDone   int
}

func (r *recorder) events() Events {
	return Events{
		PathCompleted: func(i int) {
			r.mu.Lock()
			r.pathDone = append(r.pathDone, i)
			r.mu.Unlock()
		},
		AllCompleted: func() {
			r.mu.Lock()
			r.allDone++
			r.mu.Unlock()
		},
	}
}

func TestPathDurationClamping(t *testing.T) {
	cases := []struct {
		points, speed int
		want          time.Duration
	}{
		{10, 100, 1 * time.Second},
		{20, 100, 2 * time.Second},
		{30, 100, 3 * time.Second},
		{1, 1000, 500 * time.Millisecond}, // clamped to min
		{100000, 10, 60 * time.Second},    // clamped to max
	}
	for _, c := range cases {
		if got := PathDuration(c.points, c.speed); got != c.want {
			t.Errorf("PathDuration(%d, %d) = %v, want %v", c.points, c.speed, got, c.want)
		}
	}
}

func TestSequentialThreePathAnimation(t *testing.T) {
	clk := clock.NewFake()
	rec := &recorder{}
	a := New(clk, rec.events())

	list := []paths.ResolvedPath{
		makePath("p0", 10),
		makePath("p1", 20),
		makePath("p2", 30),
	}
	a.Start(list, 100, 0)

	if a.CurrentIndex() != 0 {
		t.Fatalf("expected index 0, got %d", a.CurrentIndex())
	}

	// First path: 1s duration.
	clk.Advance(500 * time.Millisecond)
	if p := a.Progress(); p < 0.49 || p > 0.51 {
		t.Errorf("expected ~0.5 progress, got %f", p)
	}
	clk.Advance(500 * time.Millisecond)

	if a.CurrentIndex() != 1 {
		t.Fatalf("expected index 1 after first path, got %d", a.CurrentIndex())
	}
	if len(a.Completed()) != 1 || a.Completed()[0].ID != "p0" {
		t.Errorf("expected p0 completed, got %v", a.Completed())
	}

	// Second path: 2s.
	clk.Advance(2 * time.Second)
	if a.CurrentIndex() != 2 {
		t.Fatalf("expected index 2, got %d", a.CurrentIndex())
	}

	// Third path: 3s.
	clk.Advance(3 * time.Second)
	if !a.Finished() {
		t.Fatalf("expected animation finished")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.pathDone) != 3 || rec.pathDone[0] != 0 || rec.pathDone[1] != 1 || rec.pathDone[2] != 2 {
		t.Errorf("expected path completions [0 1 2], got %v", rec.pathDone)
	}
	if rec.allDone != 1 {
		t.Errorf("expected all-complete exactly once, got %d", rec.allDone)
	}
	if got := a.Completed(); len(got) != 3 {
		t.Errorf("expected 3 completed paths, got %d", len(got))
	}
}

func TestEmptyListCompletesImmediately(t *testing.T) {
	clk := clock.NewFake()
	rec := &recorder{}
	a := New(clk, rec.events())

	a.Start(nil, 100, 0)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.allDone != 1 {
		t.Errorf("expected immediate all-complete, got %d", rec.allDone)
	}
	if a.Progress() != 1.0 {
		t.Errorf("expected progress 1.0, got %f", a.Progress())
	}
}

func TestSequenceDelayBeforeFirstPathOnly(t *testing.T) {
	clk := clock.NewFake()
	rec := &recorder{}
	a := New(clk, rec.events())

	list := []paths.ResolvedPath{makePath("p0", 10), makePath("p1", 10)}
	a.Start(list, 100, 500*time.Millisecond)

	// Still in the delay; no path animating yet.
	if a.CurrentIndex() != -1 {
		t.Errorf("expected index -1 during delay, got %d", a.CurrentIndex())
	}

	clk.Advance(500 * time.Millisecond)
	if a.CurrentIndex() != 0 {
		t.Fatalf("expected index 0 after delay, got %d", a.CurrentIndex())
	}

	// No delay between paths: exactly 1s to finish path 0.
	clk.Advance(1 * time.Second)
	if a.CurrentIndex() != 1 {
		t.Errorf("expected index 1 with no inter-path delay, got %d", a.CurrentIndex())
	}
}

func TestPauseResumeKeepsProgress(t *testing.T) {
	clk := clock.NewFake()
	rec := &recorder{}
	a := New(clk, rec.events())

	a.Start([]paths.ResolvedPath{makePath("p0", 20)}, 100, 0) // 2s

	clk.Advance(1 * time.Second)
	a.Pause()

	// Time passing while paused must not move progress.
	clk.Advance(10 * time.Second)
	if p := a.Progress(); p < 0.49 || p > 0.51 {
		t.Fatalf("expected progress held at ~0.5, got %f", p)
	}

	a.Resume()
	clk.Advance(1 * time.Second)
	if !a.Finished() {
		t.Errorf("expected finish 1s after resume")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.allDone != 1 {
		t.Errorf("expected all-complete once, got %d", rec.allDone)
	}
}

func TestStopDiscardsInFlightPath(t *testing.T) {
	clk := clock.NewFake()
	rec := &recorder{}
	a := New(clk, rec.events())

	a.Start([]paths.ResolvedPath{makePath("p0", 10), makePath("p1", 10)}, 100, 0)
	clk.Advance(1 * time.Second) // p0 done
	a.Stop()

	// Timer from the abandoned path must not fire.
	clk.Advance(10 * time.Second)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.pathDone) != 1 {
		t.Errorf("expected only p0 completion, got %v", rec.pathDone)
	}
	if rec.allDone != 0 {
		t.Errorf("expected no all-complete after stop, got %d", rec.allDone)
	}
	// Already-completed paths are retained for the caller.
	if got := a.Completed(); len(got) != 1 || got[0].ID != "p0" {
		t.Errorf("expected completed [p0], got %v", got)
	}
}
