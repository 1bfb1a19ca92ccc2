package player

import (
	"time"

	"github.com/quietroom/stillengine/internal/clock"
	"github.com/quietroom/stillengine/internal/script"
)

// Gate tracks the two passive exit conditions of a segment: the
// minimum-duration countdown and the audio-completion event. A segment
// is gate-satisfied only when both are true; conditions that do not
// apply are satisfied at entry.
//
// The Gate is confined to the player's run loop: the countdown timer
// only posts a message back to the loop, which then calls TimerFired.
type Gate struct {
	clk clock.Clock

	timerSatisfied bool
	audioSatisfied bool

	timer     clock.Timer
	remaining time.Duration
	startedAt time.Time
	counting  bool
}

// NewGate creates a gate driven by clk.
func NewGate(clk clock.Clock) *Gate {
	return &Gate{clk: clk}
}

// Enter initializes the gate for a segment. onTimerFired is scheduled
// after the segment's minimum duration; recording segments never start
// a countdown and exit only via explicit user action. An empty audio
// reference satisfies the audio condition immediately.
func (g *Gate) Enter(seg *script.Segment, onTimerFired func()) {
	g.Cancel()
	g.timerSatisfied = false
	g.audioSatisfied = seg.AudioRef == ""

	if seg.Type == script.SegmentRecording {
		g.timerSatisfied = true
		return
	}

	g.remaining = time.Duration(seg.DurationSeconds) * time.Second
	g.startedAt = g.clk.Now()
	g.counting = true
	g.timer = g.clk.AfterFunc(g.remaining, onTimerFired)
}

// TimerFired marks the duration condition satisfied.
func (g *Gate) TimerFired() {
	g.timerSatisfied = true
	g.counting = false
	g.timer = nil
}

// AudioCompleted marks the audio condition satisfied. Called on
// play-to-end and also on playback start failure, so a broken asset
// can never wedge the session.
func (g *Gate) AudioCompleted() {
	g.audioSatisfied = true
}

// Satisfied reports whether both passive conditions are met.
func (g *Gate) Satisfied() bool {
	return g.timerSatisfied && g.audioSatisfied
}

// Pause stops the countdown, retaining the remaining duration.
func (g *Gate) Pause() {
	if !g.counting || g.timer == nil {
		return
	}
	g.timer.Stop()
	g.timer = nil
	elapsed := g.clk.Now().Sub(g.startedAt)
	g.remaining -= elapsed
	if g.remaining < 0 {
		g.remaining = 0
	}
}

// Resume restarts the countdown with the remaining duration.
func (g *Gate) Resume(onTimerFired func()) {
	if !g.counting || g.timer != nil || g.timerSatisfied {
		return
	}
	g.startedAt = g.clk.Now()
	g.timer = g.clk.AfterFunc(g.remaining, onTimerFired)
}

// Cancel stops the countdown without satisfying anything.
func (g *Gate) Cancel() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.counting = false
}
