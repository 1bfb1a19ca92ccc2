// Package player contains the playback orchestrator: the state machine
// that advances a session through its script segments, arbitrating the
// segment gate, the path animator, the external audio player, and user
// input, while fencing off stale asynchronous completions.
package player

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quietroom/stillengine/internal/anim"
	"github.com/quietroom/stillengine/internal/clock"
	"github.com/quietroom/stillengine/internal/events"
	"github.com/quietroom/stillengine/internal/paths"
	"github.com/quietroom/stillengine/internal/script"
)

// State is the orchestrator's lifecycle state.
type State string

const (
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// LocationConfirmDelay is how long a locating segment lingers after the
// tap before advancing, so the user sees the confirmation overlay.
const LocationConfirmDelay = 2 * time.Second

// SessionConfig carries the settings read once at session start.
type SessionConfig struct {
	Variant string
	Theme   string
}

// DrawingStore is the external persistence collaborator for drawings
// produced by recording segments.
type DrawingStore interface {
	Save(sessionTS time.Time, sessionID string, drawingIndex int, label string, image []byte) error
}

// Deps are the collaborators injected into the orchestrator.
type Deps struct {
	Clock clock.Clock
	Audio AudioPlayer
	Cache *paths.Cache
	Store DrawingStore // may be nil
}

type msgKind int

const (
	msgStart msgKind = iota
	msgPause
	msgResume
	msgSkipNext
	msgSkipPrevious
	msgExit
	msgGateTimer
	msgAudioDone
	msgAnimPathDone
	msgAnimAllDone
	msgTap
	msgTapConfirm
	msgDrawingSaved
	msgDrawingCancelled
)

type message struct {
	kind  msgKind
	txn   int64
	ok    bool
	index int
	point paths.Point
	label string
	image []byte
}

// fenced reports whether the message carries a transaction id that must
// match the current one to be acted on.
func (m message) fenced() bool {
	switch m.kind {
	case msgGateTimer, msgAudioDone, msgAnimPathDone, msgAnimAllDone, msgTapConfirm:
		return true
	}
	return false
}

// Player owns the playback cursor and serializes every completion and
// control request onto one logical control flow: posted messages are
// queued and drained to completion by whichever goroutine finds the
// queue idle, so no two advance decisions can ever interleave.
type Player struct {
	cfg   SessionConfig
	scr   *script.Script
	clk   clock.Clock
	audio AudioPlayer
	cache *paths.Cache
	store DrawingStore

	sessionID string
	sessionTS time.Time

	qmu        sync.Mutex
	queue      []message
	processing bool

	// Loop-owned state: touched only while draining the queue.
	state        State
	cursor       int
	txn          int64
	gate         *Gate
	animator     *anim.Animator
	strokes      []paths.ResolvedPath
	fills        []paths.ResolvedPath
	endFills     []paths.ResolvedPath
	userLocation *paths.Point
	tapped       bool
	tapConfirmed bool

	snapMu   sync.RWMutex
	snap     Snapshot
	snapAnim *anim.Animator
}

// Snapshot is a read-only view of playback state for the API layer.
type Snapshot struct {
	State              State          `json:"state"`
	SessionID          string         `json:"session_id"`
	ScriptID           string         `json:"script_id"`
	Cursor             int            `json:"cursor"`
	SegmentCount       int            `json:"segment_count"`
	SegmentID          string         `json:"segment_id"`
	SegmentType        script.SegmentType `json:"segment_type"`
	SegmentDescription string         `json:"segment_description"`
	AnimationIndex     int            `json:"animation_index"`
	AnimationProgress  float64        `json:"animation_progress"`
	CompletedPathIDs   []string       `json:"completed_path_ids"`
	StrokePathIDs      []string       `json:"stroke_path_ids"`
	FillPathIDs        []string       `json:"fill_path_ids"`
	EndFillPathIDs     []string       `json:"end_fill_path_ids"`
	UserLocation       *paths.Point   `json:"user_location,omitempty"`
}

// New creates an orchestrator for one session over the given script.
// The script must already have passed validation.
func New(scr *script.Script, cfg SessionConfig, deps Deps) *Player {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	audio := deps.Audio
	if audio == nil {
		audio = NopAudio{}
	}
	p := &Player{
		cfg:       cfg,
		scr:       scr,
		clk:       clk,
		audio:     audio,
		cache:     deps.Cache,
		store:     deps.Store,
		sessionID: uuid.NewString(),
		sessionTS: clk.Now(),
		state:     StateLoading,
	}
	p.gate = NewGate(clk)
	return p
}

// SessionID returns the unique id of this playback session.
func (p *Player) SessionID() string { return p.sessionID }

// SessionTS returns the session start timestamp used as drawing key.
func (p *Player) SessionTS() time.Time { return p.sessionTS }

// Control surface. Each call posts a message; the work happens on the
// serialized control flow.

func (p *Player) Start()        { p.post(message{kind: msgStart}) }
func (p *Player) Pause()        { p.post(message{kind: msgPause}) }
func (p *Player) Resume()       { p.post(message{kind: msgResume}) }
func (p *Player) SkipNext()     { p.post(message{kind: msgSkipNext}) }
func (p *Player) SkipPrevious() { p.post(message{kind: msgSkipPrevious}) }
func (p *Player) Exit()         { p.post(message{kind: msgExit}) }

// Tap reports a user tap on the body outline (locating segments).
func (p *Player) Tap(pt paths.Point) { p.post(message{kind: msgTap, point: pt}) }

// DrawingSaved reports that the drawing canvas saved an image for the
// active recording segment.
func (p *Player) DrawingSaved(image []byte, label string) {
	p.post(message{kind: msgDrawingSaved, image: image, label: label})
}

// DrawingCancelled reports that the user backed out of the canvas; the
// recording segment stays active for another attempt.
func (p *Player) DrawingCancelled() { p.post(message{kind: msgDrawingCancelled}) }

// post enqueues a message and, if no drain is in progress, drains the
// queue to completion. Handlers may post follow-up messages; those are
// appended and processed before the drain finishes.
func (p *Player) post(m message) {
	p.qmu.Lock()
	p.queue = append(p.queue, m)
	if p.processing {
		p.qmu.Unlock()
		return
	}
	p.processing = true
	for {
		for len(p.queue) > 0 {
			next := p.queue[0]
			p.queue = p.queue[1:]
			p.qmu.Unlock()
			p.handle(next)
			p.qmu.Lock()
		}
		p.qmu.Unlock()
		// Still the exclusive processor: loop state is stable here.
		p.refreshSnapshot()
		p.qmu.Lock()
		if len(p.queue) == 0 {
			p.processing = false
			p.qmu.Unlock()
			return
		}
	}
}

func (p *Player) handle(m message) {
	// Transaction fencing: completions from an abandoned segment are
	// silently dropped.
	if m.fenced() && m.txn != p.txn {
		return
	}

	switch m.kind {
	case msgStart:
		if p.state != StateLoading {
			return
		}
		events.Emit("info", "session.started", "", map[string]interface{}{
			"session_id": p.sessionID,
			"script_id":  p.scr.ID,
			"variant":    p.cfg.Variant,
		})
		p.playSegment(0)

	case msgPause:
		if p.state != StatePlaying {
			return
		}
		p.gate.Pause()
		if p.animator != nil {
			p.animator.Pause()
		}
		p.audio.Pause()
		p.state = StatePaused
		events.Emit("info", "session.paused", "", p.segmentFields())

	case msgResume:
		if p.state != StatePaused {
			return
		}
		if p.currentSegment().Type == script.SegmentRecording {
			// Recording waits on the canvas, not on playback.
			return
		}
		myTxn := p.txn
		p.state = StatePlaying
		p.gate.Resume(func() { p.post(message{kind: msgGateTimer, txn: myTxn}) })
		if p.animator != nil {
			p.animator.Resume()
		}
		p.audio.Resume()
		events.Emit("info", "session.resumed", "", p.segmentFields())
		p.maybeAdvance()

	case msgSkipNext:
		if p.state != StatePlaying && p.state != StatePaused {
			return
		}
		p.teardownSegment()
		if p.cursor+1 >= len(p.scr.Segments) {
			p.completeSegment()
			return
		}
		events.Emit("info", "segment.skipped", "", p.segmentFields())
		p.playSegment(p.cursor + 1)

	case msgSkipPrevious:
		if p.state != StatePlaying && p.state != StatePaused {
			return
		}
		if p.cursor == 0 {
			return
		}
		p.teardownSegment()
		events.Emit("info", "segment.skipped", "", p.segmentFields())
		p.playSegment(p.cursor - 1)

	case msgExit:
		if p.state == StateStopped {
			return
		}
		p.teardownSegment()
		p.state = StateStopped
		p.cache.Reset()
		events.Emit("info", "session.exited", "", map[string]interface{}{
			"session_id": p.sessionID,
		})

	case msgGateTimer:
		// Completions arriving while paused still mark the gate: audio
		// and timer callbacks fire exactly once and are never replayed
		// on resume. maybeAdvance holds the actual advance until the
		// session is playing again.
		if p.state != StatePlaying && p.state != StatePaused {
			return
		}
		p.gate.TimerFired()
		events.Emit("info", "gate.timer_satisfied", "", p.segmentFields())
		if p.gate.Satisfied() {
			events.Emit("info", "gate.satisfied", "", p.segmentFields())
		}
		p.maybeAdvance()

	case msgAudioDone:
		if p.state != StatePlaying && p.state != StatePaused {
			return
		}
		if m.ok {
			events.Emit("info", "audio.completed", "", p.segmentFields())
		} else {
			events.Emit("error", "audio.failed", "audio playback failed", p.segmentFields())
		}
		p.gate.AudioCompleted()
		events.Emit("info", "gate.audio_satisfied", "", p.segmentFields())
		if p.gate.Satisfied() {
			events.Emit("info", "gate.satisfied", "", p.segmentFields())
		}
		p.maybeAdvance()

	case msgAnimPathDone:
		fields := p.segmentFields()
		fields["path_index"] = m.index
		events.Emit("info", "animation.path_completed", "", fields)

	case msgAnimAllDone:
		// The end fills are the regions the display paints once the
		// animation has finished drawing.
		fields := p.segmentFields()
		fields["end_fill_ids"] = pathIDs(p.endFills)
		events.Emit("info", "animation.completed", "", fields)

	case msgTap:
		if p.state != StatePlaying {
			return
		}
		seg := p.currentSegment()
		if !script.BehaviorFor(seg.Type).WaitsForTap || p.tapped {
			return
		}
		p.tapped = true
		if p.userLocation == nil {
			pt := m.point
			p.userLocation = &pt
			fields := p.segmentFields()
			fields["x"] = pt.X
			fields["y"] = pt.Y
			events.Emit("info", "location.set", "", fields)
		}
		myTxn := p.txn
		p.clk.AfterFunc(LocationConfirmDelay, func() {
			p.post(message{kind: msgTapConfirm, txn: myTxn})
		})

	case msgTapConfirm:
		p.tapConfirmed = true
		p.maybeAdvance()

	case msgDrawingSaved:
		if p.currentSegment().Type != script.SegmentRecording || p.state == StateStopped {
			return
		}
		seg := p.currentSegment()
		fields := p.segmentFields()
		fields["drawing_index"] = seg.DrawingIndex
		events.Emit("info", "drawing.saved", "", fields)
		if p.store != nil {
			if err := p.store.Save(p.sessionTS, p.sessionID, seg.DrawingIndex, m.label, m.image); err != nil {
				events.Emit("error", "system.error", "drawing store failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
		p.completeSegment()

	case msgDrawingCancelled:
		if p.currentSegment().Type != script.SegmentRecording {
			return
		}
		events.Emit("info", "drawing.cancelled", "", p.segmentFields())
	}
}

// playSegment is the Playing(i) entry: bump the transaction, resolve
// graphics, then start gate, animator, and audio per the segment's
// behavior flags.
func (p *Player) playSegment(i int) {
	p.txn++
	myTxn := p.txn
	p.cursor = i
	seg := p.currentSegment()
	g := seg.Graphic

	p.strokes = p.cache.ResolveAll(paths.ExpandMacros(g.StartStrokePathIDs))
	p.fills = p.cache.ResolveAll(paths.ExpandMacros(g.StartFillPathIDs))
	p.endFills = p.cache.ResolveAll(paths.ExpandMacros(g.EndFillRegionIDs))
	animPaths := p.cache.ResolveAll(paths.ExpandMacros(g.AnimationPathIDs))

	p.tapped = false
	p.tapConfirmed = false

	events.Emit("info", "segment.started", "", p.segmentFields())

	b := script.BehaviorFor(seg.Type)
	if b.RequiresUserAction {
		// Recording: no audio, no countdown; wait for the canvas.
		if p.animator != nil {
			p.animator.Stop()
			p.animator = nil
		}
		p.state = StatePaused
		return
	}

	p.state = StatePlaying
	p.gate.Enter(seg, func() { p.post(message{kind: msgGateTimer, txn: myTxn}) })

	if seg.AudioRef != "" {
		events.Emit("info", "audio.started", "", p.segmentFields())
		p.audio.Play(seg.AudioRef, func(ok bool) {
			p.post(message{kind: msgAudioDone, txn: myTxn, ok: ok})
		})
	}

	p.startAnimator(myTxn, animPaths, g)
}

func (p *Player) startAnimator(myTxn int64, list []paths.ResolvedPath, g script.GraphicConfig) {
	if p.animator != nil {
		p.animator.Stop()
	}
	p.animator = anim.New(p.clk, anim.Events{
		PathCompleted: func(i int) {
			p.post(message{kind: msgAnimPathDone, txn: myTxn, index: i})
		},
		AllCompleted: func() {
			p.post(message{kind: msgAnimAllDone, txn: myTxn})
		},
	})
	if len(list) > 0 {
		events.Emit("info", "animation.started", "", p.segmentFields())
	}
	p.animator.Start(list, g.AnimationSpeed, time.Duration(g.SequenceDelayMs)*time.Millisecond)
}

// maybeAdvance applies the advance rule: gate satisfied, plus the tap
// confirmation for locating segments. At most one advance per call.
func (p *Player) maybeAdvance() {
	if p.state != StatePlaying {
		return
	}
	b := script.BehaviorFor(p.currentSegment().Type)
	if b.RequiresUserAction {
		return
	}
	if !p.gate.Satisfied() {
		return
	}
	if b.WaitsForTap && !p.tapConfirmed {
		return
	}
	p.completeSegment()
}

func (p *Player) completeSegment() {
	events.Emit("info", "segment.completed", "", p.segmentFields())
	if p.cursor+1 < len(p.scr.Segments) {
		p.playSegment(p.cursor + 1)
		return
	}
	p.teardownSegment()
	p.state = StateStopped
	p.cache.Reset()
	events.Emit("info", "session.completed", "", map[string]interface{}{
		"session_id": p.sessionID,
		"script_id":  p.scr.ID,
	})
}

// teardownSegment stops audio, countdown, and animation, and bumps the
// transaction id so in-flight completions from this segment are fenced.
func (p *Player) teardownSegment() {
	p.audio.Stop()
	p.gate.Cancel()
	if p.animator != nil {
		p.animator.Stop()
		p.animator = nil
	}
	p.txn++
}

func (p *Player) currentSegment() *script.Segment {
	return &p.scr.Segments[p.cursor]
}

func (p *Player) segmentFields() map[string]interface{} {
	seg := p.currentSegment()
	return map[string]interface{}{
		"session_id": p.sessionID,
		"segment_id": seg.ID,
		"index":      p.cursor,
		"type":       string(seg.Type),
	}
}

// UserLocation returns the point set by a locating segment, if any.
func (p *Player) UserLocation() *paths.Point {
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()
	return p.snap.UserLocation
}

func (p *Player) refreshSnapshot() {
	seg := p.currentSegment()
	snap := Snapshot{
		State:              p.state,
		SessionID:          p.sessionID,
		ScriptID:           p.scr.ID,
		Cursor:             p.cursor,
		SegmentCount:       len(p.scr.Segments),
		SegmentID:          seg.ID,
		SegmentType:        seg.Type,
		SegmentDescription: seg.Description,
		StrokePathIDs:      pathIDs(p.strokes),
		FillPathIDs:        pathIDs(p.fills),
		EndFillPathIDs:     pathIDs(p.endFills),
	}
	if p.userLocation != nil {
		pt := *p.userLocation
		snap.UserLocation = &pt
	}
	animator := p.animator

	p.snapMu.Lock()
	p.snap = snap
	p.snapAnim = animator
	p.snapMu.Unlock()
}

// CurrentState returns the playback snapshot, with live animation
// progress folded in.
func (p *Player) CurrentState() Snapshot {
	p.snapMu.RLock()
	snap := p.snap
	animator := p.snapAnim
	p.snapMu.RUnlock()

	if animator != nil {
		snap.AnimationIndex = animator.CurrentIndex()
		snap.AnimationProgress = animator.Progress()
		snap.CompletedPathIDs = pathIDs(animator.Completed())
	}
	return snap
}

func pathIDs(list []paths.ResolvedPath) []string {
	out := make([]string, 0, len(list))
	for _, rp := range list {
		out = append(out, rp.ID)
	}
	return out
}
