package mqtt

import (
	"encoding/json"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/quietroom/stillengine/internal/events"
)

// Publisher is the transport needed by Audio. *Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// audioCommand is the wire format for audio renderer commands.
type audioCommand struct {
	Action   string  `json:"action"`
	Ref      string  `json:"ref,omitempty"`
	Position float64 `json:"position,omitempty"` // seconds
	Level    float64 `json:"level,omitempty"`
}

// audioEvent is the wire format for audio renderer events.
type audioEvent struct {
	Event    string  `json:"event"` // completed | failed | position
	Ref      string  `json:"ref"`
	Position float64 `json:"position,omitempty"` // seconds
	Error    string  `json:"error,omitempty"`
}

// Audio drives a remote narration renderer over MQTT. It implements the
// player's AudioPlayer contract: Play returns immediately and onDone is
// invoked exactly once per Play, ok=false on failure. A Play that cannot
// even be published fails its callback right away so the caller is never
// left waiting on a renderer that never heard the command.
type Audio struct {
	pub   Publisher
	topic string

	mu         sync.Mutex
	pending    func(ok bool)
	pendingRef string
	position   time.Duration
}

// NewAudio creates an audio driver publishing commands to the given topic.
func NewAudio(pub Publisher, commandTopic string) *Audio {
	return &Audio{pub: pub, topic: commandTopic}
}

// Play starts playback of ref on the renderer.
// A previous unresolved Play is abandoned: its callback is dropped, not
// invoked, since the renderer replaces the current track.
func (a *Audio) Play(ref string, onDone func(ok bool)) {
	a.mu.Lock()
	a.pending = onDone
	a.pendingRef = ref
	a.mu.Unlock()

	if err := a.publish(audioCommand{Action: "play", Ref: ref}); err != nil {
		events.Emit("error", "audio.failed", "play command not delivered", map[string]interface{}{
			"ref":   ref,
			"error": err.Error(),
		})
		a.resolve(ref, false)
	}
}

func (a *Audio) Pause()  { _ = a.publish(audioCommand{Action: "pause"}) }
func (a *Audio) Resume() { _ = a.publish(audioCommand{Action: "resume"}) }

// Stop halts playback and abandons any pending completion callback.
func (a *Audio) Stop() {
	a.mu.Lock()
	a.pending = nil
	a.pendingRef = ""
	a.mu.Unlock()

	_ = a.publish(audioCommand{Action: "stop"})
}

func (a *Audio) Seek(pos time.Duration) {
	_ = a.publish(audioCommand{Action: "seek", Position: pos.Seconds()})
}

func (a *Audio) SetVolume(v float64) {
	_ = a.publish(audioCommand{Action: "volume", Level: v})
}

// Handler returns a paho handler for the renderer's event topic.
func (a *Audio) Handler() paho.MessageHandler {
	return func(client paho.Client, msg paho.Message) {
		a.HandleEvent(msg.Payload())
	}
}

// HandleEvent processes a renderer event payload. Events for a ref other
// than the pending one are ignored.
func (a *Audio) HandleEvent(payload []byte) {
	var ev audioEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		events.Emit("warning", "peripheral.error", "malformed audio event", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	switch ev.Event {
	case "position":
		a.mu.Lock()
		a.position = time.Duration(ev.Position * float64(time.Second))
		a.mu.Unlock()
	case "completed":
		a.resolve(ev.Ref, true)
	case "failed":
		events.Emit("error", "audio.failed", ev.Error, map[string]interface{}{
			"ref": ev.Ref,
		})
		a.resolve(ev.Ref, false)
	}
}

// Position returns the last playback position reported by the renderer.
func (a *Audio) Position() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

func (a *Audio) publish(cmd audioCommand) error {
	b, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return a.pub.Publish(a.topic, b)
}

func (a *Audio) resolve(ref string, ok bool) {
	a.mu.Lock()
	cb := a.pending
	if cb == nil || (ref != "" && ref != a.pendingRef) {
		a.mu.Unlock()
		return
	}
	a.pending = nil
	a.pendingRef = ""
	a.mu.Unlock()

	cb(ok)
}
