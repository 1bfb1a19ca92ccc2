package mqtt

import (
	"encoding/json"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/quietroom/stillengine/internal/events"
	"github.com/quietroom/stillengine/internal/paths"
)

// SessionControls is the slice of the session player driven by drawing
// canvas input.
type SessionControls interface {
	Tap(pt paths.Point)
	DrawingSaved(image []byte, label string)
	DrawingCancelled()
}

// canvasEvent is the wire format for drawing canvas events. Image data
// arrives base64-encoded and decodes straight into the byte slice.
type canvasEvent struct {
	Event string  `json:"event"` // tap | drawing_saved | drawing_cancelled
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
	Image []byte  `json:"image,omitempty"`
}

// CanvasBridge routes drawing canvas events into the active session.
// Events arriving while no session is bound are dropped.
type CanvasBridge struct {
	mu       sync.RWMutex
	controls SessionControls
}

// NewCanvasBridge creates a bridge with no session bound.
func NewCanvasBridge() *CanvasBridge {
	return &CanvasBridge{}
}

// Bind attaches the active session. Pass nil to detach on session end.
func (b *CanvasBridge) Bind(controls SessionControls) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.controls = controls
}

// Handler returns a paho handler for the canvas event topic.
func (b *CanvasBridge) Handler() paho.MessageHandler {
	return func(client paho.Client, msg paho.Message) {
		b.HandleEvent(msg.Payload())
	}
}

// HandleEvent processes a canvas event payload.
func (b *CanvasBridge) HandleEvent(payload []byte) {
	var ev canvasEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		events.Emit("warning", "peripheral.error", "malformed canvas event", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	b.mu.RLock()
	controls := b.controls
	b.mu.RUnlock()
	if controls == nil {
		return
	}

	switch ev.Event {
	case "tap":
		controls.Tap(paths.Point{X: ev.X, Y: ev.Y})
	case "drawing_saved":
		controls.DrawingSaved(ev.Image, ev.Label)
	case "drawing_cancelled":
		controls.DrawingCancelled()
	}
}

// Subscriber is the transport needed by the Listener. *Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, handler paho.MessageHandler) error
}

// Listener wires peripheral registration to event-topic subscriptions.
// It subscribes each registered peripheral's event topic exactly once,
// routing audio renderer events to the audio driver and canvas events to
// the canvas bridge.
type Listener struct {
	mu         sync.Mutex
	client     Subscriber
	monitor    *Monitor
	audio      *Audio
	canvas     *CanvasBridge
	subscribed map[string]bool // topic -> subscribed
}

// NewListener creates a listener. audio and canvas may be nil if the
// engine runs without that peripheral.
func NewListener(client Subscriber, monitor *Monitor, audio *Audio, canvas *CanvasBridge) *Listener {
	return &Listener{
		client:     client,
		monitor:    monitor,
		audio:      audio,
		canvas:     canvas,
		subscribed: make(map[string]bool),
	}
}

// RegistrationHandler returns a paho handler for the shared registration
// topic. Valid registrations are recorded and their event topics subscribed.
func (l *Listener) RegistrationHandler() paho.MessageHandler {
	return func(client paho.Client, msg paho.Message) {
		payload, err := ParseRegistration(msg.Payload())
		if err != nil {
			events.Emit("error", "peripheral.error", "invalid registration", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}

		result := l.monitor.HandleRegistration(payload)
		if !result.Valid {
			return
		}

		if err := l.subscribePeripheral(payload.Peripheral); err != nil {
			events.Emit("error", "peripheral.error", "failed to subscribe to peripheral events", map[string]interface{}{
				"peripheral_id": payload.Peripheral.ID,
				"topic":         payload.Peripheral.Topics.Publish,
				"error":         err.Error(),
			})
		}
	}
}

// HeartbeatHandler returns a paho handler for the shared heartbeat topic.
// The payload is the peripheral ID.
func (l *Listener) HeartbeatHandler() paho.MessageHandler {
	return func(client paho.Client, msg paho.Message) {
		l.monitor.Heartbeat(string(msg.Payload()))
	}
}

// subscribePeripheral subscribes to a peripheral's event topic if not
// already subscribed. Idempotent across re-registrations.
func (l *Listener) subscribePeripheral(p PeripheralInfo) error {
	topic := p.Topics.Publish
	if topic == "" {
		return nil
	}

	var handler paho.MessageHandler
	switch p.Kind {
	case "audio":
		if l.audio == nil {
			return nil
		}
		handler = l.audio.Handler()
	case "canvas":
		if l.canvas == nil {
			return nil
		}
		handler = l.canvas.Handler()
	default:
		return nil
	}

	l.mu.Lock()
	if l.subscribed[topic] {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.client.Subscribe(topic, handler); err != nil {
		return err
	}

	l.mu.Lock()
	l.subscribed[topic] = true
	l.mu.Unlock()

	return nil
}

// IsSubscribed returns true if the topic is already subscribed.
func (l *Listener) IsSubscribed(topic string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subscribed[topic]
}

// ClearSubscriptions clears the subscription tracking so a later
// registration subscribes again.
func (l *Listener) ClearSubscriptions() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribed = make(map[string]bool)
}

// HandleConnectionLost reacts to a dropped broker connection: the
// broker forgets our subscriptions on a clean-session reconnect, so
// the tracking is reset and peripherals re-subscribe as they announce
// themselves again.
func (l *Listener) HandleConnectionLost(err error) {
	l.ClearSubscriptions()
	fields := map[string]interface{}{}
	if err != nil {
		fields["error"] = err.Error()
	}
	events.Emit("warning", "peripheral.error", "broker connection lost", fields)
}
