package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// session
	"session.started":   {},
	"session.completed": {},
	"session.exited":    {},
	"session.paused":    {},
	"session.resumed":   {},

	// segment
	"segment.started":   {},
	"segment.completed": {},
	"segment.skipped":   {},

	// gate
	"gate.timer_satisfied": {},
	"gate.audio_satisfied": {},
	"gate.satisfied":       {},

	// animation
	"animation.started":        {},
	"animation.path_completed": {},
	"animation.completed":      {},

	// audio
	"audio.started":   {},
	"audio.completed": {},
	"audio.failed":    {},

	// user input
	"location.set":      {},
	"drawing.saved":     {},
	"drawing.cancelled": {},
	"drawing.stored":    {},

	// peripheral
	"peripheral.registered":   {},
	"peripheral.connected":    {},
	"peripheral.disconnected": {},
	"peripheral.error":        {},

	// library
	"library.changed": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
