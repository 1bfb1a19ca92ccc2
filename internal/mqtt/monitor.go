package mqtt

import (
	"sync"
	"time"

	"github.com/quietroom/stillengine/internal/events"
)

// PeripheralState tracks a registered peripheral's health.
type PeripheralState struct {
	ID           string
	Kind         string
	LastSeen     time.Time
	HeartbeatSec int
	Connected    bool
}

// Monitor tracks peripheral registration and health.
type Monitor struct {
	mu          sync.RWMutex
	states      map[string]*PeripheralState
	specs       map[string]PeripheralSpec
	registry    *PeripheralRegistry
	tolerance   float64 // multiplier for heartbeat interval (e.g., 2.0 = 2x heartbeat)
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewMonitor creates a new peripheral monitor.
// tolerance is the multiplier for heartbeat interval before considering disconnected.
func NewMonitor(specs map[string]PeripheralSpec, registry *PeripheralRegistry, tolerance float64) *Monitor {
	if tolerance <= 1.0 {
		tolerance = 2.0 // default: miss 1 heartbeat
	}
	return &Monitor{
		states:    make(map[string]*PeripheralState),
		specs:     specs,
		registry:  registry,
		tolerance: tolerance,
		stopCh:    make(chan struct{}),
	}
}

// HandleRegistration processes a registration payload.
// Returns validation result and emits appropriate events.
func (m *Monitor) HandleRegistration(payload *RegistrationPayload) *ValidationResult {
	result := ValidateRegistration(payload, m.specs)

	m.mu.Lock()
	defer m.mu.Unlock()

	p := payload.Peripheral
	now := time.Now()

	existing, seen := m.states[p.ID]
	isReconnect := seen && existing != nil && !existing.Connected

	if result.Valid {
		m.states[p.ID] = &PeripheralState{
			ID:           p.ID,
			Kind:         p.Kind,
			LastSeen:     now,
			HeartbeatSec: p.HeartbeatSec,
			Connected:    true,
		}
		m.registry.RegisterFromPayload(payload)

		name := "peripheral.registered"
		if isReconnect {
			name = "peripheral.connected"
		}
		events.Emit("info", name, "", map[string]interface{}{
			"peripheral_id": p.ID,
			"kind":          p.Kind,
			"firmware":      p.Firmware,
			"reconnect":     isReconnect,
		})
	} else {
		events.Emit("error", "peripheral.error", "registration validation failed", map[string]interface{}{
			"peripheral_id": p.ID,
			"errors":        result.Errors,
		})
	}

	return result
}

// Heartbeat records a heartbeat from a registered peripheral. Heartbeats
// from unknown peripherals are ignored; the peripheral must register first.
func (m *Monitor) Heartbeat(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[id]
	if !ok {
		return
	}
	state.LastSeen = time.Now()
	if !state.Connected {
		state.Connected = true
		events.Emit("info", "peripheral.connected", "", map[string]interface{}{
			"peripheral_id": id,
			"kind":          state.Kind,
			"reconnect":     true,
		})
	}
}

// Start begins the background health check loop.
func (m *Monitor) Start(checkInterval time.Duration) {
	m.wg.Add(1)
	go m.healthCheckLoop(checkInterval)
}

// Stop stops the background health check loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) healthCheckLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Monitor) checkHealth() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	for id, state := range m.states {
		if !state.Connected || state.HeartbeatSec <= 0 {
			continue
		}

		// Timeout is heartbeat * tolerance.
		timeout := time.Duration(float64(state.HeartbeatSec)*m.tolerance) * time.Second
		if now.Sub(state.LastSeen) > timeout {
			state.Connected = false

			events.Emit("warning", "peripheral.disconnected", "heartbeat timeout", map[string]interface{}{
				"peripheral_id": id,
				"kind":          state.Kind,
				"last_seen":     state.LastSeen.Format(time.RFC3339),
				"timeout_sec":   timeout.Seconds(),
			})
		}
	}
}

// GetPeripheralState returns the state of a peripheral (for testing/inspection).
func (m *Monitor) GetPeripheralState(id string) *PeripheralState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, ok := m.states[id]; ok {
		cpy := *state
		return &cpy
	}
	return nil
}

// ConnectedPeripherals returns a list of currently connected peripheral IDs.
func (m *Monitor) ConnectedPeripherals() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, state := range m.states {
		if state.Connected {
			ids = append(ids, id)
		}
	}
	return ids
}
