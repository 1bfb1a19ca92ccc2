package mqtt

import (
	"fmt"
	"sync"
)

// RegisteredPeripheral holds runtime information about a registered peripheral.
type RegisteredPeripheral struct {
	ID           string
	Kind         string
	Firmware     string
	CommandTopic string // topics.subscribe from registration
	EventTopic   string // topics.publish from registration
	Capabilities []string
}

// PeripheralRegistry maintains a mapping of peripheral IDs to their MQTT
// topics and metadata.
type PeripheralRegistry struct {
	mu          sync.RWMutex
	peripherals map[string]*RegisteredPeripheral
}

// NewPeripheralRegistry creates a new empty peripheral registry.
func NewPeripheralRegistry() *PeripheralRegistry {
	return &PeripheralRegistry{
		peripherals: make(map[string]*RegisteredPeripheral),
	}
}

// Register adds or updates a peripheral in the registry.
func (r *PeripheralRegistry) Register(p *RegisteredPeripheral) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peripherals[p.ID] = p
}

// Unregister removes a peripheral from the registry.
func (r *PeripheralRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peripherals, id)
}

// Get returns a peripheral by ID, or nil if not found.
func (r *PeripheralRegistry) Get(id string) *RegisteredPeripheral {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.peripherals[id]; ok {
		// Return a copy to prevent mutation
		cpy := *p
		cpy.Capabilities = append([]string{}, p.Capabilities...)
		return &cpy
	}
	return nil
}

// Exists returns true if the peripheral is registered.
func (r *PeripheralRegistry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peripherals[id]
	return ok
}

// CommandTopic returns the command topic for a peripheral, or empty
// string if not found.
func (r *PeripheralRegistry) CommandTopic(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.peripherals[id]; ok {
		return p.CommandTopic
	}
	return ""
}

// HasCapability returns true if the peripheral advertises the given capability.
func (r *PeripheralRegistry) HasCapability(id, capability string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.peripherals[id]; ok {
		for _, c := range p.Capabilities {
			if c == capability {
				return true
			}
		}
	}
	return false
}

// ValidateCommand validates that a peripheral exists and supports the
// given capability. Returns an error describing the validation failure,
// or nil if valid.
func (r *PeripheralRegistry) ValidateCommand(id, capability string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peripherals[id]
	if !ok {
		return fmt.Errorf("peripheral not registered: %s", id)
	}

	if p.CommandTopic == "" {
		return fmt.Errorf("peripheral %s has no command topic", id)
	}

	for _, c := range p.Capabilities {
		if c == capability {
			return nil
		}
	}

	return fmt.Errorf("peripheral %s does not support capability: %s", id, capability)
}

// FirstOfKind returns the first registered peripheral of the given kind,
// or nil if none is registered.
func (r *PeripheralRegistry) FirstOfKind(kind string) *RegisteredPeripheral {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.peripherals {
		if p.Kind == kind {
			cpy := *p
			cpy.Capabilities = append([]string{}, p.Capabilities...)
			return &cpy
		}
	}
	return nil
}

// All returns a copy of all registered peripherals.
func (r *PeripheralRegistry) All() []*RegisteredPeripheral {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*RegisteredPeripheral, 0, len(r.peripherals))
	for _, p := range r.peripherals {
		cpy := *p
		cpy.Capabilities = append([]string{}, p.Capabilities...)
		result = append(result, &cpy)
	}
	return result
}

// RegisterFromPayload registers the peripheral described by a validated
// registration payload.
func (r *PeripheralRegistry) RegisterFromPayload(payload *RegistrationPayload) {
	p := payload.Peripheral
	r.Register(&RegisteredPeripheral{
		ID:           p.ID,
		Kind:         p.Kind,
		Firmware:     p.Firmware,
		CommandTopic: p.Topics.Subscribe,
		EventTopic:   p.Topics.Publish,
		Capabilities: append([]string{}, p.Capabilities...),
	})
}

// Clear removes all peripherals from the registry.
func (r *PeripheralRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peripherals = make(map[string]*RegisteredPeripheral)
}
