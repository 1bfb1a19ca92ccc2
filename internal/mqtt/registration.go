package mqtt

import (
	"encoding/json"
	"fmt"
)

// RegistrationPayload represents a v1 peripheral registration message.
// Peripherals (the audio renderer, the drawing canvas) announce
// themselves on the shared registration topic when they come online.
type RegistrationPayload struct {
	Version    int            `json:"version"`
	Peripheral PeripheralInfo `json:"peripheral"`
}

// PeripheralInfo contains peripheral metadata.
type PeripheralInfo struct {
	ID           string           `json:"id"`
	Kind         string           `json:"kind"`
	Firmware     string           `json:"firmware"`
	UptimeMS     int64            `json:"uptime_ms"`
	HeartbeatSec int              `json:"heartbeat_sec"`
	Capabilities []string         `json:"capabilities"`
	Topics       PeripheralTopics `json:"topics"`
}

// PeripheralTopics defines MQTT topics for peripheral communication.
// Publish is where the peripheral emits events; Subscribe is where it
// listens for commands.
type PeripheralTopics struct {
	Publish   string `json:"publish"`
	Subscribe string `json:"subscribe"`
}

// ParseRegistration parses a registration payload from JSON bytes.
func ParseRegistration(data []byte) (*RegistrationPayload, error) {
	var payload RegistrationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid registration JSON: %w", err)
	}

	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported registration version: %d", payload.Version)
	}

	if payload.Peripheral.ID == "" {
		return nil, fmt.Errorf("peripheral.id is required")
	}

	return &payload, nil
}

// PeripheralSpec defines an expected peripheral from engine.yaml.
type PeripheralSpec struct {
	Kind         string
	Required     bool
	Capabilities []string
}

// ValidationResult contains validation outcome.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidateRegistration validates a registration payload against the
// peripheral specs. Specs are keyed by peripheral ID.
func ValidateRegistration(payload *RegistrationPayload, specs map[string]PeripheralSpec) *ValidationResult {
	result := &ValidationResult{Valid: true}

	p := payload.Peripheral
	spec, known := specs[p.ID]
	if !known {
		result.Warnings = append(result.Warnings, fmt.Sprintf("unrecognized peripheral: %s", p.ID))
		return result
	}

	if p.Kind != spec.Kind {
		result.Errors = append(result.Errors, fmt.Sprintf("peripheral %s: kind mismatch (expected %s, got %s)", p.ID, spec.Kind, p.Kind))
		result.Valid = false
	}

	for _, reqCap := range spec.Capabilities {
		if !containsString(p.Capabilities, reqCap) {
			result.Errors = append(result.Errors, fmt.Sprintf("peripheral %s: missing capability %s", p.ID, reqCap))
			result.Valid = false
		}
	}

	if p.Topics.Subscribe == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("peripheral %s: no command topic", p.ID))
		result.Valid = false
	}

	return result
}

func containsString(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}

// MissingRequired returns the IDs of required peripherals that are not
// present in the registry.
func MissingRequired(specs map[string]PeripheralSpec, registry *PeripheralRegistry) []string {
	var missing []string
	for id, spec := range specs {
		if spec.Required && !registry.Exists(id) {
			missing = append(missing, id)
		}
	}
	return missing
}
