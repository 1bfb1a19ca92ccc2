package mqtt

import (
	"testing"
)

func TestParseRegistration(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{
			name: "valid v1 registration",
			json: `{
				"version": 1,
				"peripheral": {
					"id": "audio-main",
					"kind": "audio",
					"firmware": "1.2.0",
					"uptime_ms": 123456,
					"heartbeat_sec": 5,
					"capabilities": ["play", "seek", "volume"],
					"topics": {
						"publish": "stillroom/audio-main/events",
						"subscribe": "stillroom/audio-main/commands"
					}
				}
			}`,
			wantErr: false,
		},
		{
			name: "unsupported version",
			json: `{
				"version": 2,
				"peripheral": {"id": "audio-main"}
			}`,
			wantErr: true,
		},
		{
			name: "missing peripheral id",
			json: `{
				"version": 1,
				"peripheral": {"kind": "audio"}
			}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			json:    `{not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := ParseRegistration([]byte(tt.json))
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if payload.Peripheral.ID != "audio-main" {
				t.Errorf("expected peripheral id audio-main, got %s", payload.Peripheral.ID)
			}
			if payload.Peripheral.Topics.Subscribe != "stillroom/audio-main/commands" {
				t.Errorf("unexpected command topic: %s", payload.Peripheral.Topics.Subscribe)
			}
		})
	}
}

func audioRegistration() *RegistrationPayload {
	return &RegistrationPayload{
		Version: 1,
		Peripheral: PeripheralInfo{
			ID:           "audio-main",
			Kind:         "audio",
			Firmware:     "1.2.0",
			HeartbeatSec: 5,
			Capabilities: []string{"play", "seek", "volume"},
			Topics: PeripheralTopics{
				Publish:   "stillroom/audio-main/events",
				Subscribe: "stillroom/audio-main/commands",
			},
		},
	}
}

func audioSpecs() map[string]PeripheralSpec {
	return map[string]PeripheralSpec{
		"audio-main": {Kind: "audio", Required: true, Capabilities: []string{"play"}},
	}
}

func TestValidateRegistration(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		result := ValidateRegistration(audioRegistration(), audioSpecs())
		if !result.Valid {
			t.Errorf("expected valid, got errors: %v", result.Errors)
		}
	})

	t.Run("kind mismatch", func(t *testing.T) {
		payload := audioRegistration()
		payload.Peripheral.Kind = "canvas"
		result := ValidateRegistration(payload, audioSpecs())
		if result.Valid {
			t.Errorf("expected invalid for kind mismatch")
		}
	})

	t.Run("missing capability", func(t *testing.T) {
		payload := audioRegistration()
		payload.Peripheral.Capabilities = []string{"seek"}
		result := ValidateRegistration(payload, audioSpecs())
		if result.Valid {
			t.Errorf("expected invalid for missing capability")
		}
	})

	t.Run("missing command topic", func(t *testing.T) {
		payload := audioRegistration()
		payload.Peripheral.Topics.Subscribe = ""
		result := ValidateRegistration(payload, audioSpecs())
		if result.Valid {
			t.Errorf("expected invalid without a command topic")
		}
	})

	t.Run("unrecognized peripheral warns", func(t *testing.T) {
		payload := audioRegistration()
		payload.Peripheral.ID = "mystery-box"
		result := ValidateRegistration(payload, audioSpecs())
		if !result.Valid {
			t.Errorf("unrecognized peripheral should not be an error")
		}
		if len(result.Warnings) == 0 {
			t.Errorf("expected a warning for unrecognized peripheral")
		}
	})
}

func TestMissingRequired(t *testing.T) {
	registry := NewPeripheralRegistry()
	specs := map[string]PeripheralSpec{
		"audio-main":  {Kind: "audio", Required: true},
		"canvas-main": {Kind: "canvas", Required: false},
	}

	missing := MissingRequired(specs, registry)
	if len(missing) != 1 || missing[0] != "audio-main" {
		t.Errorf("expected [audio-main] missing, got %v", missing)
	}

	registry.RegisterFromPayload(audioRegistration())
	if missing := MissingRequired(specs, registry); len(missing) != 0 {
		t.Errorf("expected nothing missing, got %v", missing)
	}
}
