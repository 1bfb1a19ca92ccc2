package script

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads a session script from a JSON file and validates it.
// A malformed or empty script is fatal to starting playback.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a session script from JSON bytes.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script JSON: %w", err)
	}

	if s.Version != 1 {
		return nil, fmt.Errorf("unsupported script version: %d", s.Version)
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the structural invariants of a loaded script.
func Validate(s *Script) error {
	if len(s.Segments) == 0 {
		return fmt.Errorf("script has no segments")
	}
	for i, seg := range s.Segments {
		if seg.ID == "" {
			return fmt.Errorf("segment %d: missing id", i)
		}
		if !Known(seg.Type) {
			return fmt.Errorf("segment %s: unknown type %q", seg.ID, seg.Type)
		}
		if seg.DurationSeconds < 0 {
			return fmt.Errorf("segment %s: negative duration", seg.ID)
		}
		if len(seg.Graphic.AnimationPathIDs) > 0 && seg.Graphic.AnimationSpeed <= 0 {
			return fmt.Errorf("segment %s: animation speed must be positive", seg.ID)
		}
		if seg.Graphic.SequenceDelayMs < 0 {
			return fmt.Errorf("segment %s: negative sequence delay", seg.ID)
		}
	}
	return nil
}
