package script

import (
	"os"
	"path/filepath"
	"testing"
)

const validScript = `{
  "version": 1,
  "id": "body_scan",
  "name": "Body Scan",
  "segments": [
    {
      "id": "intro",
      "description": "Settle in",
      "type": "cushion",
      "duration_seconds": 10,
      "audio_ref": "audio/intro.mp3",
      "graphic": {
        "animation_path_ids": ["body_full"],
        "animation_speed": 100,
        "sequence_delay_ms": 250
      }
    },
    {
      "id": "find_it",
      "description": "Locate the sensation",
      "type": "locating",
      "duration_seconds": 20,
      "audio_ref": "audio/locate.mp3",
      "graphic": {
        "start_stroke_path_ids": ["body_full"],
        "animation_speed": 100
      }
    },
    {
      "id": "draw_it",
      "description": "Draw what you feel",
      "type": "recording",
      "duration_seconds": 0,
      "audio_ref": "",
      "drawing_index": 0,
      "graphic": {}
    }
  ]
}`

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestLoadValidScript(t *testing.T) {
	s, err := Load(writeScript(t, validScript))
	if err != nil {
		t.Fatalf("failed to load script: %v", err)
	}

	if s.ID != "body_scan" {
		t.Errorf("expected id body_scan, got %s", s.ID)
	}
	if len(s.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(s.Segments))
	}
	if s.Segments[1].Type != SegmentLocating {
		t.Errorf("expected locating segment, got %s", s.Segments[1].Type)
	}
	if s.Segments[0].Graphic.SequenceDelayMs != 250 {
		t.Errorf("expected 250ms sequence delay, got %d", s.Segments[0].Graphic.SequenceDelayMs)
	}
}

func TestParseRejectsEmptySegmentList(t *testing.T) {
	_, err := Parse([]byte(`{"version":1,"id":"x","segments":[]}`))
	if err == nil {
		t.Errorf("expected error for zero segments")
	}
}

func TestParseRejectsUnknownVersion(t *testing.T) {
	_, err := Parse([]byte(`{"version":2,"id":"x","segments":[{"id":"a","type":"cushion"}]}`))
	if err == nil {
		t.Errorf("expected error for unsupported version")
	}
}

func TestParseRejectsUnknownSegmentType(t *testing.T) {
	_, err := Parse([]byte(`{"version":1,"id":"x","segments":[{"id":"a","type":"levitating"}]}`))
	if err == nil {
		t.Errorf("expected error for unknown segment type")
	}
}

func TestParseRejectsZeroAnimationSpeed(t *testing.T) {
	_, err := Parse([]byte(`{"version":1,"id":"x","segments":[
		{"id":"a","type":"scanning","graphic":{"animation_path_ids":["spine"],"animation_speed":0}}]}`))
	if err == nil {
		t.Errorf("expected error for zero animation speed with animation paths")
	}
}

func TestBehaviorTable(t *testing.T) {
	cases := []struct {
		t    SegmentType
		want Behavior
	}{
		{SegmentRecording, Behavior{RequiresUserAction: true}},
		{SegmentLocating, Behavior{StartsAudioAndTimer: true, WaitsForTap: true}},
		{SegmentOpening, Behavior{StartsAudioAndTimer: true, UsesLocationOverlay: true}},
		{SegmentInvestigating, Behavior{StartsAudioAndTimer: true, UsesLocationOverlay: true}},
		{SegmentAsking, Behavior{StartsAudioAndTimer: true, UsesLocationOverlay: true}},
		{SegmentBreathing, Behavior{StartsAudioAndTimer: true}},
	}
	for _, c := range cases {
		if got := BehaviorFor(c.t); got != c.want {
			t.Errorf("BehaviorFor(%s) = %+v, want %+v", c.t, got, c.want)
		}
	}
}
