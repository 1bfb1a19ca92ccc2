// Package script defines the immutable session script model: the
// ordered list of timed segments that make up one guided meditation.
package script

// SegmentType identifies the behavior rules for a segment.
// The set is closed; behavior is always switched on, never subclassed.
type SegmentType string

const (
	SegmentFocusing      SegmentType = "focusing"
	SegmentRecording     SegmentType = "recording"
	SegmentReviewing     SegmentType = "reviewing"
	SegmentLocating      SegmentType = "locating"
	SegmentScanning      SegmentType = "scanning"
	SegmentOpening       SegmentType = "opening"
	SegmentFading        SegmentType = "fading"
	SegmentContracting   SegmentType = "contracting"
	SegmentRelaxing      SegmentType = "relaxing"
	SegmentAppearing     SegmentType = "appearing"
	SegmentCushion       SegmentType = "cushion"
	SegmentBreathing     SegmentType = "breathing"
	SegmentReading       SegmentType = "reading"
	SegmentInvestigating SegmentType = "investigating"
	SegmentAsking        SegmentType = "asking"
)

// GraphicConfig describes the stroke/fill/animation graphics of one
// segment. Path id lists may contain the "body_full" macro, expanded
// once at segment load before resolution.
type GraphicConfig struct {
	StartStrokePathIDs []string `json:"start_stroke_path_ids"`
	StartFillPathIDs   []string `json:"start_fill_path_ids"`
	AnimationPathIDs   []string `json:"animation_path_ids"`
	AnimationSpeed     int      `json:"animation_speed"`
	SequenceDelayMs    int      `json:"sequence_delay_ms"`
	EndFillRegionIDs   []string `json:"end_fill_region_ids"`
}

// Segment is one timed step of a meditation script. Constructed once
// at script load and never mutated.
type Segment struct {
	ID              string        `json:"id"`
	Description     string        `json:"description"`
	Type            SegmentType   `json:"type"`
	DurationSeconds int           `json:"duration_seconds"`
	AudioRef        string        `json:"audio_ref"`
	DrawingIndex    int           `json:"drawing_index"`
	Graphic         GraphicConfig `json:"graphic"`
}

// Script is the ordered, immutable description of one meditation.
type Script struct {
	Version  int       `json:"version"`
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Segments []Segment `json:"segments"`
}
