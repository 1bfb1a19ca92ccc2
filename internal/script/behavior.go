package script

// Behavior captures the per-type completion and interaction rules the
// orchestrator consults, centralizing what would otherwise be type
// switches scattered across components.
type Behavior struct {
	// RequiresUserAction: the segment never auto-advances; it exits
	// only on an explicit user action (drawing saved).
	RequiresUserAction bool
	// StartsAudioAndTimer: entering the segment starts the audio
	// player and the minimum-duration countdown.
	StartsAudioAndTimer bool
	// WaitsForTap: gate satisfaction alone does not advance; a tap
	// that sets the session location must arrive first.
	WaitsForTap bool
	// UsesLocationOverlay: the segment reads the session location set
	// by an earlier locating segment to position its overlay.
	UsesLocationOverlay bool
}

var behaviors = map[SegmentType]Behavior{
	SegmentFocusing:      {StartsAudioAndTimer: true},
	SegmentRecording:     {RequiresUserAction: true},
	SegmentReviewing:     {StartsAudioAndTimer: true},
	SegmentLocating:      {StartsAudioAndTimer: true, WaitsForTap: true},
	SegmentScanning:      {StartsAudioAndTimer: true},
	SegmentOpening:       {StartsAudioAndTimer: true, UsesLocationOverlay: true},
	SegmentFading:        {StartsAudioAndTimer: true},
	SegmentContracting:   {StartsAudioAndTimer: true},
	SegmentRelaxing:      {StartsAudioAndTimer: true},
	SegmentAppearing:     {StartsAudioAndTimer: true},
	SegmentCushion:       {StartsAudioAndTimer: true},
	SegmentBreathing:     {StartsAudioAndTimer: true},
	SegmentReading:       {StartsAudioAndTimer: true},
	SegmentInvestigating: {StartsAudioAndTimer: true, UsesLocationOverlay: true},
	SegmentAsking:        {StartsAudioAndTimer: true, UsesLocationOverlay: true},
}

// BehaviorFor returns the behavior flags for a segment type. Unknown
// types behave like an ordinary timed segment.
func BehaviorFor(t SegmentType) Behavior {
	if b, ok := behaviors[t]; ok {
		return b
	}
	return Behavior{StartsAudioAndTimer: true}
}

// Known reports whether t is one of the closed segment types.
func Known(t SegmentType) bool {
	_, ok := behaviors[t]
	return ok
}
