package player

import "time"

// AudioPlayer is the external narration-audio collaborator. Playback
// is asynchronous: Play returns immediately and onDone is invoked
// exactly once, with ok=false if the asset failed to load or play.
// Implementations must deliver onDone even on failure so the segment
// gate is never stuck waiting for audio.
type AudioPlayer interface {
	Play(ref string, onDone func(ok bool))
	Pause()
	Resume()
	Stop()
	Seek(pos time.Duration)
	SetVolume(v float64)
}

// NopAudio is an AudioPlayer for sessions without an audio device.
// Every Play completes successfully right away.
type NopAudio struct{}

func (NopAudio) Play(ref string, onDone func(ok bool)) {
	if onDone != nil {
		onDone(true)
	}
}

func (NopAudio) Pause()                 {}
func (NopAudio) Resume()                {}
func (NopAudio) Stop()                  {}
func (NopAudio) Seek(pos time.Duration) {}
func (NopAudio) SetVolume(v float64)    {}
