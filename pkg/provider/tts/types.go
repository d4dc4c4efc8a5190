package tts

import "time"

// Audio is a synthesized utterance.
type Audio struct {
	// PCM is 16-bit signed little-endian interleaved audio.
	PCM []byte

	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// Channels is the interleaved channel count.
	Channels int
}

// Duration returns the playback length. Returns 0 for an invalid format.
func (a Audio) Duration() time.Duration {
	bps := a.SampleRate * a.Channels * 2
	if bps <= 0 {
		return 0
	}
	return time.Duration(len(a.PCM)) * time.Second / time.Duration(bps)
}

// Empty reports whether there is nothing to play.
func (a Audio) Empty() bool { return len(a.PCM) == 0 }
