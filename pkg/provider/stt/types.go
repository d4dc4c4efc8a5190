package stt

import (
	"strings"
	"time"
)

// Phrase is a contiguous buffer of 16-bit signed little-endian PCM audio that
// the segmenter has closed.
type Phrase struct {
	// PCM is the raw audio. It is owned by the provider for the duration of
	// the Transcribe call and must not be modified.
	PCM []byte

	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// Channels is the interleaved channel count. 1 is mono.
	Channels int
}

// Duration returns the playback length of the phrase. Returns 0 for an invalid
// format.
func (p Phrase) Duration() time.Duration {
	bps := p.SampleRate * p.Channels * 2
	if bps <= 0 {
		return 0
	}
	return time.Duration(len(p.PCM)) * time.Second / time.Duration(bps)
}

// Transcript is the text recognised for one phrase.
type Transcript struct {
	// Text is the recognised speech, trimmed of surrounding whitespace.
	Text string

	// At is the wall-clock time the transcript was produced.
	At time.Time
}

// NewTranscript returns a Transcript for text stamped with the current time.
func NewTranscript(text string) Transcript {
	return Transcript{Text: strings.TrimSpace(text), At: time.Now()}
}

// Empty reports whether the transcript carries no speech.
func (t Transcript) Empty() bool { return t.Text == "" }
