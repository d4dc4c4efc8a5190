// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a local
// Piper binary) and turns one reply into a complete PCM buffer. Replies in the
// voice loop are short acknowledgements and answers, so synthesis is not
// streamed; playback starts once the whole utterance is available.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text to raw 16-bit signed little-endian PCM.
	//
	// Returns an error if synthesis fails or ctx is cancelled. Empty text
	// yields an empty Audio and a nil error.
	Synthesize(ctx context.Context, text string) (Audio, error)
}
