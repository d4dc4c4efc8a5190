// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The voice loop transcribes one flushed phrase at a time: the segmenter has
// already decided where an utterance starts and ends, so a provider only has
// to turn a complete PCM buffer into text. Backends that are natively
// streaming (Deepgram) open a short-lived stream per phrase; batch engines
// (whisper.cpp) run a single inference.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts a phrase to text. An empty string with a nil error
	// means the backend heard nothing it could transcribe; callers discard it.
	//
	// Transcribe must honour ctx cancellation and return promptly once ctx is
	// done.
	Transcribe(ctx context.Context, phrase Phrase) (string, error)
}
