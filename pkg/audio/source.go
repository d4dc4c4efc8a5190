// Package audio defines the capture abstraction and PCM helpers used by the
// voice loop.
//
// A [Source] is a push-based microphone: once started it invokes the supplied
// callback for every captured [AudioFrame] on its own goroutine until the
// returned [Capture] is stopped or the start context is cancelled. Concrete
// devices live in sub-packages (audio/portaudio) and tests use audio/mock.
package audio

import "context"

// Source starts live audio capture.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Start begins capture and delivers each frame to onFrame in real time.
	// onFrame is always called from a single goroutine owned by the source and
	// must not block; the callback is expected to hand the frame to a queue.
	//
	// Returns an error if the device cannot be opened. Capture ends when the
	// returned Capture is stopped or ctx is cancelled, whichever comes first.
	Start(ctx context.Context, onFrame func(AudioFrame)) (Capture, error)

	// Name identifies the source in logs (e.g., "portaudio:default").
	Name() string
}

// Capture is the handle for a running [Source].
type Capture interface {
	// Stop ends capture and releases the device. After Stop returns no further
	// frames are delivered. Calling Stop more than once is safe and returns nil.
	Stop() error
}

// CaptureFunc adapts a plain function to the [Capture] interface.
type CaptureFunc func() error

// Stop implements [Capture].
func (f CaptureFunc) Stop() error { return f() }
