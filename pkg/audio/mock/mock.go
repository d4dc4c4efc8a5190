// Package mock provides an in-memory [audio.Source] for unit tests.
//
// The source records Start and Stop calls and lets the test act as the
// capture goroutine by calling [Source.Emit]. Frames listed in Frames are
// emitted automatically on a background goroutine right after Start.
//
//	src := &mock.Source{}
//	capture, _ := src.Start(ctx, seg.Push)
//	src.Emit(audio.AudioFrame{Data: pcm, SampleRate: 16000, Channels: 1})
//	capture.Stop()
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/hemma/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// SourceName is returned by Name. Defaults to "mock".
	SourceName string

	// StartErr is returned by Start when non-nil.
	StartErr error

	// Frames are emitted asynchronously after a successful Start.
	Frames []audio.AudioFrame

	// StopErr is returned by the capture's Stop.
	StopErr error

	onFrame    func(audio.AudioFrame)
	startCalls int
	stopCalls  int
	stopped    bool
	emitted    int
}

// Start implements [audio.Source].
func (s *Source) Start(ctx context.Context, onFrame func(audio.AudioFrame)) (audio.Capture, error) {
	s.mu.Lock()
	s.startCalls++
	if s.StartErr != nil {
		s.mu.Unlock()
		return nil, s.StartErr
	}
	if onFrame == nil {
		s.mu.Unlock()
		return nil, errors.New("mock source: nil frame callback")
	}
	s.onFrame = onFrame
	s.stopped = false
	frames := append([]audio.AudioFrame(nil), s.Frames...)
	s.mu.Unlock()

	if len(frames) > 0 {
		go func() {
			for _, f := range frames {
				if ctx.Err() != nil {
					return
				}
				s.Emit(f)
			}
		}()
	}

	var once sync.Once
	return audio.CaptureFunc(func() error {
		var err error
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.stopCalls++
			s.stopped = true
			err = s.StopErr
		})
		return err
	}), nil
}

// Name implements [audio.Source].
func (s *Source) Name() string {
	if s.SourceName == "" {
		return "mock"
	}
	return s.SourceName
}

// Emit delivers f to the registered callback as if it had just been captured.
// It reports false when the source is not started or already stopped.
func (s *Source) Emit(f audio.AudioFrame) bool {
	s.mu.Lock()
	cb := s.onFrame
	if cb == nil || s.stopped {
		s.mu.Unlock()
		return false
	}
	s.emitted++
	s.mu.Unlock()
	cb(f)
	return true
}

// StartCalls returns the number of Start invocations.
func (s *Source) StartCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCalls
}

// StopCalls returns the number of effective Stop invocations.
func (s *Source) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// Emitted returns the number of frames delivered to the callback.
func (s *Source) Emitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted
}
