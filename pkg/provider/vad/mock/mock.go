// Package mock provides test doubles for the vad package interfaces.
//
// A [Session] replays a script of detections, one per frame, so a test can
// say exactly which frames of a sequence count as speech:
//
//	sess := &mock.Session{Events: mock.Script("..ss.s")}
//	eng := &mock.Engine{Session: sess}
//
// After the run, [Session.Frames] returns what the code under test submitted.
package mock

import (
	"sync"

	"github.com/MrWong99/hemma/pkg/provider/vad"
)

// Engine is a mock [vad.Engine].
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. When nil a fresh Session is
	// returned.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned by NewSession.
	NewSessionErr error

	configs []vad.Config
}

var _ vad.Engine = (*Engine)(nil)

// NewSession records cfg and returns Session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Configs returns every Config passed to NewSession, in order.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Config(nil), e.configs...)
}

// Script turns a compact pattern into events: 's' is speech, anything else
// is silence.
func Script(pattern string) []vad.VADEvent {
	out := make([]vad.VADEvent, 0, len(pattern))
	for _, c := range pattern {
		if c == 's' {
			out = append(out, vad.VADEvent{Type: vad.VADSpeechContinue, Probability: 1})
		} else {
			out = append(out, vad.VADEvent{Type: vad.VADSilence})
		}
	}
	return out
}

// Session is a mock [vad.SessionHandle].
type Session struct {
	mu sync.Mutex

	// Events are returned in order, one per ProcessFrame call.
	Events []vad.VADEvent

	// EventResult is returned once Events is exhausted. The zero value is a
	// speech onset.
	EventResult vad.VADEvent

	// ProcessErr, if non-nil, is returned by every ProcessFrame call.
	ProcessErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	frames [][]byte
	resets int
	closes int
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame records a copy of frame and returns the next scripted event.
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.frames)
	s.frames = append(s.frames, append([]byte(nil), frame...))
	if s.ProcessErr != nil {
		return vad.VADEvent{}, s.ProcessErr
	}
	if idx < len(s.Events) {
		return s.Events[idx], nil
	}
	return s.EventResult, nil
}

// Reset counts the call.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

// Close counts the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.CloseErr
}

// Frames returns copies of every frame passed to ProcessFrame.
func (s *Session) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames...)
}

// ProcessFrameCalls returns the number of ProcessFrame calls.
func (s *Session) ProcessFrameCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// ResetCalls returns the number of Reset calls.
func (s *Session) ResetCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// CloseCalls returns the number of Close calls.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
