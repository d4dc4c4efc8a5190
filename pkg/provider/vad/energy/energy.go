// Package energy provides a [vad.Engine] that classifies frames by their RMS
// energy relative to a fixed threshold.
//
// It is the detector the voice loop uses when no model-based VAD is available:
// a frame is speech when its energy is at or above the configured threshold,
// and an active segment only ends after a number of consecutive quiet frames
// (the hangover) so that short pauses between words do not split a phrase.
//
// The reported probability is rms / (2 * threshold), clamped to [0, 1], so a
// frame exactly at the threshold scores 0.5.
package energy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/hemma/pkg/audio"
	"github.com/MrWong99/hemma/pkg/provider/vad"
)

const (
	defaultThreshold = 300.0
	defaultHangover  = 15
)

// Option configures an [Engine].
type Option func(*Engine)

// WithEnergyThreshold sets the RMS energy (in int16 sample units) at which a
// frame is considered speech.
func WithEnergyThreshold(rms float64) Option {
	return func(e *Engine) { e.threshold = rms }
}

// WithHangover sets the number of consecutive silent frames required before an
// active speech segment is closed.
func WithHangover(frames int) Option {
	return func(e *Engine) { e.hangover = frames }
}

// Engine is an energy-threshold VAD. It is safe for concurrent use.
type Engine struct {
	threshold float64
	hangover  int
}

var _ vad.Engine = (*Engine)(nil)

// New creates an energy VAD engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{threshold: defaultThreshold, hangover: defaultHangover}
	for _, o := range opts {
		o(e)
	}
	if e.threshold <= 0 {
		return nil, fmt.Errorf("energy: threshold must be positive, got %v", e.threshold)
	}
	if e.hangover < 0 {
		return nil, fmt.Errorf("energy: hangover must be non-negative, got %d", e.hangover)
	}
	return e, nil
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", cfg.SampleRate)
	}
	speech := cfg.SpeechThreshold
	if speech == 0 {
		speech = 0.5
	}
	silence := cfg.SilenceThreshold
	if silence == 0 {
		silence = speech
	}
	if silence > speech {
		return nil, fmt.Errorf("energy: silence threshold %v exceeds speech threshold %v", silence, speech)
	}
	return &session{
		threshold: e.threshold,
		hangover:  e.hangover,
		speech:    speech,
		silence:   silence,
	}, nil
}

// ErrClosed is returned by ProcessFrame after the session has been closed.
var ErrClosed = errors.New("energy: session closed")

type session struct {
	threshold float64
	hangover  int
	speech    float64
	silence   float64

	mu     sync.Mutex
	active bool
	quiet  int
	closed bool
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	p := min(audio.RMS(frame)/(2*s.threshold), 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, ErrClosed
	}

	if !s.active {
		if p >= s.speech {
			s.active = true
			s.quiet = 0
			return vad.VADEvent{Type: vad.VADSpeechStart, Probability: p}, nil
		}
		return vad.VADEvent{Type: vad.VADSilence, Probability: p}, nil
	}

	if p >= s.silence {
		s.quiet = 0
		return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: p}, nil
	}
	s.quiet++
	if s.quiet > s.hangover {
		s.active = false
		s.quiet = 0
		return vad.VADEvent{Type: vad.VADSpeechEnd, Probability: p}, nil
	}
	return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: p}, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	s.active = false
	s.quiet = 0
	s.mu.Unlock()
}

func (s *session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
