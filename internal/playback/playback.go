// Package playback speaks text: it synthesizes audio with a TTS provider and
// pipes the raw PCM into an external player process.
//
// The player is a command line template. "{rate}" and "{channels}" in any
// argument are replaced with the format of the synthesized audio, so the
// default works with whatever sample rate the TTS voice produces.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/hemma/internal/observe"
	"github.com/MrWong99/hemma/internal/proc"
	"github.com/MrWong99/hemma/pkg/audio"
	"github.com/MrWong99/hemma/pkg/provider/tts"
)

// DefaultPlayer plays raw 16-bit little-endian PCM with ALSA's aplay.
const DefaultPlayer = "aplay -q -t raw -f S16_LE -r {rate} -c {channels}"

// Ops reported by [Error].
const (
	OpSynthesize = "synthesize"
	OpPlay       = "play"
)

// Error is returned by [Sink.Speak].
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "playback: " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Option configures a [Sink].
type Option func(*Sink)

// WithPlayer sets the player command template. Defaults to [DefaultPlayer].
func WithPlayer(line string) Option {
	return func(s *Sink) { s.player = line }
}

// WithSpeakHook registers fn to be called after every successful Speak with
// the duration of the audio played.
func WithSpeakHook(fn func(ctx context.Context, audio time.Duration)) Option {
	return func(s *Sink) { s.onSpeak = fn }
}

// Sink speaks text. Calls to Speak are serialized; a call returns only after
// its player process has exited.
type Sink struct {
	tts     tts.Provider
	player  string
	argv    []string
	onSpeak func(ctx context.Context, audio time.Duration)

	mu sync.Mutex
}

// New returns a Sink that synthesizes with t.
func New(t tts.Provider, opts ...Option) (*Sink, error) {
	if t == nil {
		return nil, errors.New("playback: tts provider must not be nil")
	}
	s := &Sink{tts: t, player: DefaultPlayer}
	for _, o := range opts {
		o(s)
	}
	argv, err := proc.Split(s.player)
	if err != nil {
		return nil, fmt.Errorf("playback: player command: %w", err)
	}
	s.argv = argv
	return s, nil
}

// Speak synthesizes text and plays it. Blank text is a no-op. Cancelling ctx
// kills the player.
func (s *Sink) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	speech, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		return &Error{Op: OpSynthesize, Err: err}
	}
	if len(speech.PCM) == 0 {
		return nil
	}
	if speech.SampleRate <= 0 || speech.Channels <= 0 {
		return &Error{Op: OpSynthesize, Err: fmt.Errorf("invalid audio format %d Hz / %d ch", speech.SampleRate, speech.Channels)}
	}

	argv := expand(s.argv, speech)
	var stderr bytes.Buffer
	cmd := proc.Command(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(speech.PCM)
	cmd.Stderr = &stderr

	observe.Logger(ctx).Debug("playback: speaking", "chars", len(text), "bytes", len(speech.PCM))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return &Error{Op: OpPlay, Err: ctx.Err()}
		}
		return &Error{Op: OpPlay, Err: fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))}
	}
	if s.onSpeak != nil {
		s.onSpeak(ctx, audio.PCMDuration(len(speech.PCM), speech.SampleRate, speech.Channels))
	}
	return nil
}

func expand(argv []string, a tts.Audio) []string {
	r := strings.NewReplacer("{rate}", strconv.Itoa(a.SampleRate), "{channels}", strconv.Itoa(a.Channels))
	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = r.Replace(arg)
	}
	return out
}
