//go:build unix

package playback_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/hemma/internal/playback"
	"github.com/MrWong99/hemma/pkg/provider/tts"
	ttsmock "github.com/MrWong99/hemma/pkg/provider/tts/mock"
)

func speech(n int) tts.Audio {
	return tts.Audio{PCM: bytes.Repeat([]byte{1, 2}, n/2), SampleRate: 16000, Channels: 1}
}

func TestSpeak_PipesPCMToPlayer(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "played.raw")
	args := filepath.Join(t.TempDir(), "args.txt")
	audio := speech(3200)
	synth := &ttsmock.Provider{Audio: audio}

	var played time.Duration
	s, err := playback.New(synth,
		playback.WithPlayer(`sh -c 'cat > "$0"; echo "$1 $2" > "$3"' `+out+` {rate} {channels} `+args),
		playback.WithSpeakHook(func(_ context.Context, d time.Duration) { played = d }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Speak(context.Background(), "  Turning on the lights.  "); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read player output: %v", err)
	}
	if !bytes.Equal(got, audio.PCM) {
		t.Errorf("player received %d bytes, want %d", len(got), len(audio.PCM))
	}
	gotArgs, _ := os.ReadFile(args)
	if strings.TrimSpace(string(gotArgs)) != "16000 1" {
		t.Errorf("expanded args = %q, want %q", gotArgs, "16000 1")
	}
	if texts := synth.Texts(); len(texts) != 1 || texts[0] != "Turning on the lights." {
		t.Errorf("synthesized %q", texts)
	}
	if played != 100*time.Millisecond {
		t.Errorf("speak hook duration = %v, want 100ms", played)
	}
}

func TestSpeak_EmptyTextIsNoop(t *testing.T) {
	t.Parallel()

	synth := &ttsmock.Provider{Audio: speech(10)}
	s, err := playback.New(synth, playback.WithPlayer("false"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Speak(context.Background(), " \n "); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(synth.Texts()) != 0 {
		t.Error("blank text must not be synthesized")
	}
}

func TestSpeak_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		synth  *ttsmock.Provider
		player string
		op     string
	}{
		{"synthesis fails", &ttsmock.Provider{SynthesizeErr: errors.New("quota")}, "cat", playback.OpSynthesize},
		{"bad format", &ttsmock.Provider{Audio: tts.Audio{PCM: []byte{0, 0}}}, "cat", playback.OpSynthesize},
		{"player fails", &ttsmock.Provider{Audio: speech(64)}, `sh -c 'cat >/dev/null; echo no device >&2; exit 3'`, playback.OpPlay},
		{"player missing", &ttsmock.Provider{Audio: speech(64)}, "/nonexistent/player", playback.OpPlay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := playback.New(tt.synth, playback.WithPlayer(tt.player))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			err = s.Speak(context.Background(), "hello")
			var pe *playback.Error
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *playback.Error", err)
			}
			if pe.Op != tt.op {
				t.Errorf("op = %q, want %q", pe.Op, tt.op)
			}
		})
	}
}

func TestSpeak_CancelKillsPlayer(t *testing.T) {
	t.Parallel()

	s, err := playback.New(&ttsmock.Provider{Audio: speech(64)}, playback.WithPlayer("sleep 30"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = s.Speak(ctx, "a long story")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Speak returned after %v; player was not killed", elapsed)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := playback.New(nil); err == nil {
		t.Error("expected error for nil tts")
	}
	if _, err := playback.New(&ttsmock.Provider{}, playback.WithPlayer(`aplay "unterminated`)); err == nil {
		t.Error("expected error for malformed player command")
	}
}
