package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/MrWong99/hemma/internal/observe"
	"github.com/MrWong99/hemma/internal/segment"
	"github.com/MrWong99/hemma/internal/wakeword"
	"github.com/MrWong99/hemma/pkg/memory"
	"github.com/MrWong99/hemma/pkg/provider/stt"
)

// Replies spoken when a turn cannot produce a result of its own.
const (
	FailureReply     = "Sorry, that did not work."
	UnsupportedReply = "Sorry, I can't do that yet."
)

// recordTimeout bounds the turn-log write, which must survive a stop that
// lands mid-turn.
const recordTimeout = 5 * time.Second

// loop is the sole consumer of the segmenter. Turns run strictly in arrival
// order on this goroutine.
func (a *App) loop(ctx context.Context) error {
	slog.Info("app: listening", "phrase_timeout", a.seg.Config().PhraseTimeout)
	for {
		phrase, err := a.seg.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				a.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
				slog.Info("app: loop stopped")
				return nil
			}
			return fmt.Errorf("app: next phrase: %w", err)
		}
		a.metrics.Phrases.Add(ctx, 1)

		t, ok := a.transcribe(ctx, phrase)
		if !ok {
			continue
		}
		a.runTurn(ctx, t)
	}
}

// transcribe returns the phrase text, or false when the phrase is dropped.
// A panicking provider drops the phrase like any other transcription error.
func (a *App) transcribe(ctx context.Context, p segment.Phrase) (t stt.Transcript, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("app: transcriber panicked, dropping phrase", "audio", p.Duration(), "panic", r, "stack", string(debug.Stack()))
			a.metrics.RecordTranscript(ctx, "error")
			t, ok = stt.Transcript{}, false
		}
	}()

	start := time.Now()
	text, err := a.providers.STT.Transcribe(ctx, stt.Phrase{
		PCM:        p.PCM,
		SampleRate: p.SampleRate,
		Channels:   p.Channels,
	})
	a.metrics.RecordStage(ctx, observe.StageTranscribe, time.Since(start))
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("app: transcription failed, dropping phrase", "audio", p.Duration(), "err", err)
			a.metrics.RecordTranscript(ctx, "error")
		}
		return stt.Transcript{}, false
	}

	t = stt.NewTranscript(text)
	if t.Empty() {
		a.metrics.RecordTranscript(ctx, "empty")
		slog.Debug("app: empty transcript", "audio", p.Duration())
		return t, false
	}
	a.metrics.RecordTranscript(ctx, "ok")
	slog.Info("app: heard", "text", t.Text, "audio", p.Duration())
	return t, true
}

// runTurn gates, classifies, dispatches and speaks one transcript. Nothing
// that happens inside a turn escapes it: errors are logged, panics are
// recovered, and the loop moves on to the next phrase.
func (a *App) runTurn(ctx context.Context, t stt.Transcript) {
	accepted := wakeword.Accepts(t.Text, a.wake)
	a.metrics.RecordWake(ctx, accepted)
	if !accepted {
		slog.Debug("app: no wake word", "text", t.Text)
		return
	}

	ctx, span := observe.StartTurn(ctx, t.Text)
	log := observe.Logger(ctx)
	turn := memory.Turn{Transcript: t.Text, At: t.At}

	var err error
	defer func() {
		if p := recover(); p != nil {
			log.Error("app: turn panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("app: turn panicked: %v", p)
			turn.Failed = true
			a.metrics.RecordTurnFailure(ctx, "panic")
		}
		turn.Duration = time.Since(t.At)
		a.metrics.TurnDuration.Record(ctx, turn.Duration.Seconds())
		if err != nil && ctx.Err() == nil {
			log.Warn("app: turn failed", "kind", turn.Kind, "err", err)
		}
		a.record(ctx, turn)
		observe.EndSpan(span, err)
	}()

	err = a.turn(ctx, &turn)
}

func (a *App) turn(ctx context.Context, turn *memory.Turn) error {
	log := observe.Logger(ctx)

	start := time.Now()
	dir := a.router.Classify(ctx, turn.Transcript)
	a.metrics.RecordStage(ctx, observe.StageClassify, time.Since(start))
	a.metrics.RecordDirective(ctx, dir.Kind.String())
	turn.Kind = dir.Kind.String()
	turn.Ack = dir.Message
	log.Info("app: directive", "kind", turn.Kind, "message", dir.Message)

	var errs []error
	if err := a.speak(ctx, dir.Message); err != nil {
		errs = append(errs, err)
	}

	start = time.Now()
	res := a.dispatcher.Dispatch(ctx, dir, turn.Transcript)
	a.metrics.RecordStage(ctx, observe.StageDispatch, time.Since(start))

	reply := res.Text
	switch {
	case res.Unsupported:
		reply = UnsupportedReply
	case res.Failed():
		reply = FailureReply
		a.metrics.RecordTurnFailure(ctx, observe.StageDispatch)
		errs = append(errs, res.Err)
	}
	turn.Result = reply

	if err := a.speak(ctx, reply); err != nil {
		errs = append(errs, err)
	}
	turn.Failed = len(errs) > 0
	return errors.Join(errs...)
}

// speak is a no-op for empty text.
func (a *App) speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	start := time.Now()
	err := a.sink.Speak(ctx, text)
	a.metrics.RecordStage(ctx, observe.StageSpeak, time.Since(start))
	if err != nil && ctx.Err() == nil {
		a.metrics.RecordTurnFailure(ctx, observe.StageSpeak)
	}
	return err
}

func (a *App) record(ctx context.Context, t memory.Turn) {
	if a.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if _, err := a.journal.Record(ctx, t); err != nil {
		observe.Logger(ctx).Warn("app: record turn", "err", err)
	}
}
