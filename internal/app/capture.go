package app

import (
	"log/slog"
	"time"

	"github.com/MrWong99/hemma/pkg/audio"
	"github.com/MrWong99/hemma/pkg/provider/vad"
)

// gate sits between the capture callback and the segmenter. It normalises
// every frame to the loop format and, when a VAD session is present, only
// forwards speech frames plus a short pre-roll of the quiet audio before
// each onset. Frames are handled on the capture goroutine only.
type gate struct {
	conv    audio.FormatConverter
	session vad.SessionHandle
	push    func(audio.AudioFrame) bool
	now     func() time.Time

	preRoll []audio.AudioFrame
	maxPre  int
	active  bool
	vadErr  bool
}

func newGate(target audio.Format, session vad.SessionHandle, preRollFrames int, push func(audio.AudioFrame) bool) *gate {
	return &gate{
		conv:    audio.FormatConverter{Target: target},
		session: session,
		push:    push,
		now:     time.Now,
		maxPre:  max(preRollFrames, 0),
	}
}

// onFrame is the [audio.Source] callback. It never blocks.
func (g *gate) onFrame(f audio.AudioFrame) {
	if f.ArrivedAt.IsZero() {
		f.ArrivedAt = g.now()
	}
	f = g.conv.Convert(f)
	if len(f.Data) == 0 {
		return
	}
	if g.session == nil {
		g.push(f)
		return
	}

	ev, err := g.session.ProcessFrame(f.Data)
	if err != nil {
		// Pass audio through rather than lose speech on a detector fault.
		if !g.vadErr {
			slog.Warn("app: vad failed, passing audio through", "err", err)
			g.vadErr = true
		}
		g.push(f)
		return
	}

	if ev.IsSpeech() {
		if !g.active {
			g.flushPreRoll()
			g.active = true
		}
		g.push(f)
		return
	}

	g.active = false
	g.remember(f)
}

func (g *gate) remember(f audio.AudioFrame) {
	if g.maxPre == 0 {
		return
	}
	if len(g.preRoll) == g.maxPre {
		copy(g.preRoll, g.preRoll[1:])
		g.preRoll = g.preRoll[:g.maxPre-1]
	}
	g.preRoll = append(g.preRoll, f)
}

func (g *gate) flushPreRoll() {
	for _, f := range g.preRoll {
		g.push(f)
	}
	clear(g.preRoll)
	g.preRoll = g.preRoll[:0]
}

// framesFor returns how many frames of frameMs cover d, rounding up.
func framesFor(d time.Duration, frameMs int) int {
	if d <= 0 || frameMs <= 0 {
		return 0
	}
	frame := time.Duration(frameMs) * time.Millisecond
	return int((d + frame - 1) / frame)
}
