// Package piper provides a TTS provider that runs the Piper neural TTS binary
// as a subprocess for each utterance.
//
// The reply text is written to piper's stdin and raw 16-bit mono PCM is read
// from stdout (--output-raw). The process runs in its own process group and is
// killed together with any children when the context is cancelled.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/hemma/internal/proc"
	"github.com/MrWong99/hemma/pkg/provider/tts"
)

const (
	defaultBinary     = "piper"
	defaultSampleRate = 22050
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Piper Provider.
type Option func(*Provider)

// WithBinary sets the path of the piper executable. Defaults to "piper" on
// PATH.
func WithBinary(path string) Option {
	return func(p *Provider) { p.binary = path }
}

// WithSampleRate sets the output rate of the voice model. It must match the
// "audio.sample_rate" of the model's .onnx.json. Defaults to 22050.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSpeaker selects a speaker in a multi-speaker model.
func WithSpeaker(id int) Option {
	return func(p *Provider) { p.speaker = &id }
}

// WithLengthScale adjusts speaking rate; values above 1 speak slower.
func WithLengthScale(scale float64) Option {
	return func(p *Provider) { p.lengthScale = scale }
}

// Provider implements tts.Provider by running piper.
type Provider struct {
	binary      string
	model       string
	sampleRate  int
	speaker     *int
	lengthScale float64
}

// New creates a Piper provider for the voice model at modelPath.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("piper: modelPath must not be empty")
	}
	p := &Provider{binary: defaultBinary, model: modelPath, sampleRate: defaultSampleRate}
	for _, o := range opts {
		o(p)
	}
	if p.sampleRate <= 0 {
		return nil, fmt.Errorf("piper: sample rate must be positive, got %d", p.sampleRate)
	}
	return p, nil
}

func (p *Provider) args() []string {
	args := []string{"--model", p.model, "--output-raw", "--quiet"}
	if p.speaker != nil {
		args = append(args, "--speaker", strconv.Itoa(*p.speaker))
	}
	if p.lengthScale > 0 {
		args = append(args, "--length_scale", strconv.FormatFloat(p.lengthScale, 'f', -1, 64))
	}
	return args
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	out := tts.Audio{SampleRate: p.sampleRate, Channels: 1}
	text = strings.TrimSpace(text)
	if text == "" {
		return out, nil
	}

	var stdout, stderr bytes.Buffer
	cmd := proc.Command(ctx, p.binary, p.args()...)
	// Piper synthesizes one utterance per input line.
	cmd.Stdin = strings.NewReader(strings.ReplaceAll(text, "\n", " ") + "\n")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("piper: %w", ctx.Err())
		}
		return out, fmt.Errorf("piper: run %s: %w: %s", p.binary, err, strings.TrimSpace(stderr.String()))
	}
	pcm := stdout.Bytes()
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	out.PCM = pcm
	return out, nil
}
