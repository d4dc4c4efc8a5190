package resilience

import (
	"context"

	"github.com/MrWong99/hemma/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// States reports the breaker state of every backend.
func (f *TTSFallback) States() map[string]State { return f.group.States() }

// Close closes every backend that holds resources.
func (f *TTSFallback) Close() error { return f.group.Close() }

// Synthesize renders text with the first healthy provider. Backends may
// differ in sample rate; the returned Audio carries the format of whichever
// backend answered.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (tts.Audio, error) {
		return p.Synthesize(ctx, text)
	})
}
