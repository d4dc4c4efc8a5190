package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/hemma/internal/app"
	"github.com/MrWong99/hemma/internal/config"
	"github.com/MrWong99/hemma/internal/observe"
	"github.com/MrWong99/hemma/internal/resilience"
	"github.com/MrWong99/hemma/pkg/audio/portaudio"
	"github.com/MrWong99/hemma/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/hemma/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/hemma/pkg/provider/embeddings/openai"
	"github.com/MrWong99/hemma/pkg/provider/llm"
	"github.com/MrWong99/hemma/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/hemma/pkg/provider/llm/openai"
	"github.com/MrWong99/hemma/pkg/provider/stt"
	"github.com/MrWong99/hemma/pkg/provider/stt/deepgram"
	"github.com/MrWong99/hemma/pkg/provider/stt/whisper"
	"github.com/MrWong99/hemma/pkg/provider/tts"
	"github.com/MrWong99/hemma/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/hemma/pkg/provider/tts/piper"
	"github.com/MrWong99/hemma/pkg/provider/vad/energy"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := optInt(entry.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// anyllm reaches every other vendor; options.vendor picks one of
	// anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile.
	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		vendor := optString(entry.Options, "vendor")
		if vendor == "" {
			return nil, fmt.Errorf("anyllm: options.vendor is required")
		}
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(vendor, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, optString(entry.Options, "voice_id"), opts...)
	})

	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []piper.Option
		if bin := optString(entry.Options, "binary"); bin != "" {
			opts = append(opts, piper.WithBinary(bin))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, piper.WithSampleRate(rate))
		}
		if _, ok := entry.Options["speaker"]; ok {
			opts = append(opts, piper.WithSpeaker(optInt(entry.Options, "speaker")))
		}
		return piper.New(entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, oaembed.WithDimensions(dims))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	for _, kind := range []string{"stt", "llm", "tts", "embeddings"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// STT, LLM and TTS entries with fallbacks are wrapped in a breaker-guarded
// fallback chain.
func buildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (_ *app.Providers, err error) {
	ps := &app.Providers{}
	fb := fallbackConfig(cfg.Providers.CircuitBreaker, m)
	defer func() {
		if err != nil {
			_ = ps.Close()
		}
	}()

	src, err := portaudio.New(
		portaudio.WithSampleRate(cfg.Audio.SampleRate),
		portaudio.WithChannels(cfg.Audio.Channels),
		portaudio.WithFrameDuration(cfg.Audio.FrameMs),
		portaudio.WithDevice(cfg.Audio.Device),
	)
	if err != nil {
		return nil, fmt.Errorf("create audio source: %w", err)
	}
	ps.Source = src

	frame := time.Duration(cfg.Audio.FrameMs) * time.Millisecond
	vadEngine, err := energy.New(
		energy.WithEnergyThreshold(cfg.Audio.EnergyThreshold),
		energy.WithHangover(int(cfg.Audio.Hangover/frame)),
	)
	if err != nil {
		return nil, fmt.Errorf("create energy gate: %w", err)
	}
	ps.VAD = vadEngine

	primarySTT, fallbackSTT, err := createChain(cfg.Providers.STT, reg.CreateSTT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider: %w", err)
	}
	ps.STT = primarySTT
	if len(fallbackSTT) > 0 {
		chain := resilience.NewSTTFallback(primarySTT, label(cfg.Providers.STT), fb)
		for _, f := range fallbackSTT {
			chain.AddFallback(f.name, f.p)
		}
		ps.STT = chain
	}

	primaryLLM, fallbackLLM, err := createChain(cfg.Providers.LLM, reg.CreateLLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider: %w", err)
	}
	ps.LLM = primaryLLM
	if len(fallbackLLM) > 0 {
		chain := resilience.NewLLMFallback(primaryLLM, label(cfg.Providers.LLM), fb)
		for _, f := range fallbackLLM {
			chain.AddFallback(f.name, f.p)
		}
		ps.LLM = chain
	}

	primaryTTS, fallbackTTS, err := createChain(cfg.Providers.TTS, reg.CreateTTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider: %w", err)
	}
	ps.TTS = primaryTTS
	if len(fallbackTTS) > 0 {
		chain := resilience.NewTTSFallback(primaryTTS, label(cfg.Providers.TTS), fb)
		for _, f := range fallbackTTS {
			chain.AddFallback(f.name, f.p)
		}
		ps.TTS = chain
	}

	if cfg.Providers.Embeddings.Name != "" {
		p, embErr := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if embErr != nil {
			return nil, fmt.Errorf("create embeddings provider: %w", embErr)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", cfg.Providers.Embeddings.Name)
	}

	return ps, nil
}

type named[P any] struct {
	name string
	p    P
}

// createChain creates the provider named by entry and every fallback it
// declares, in order.
func createChain[P any](entry config.ProviderEntry, create func(config.ProviderEntry) (P, error)) (P, []named[P], error) {
	primary, err := create(entry)
	if err != nil {
		var zero P
		return zero, nil, err
	}
	slog.Info("provider created", "name", label(entry), "fallbacks", len(entry.Fallbacks))

	fallbacks := make([]named[P], 0, len(entry.Fallbacks))
	for _, fe := range entry.Fallbacks {
		p, err := create(fe)
		if err != nil {
			closeIfCloser(primary)
			for _, f := range fallbacks {
				closeIfCloser(f.p)
			}
			var zero P
			return zero, nil, fmt.Errorf("fallback %s: %w", label(fe), err)
		}
		fallbacks = append(fallbacks, named[P]{name: label(fe), p: p})
	}
	return primary, fallbacks, nil
}

func closeIfCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("close provider", "err", err)
		}
	}
}

// fallbackConfig maps the breaker settings and reports every transition.
func fallbackConfig(cb config.CircuitBreakerConfig, m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cb.MaxFailures,
			ResetTimeout: cb.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("provider breaker changed state", "provider", name, "from", from, "to", to)
				m.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
		OnError: func(name, kind string) {
			m.RecordProviderError(context.Background(), name, kind)
		},
	}
}

// label names a provider entry in logs and breaker metrics.
func label(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes whole numbers as int;
// floats are truncated. Returns 0 when absent or not numeric.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
