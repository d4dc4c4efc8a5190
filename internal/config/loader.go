package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/hemma/internal/mcp"
	"github.com/MrWong99/hemma/internal/wakeword"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "whisper-native", "deepgram"},
	"llm":        {"openai", "anyllm"},
	"tts":        {"elevenlabs", "piper"},
	"embeddings": {"openai", "ollama"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultSampleRate          = 16000
	DefaultFrameMs             = 20
	DefaultEnergyThreshold     = 300.0
	DefaultHangover            = 300 * time.Millisecond
	DefaultPreRoll             = 200 * time.Millisecond
	DefaultQueueSize           = 2048
	DefaultPhraseTimeout       = 3 * time.Second
	DefaultPollInterval        = 250 * time.Millisecond
	DefaultMaxPhrase           = 30 * time.Second
	DefaultWakePhrase          = "hey computer"
	DefaultMaxFailures         = 3
	DefaultResetTimeout        = 30 * time.Second
	DefaultEmbeddingDimensions = 1536
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references in the YAML read from r, decodes
// it strictly, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded, missing := ExpandEnv(string(raw), os.LookupEnv)
	if len(missing) > 0 {
		slog.Warn("config references unset environment variables", "vars", missing)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces every ${NAME} in s with the value lookup returns. Unset
// variables expand to the empty string and are reported in missing, once
// each, in order of appearance. A bare $NAME is left untouched.
func ExpandEnv(s string, lookup func(string) (string, bool)) (out string, missing []string) {
	out = envRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := envRef.FindStringSubmatch(ref)[1]
		v, ok := lookup(name)
		if !ok && !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
		return v
	})
	return out, missing
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.LogFormat == "" {
		s.LogFormat = LogFormatText
	}

	a := &cfg.Audio
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.Channels == 0 {
		a.Channels = 1
	}
	if a.FrameMs == 0 {
		a.FrameMs = DefaultFrameMs
	}
	if a.EnergyThreshold == 0 {
		a.EnergyThreshold = DefaultEnergyThreshold
	}
	if a.Hangover == 0 {
		a.Hangover = DefaultHangover
	}
	if a.PreRoll == 0 {
		a.PreRoll = DefaultPreRoll
	}
	if a.QueueSize == 0 {
		a.QueueSize = DefaultQueueSize
	}

	sg := &cfg.Segmenter
	if sg.PhraseTimeout == 0 {
		sg.PhraseTimeout = DefaultPhraseTimeout
	}
	if sg.PollInterval == 0 {
		sg.PollInterval = DefaultPollInterval
	}
	if sg.MaxPhrase == 0 {
		sg.MaxPhrase = DefaultMaxPhrase
	}

	if cfg.WakeWord.Phrase == "" {
		cfg.WakeWord.Phrase = DefaultWakePhrase
	}
	if cfg.WakeWord.Threshold == 0 {
		cfg.WakeWord.Threshold = wakeword.DefaultThreshold
	}

	cb := &cfg.Providers.CircuitBreaker
	if cb.MaxFailures == 0 {
		cb.MaxFailures = DefaultMaxFailures
	}
	if cb.ResetTimeout == 0 {
		cb.ResetTimeout = DefaultResetTimeout
	}

	if cfg.Memory.EmbeddingDimensions == 0 {
		cfg.Memory.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		add("server.log_format %q is invalid; valid values: text, json, pretty", cfg.Server.LogFormat)
	}

	// Audio
	a := cfg.Audio
	if a.SampleRate <= 0 {
		add("audio.sample_rate must be positive, got %d", a.SampleRate)
	}
	if a.Channels < 1 || a.Channels > 2 {
		add("audio.channels must be 1 or 2, got %d", a.Channels)
	}
	if a.FrameMs < 5 || a.FrameMs > 100 {
		add("audio.frame_ms %d is out of range [5, 100]", a.FrameMs)
	}
	if a.EnergyThreshold <= 0 {
		add("audio.energy_threshold must be positive, got %v", a.EnergyThreshold)
	}
	if a.Hangover < 0 {
		add("audio.hangover must not be negative")
	}
	if a.PreRoll < 0 {
		add("audio.pre_roll must not be negative")
	}
	if a.QueueSize <= 0 {
		add("audio.queue_size must be positive, got %d", a.QueueSize)
	}

	// Segmenter
	sg := cfg.Segmenter
	if sg.PhraseTimeout <= 0 {
		add("segmenter.phrase_timeout must be positive")
	}
	if sg.PollInterval <= 0 || sg.PollInterval > DefaultPollInterval {
		add("segmenter.poll_interval %s is out of range (0, %s]", sg.PollInterval, DefaultPollInterval)
	}
	if sg.MaxPhrase < 0 {
		add("segmenter.max_phrase must not be negative")
	}

	// Wake word
	if err := (wakeword.Config{Phrase: cfg.WakeWord.Phrase, Threshold: cfg.WakeWord.Threshold}).Validate(); err != nil {
		add("wake_word: %w", err)
	}

	// Providers
	p := cfg.Providers
	for _, e := range []struct {
		kind  string
		entry ProviderEntry
	}{{"stt", p.STT}, {"llm", p.LLM}, {"tts", p.TTS}} {
		if e.entry.Name == "" {
			add("providers.%s.name is required", e.kind)
		}
		errs = append(errs, validateEntry(e.kind, e.entry)...)
	}
	errs = append(errs, validateEntry("embeddings", p.Embeddings)...)
	if p.CircuitBreaker.MaxFailures < 0 {
		add("providers.circuit_breaker.max_failures must not be negative")
	}
	if p.CircuitBreaker.ResetTimeout < 0 {
		add("providers.circuit_breaker.reset_timeout must not be negative")
	}

	// Actions
	act := cfg.Actions
	toolActions := 0
	if act.AnswerQuestion.RecallTopK < 0 {
		add("actions.answer_question.recall_top_k must not be negative")
	}
	if act.AnswerQuestion.IsEnabled() && act.AnswerQuestion.RecallTopK > 0 {
		if cfg.Memory.PostgresDSN == "" || p.Embeddings.Name == "" {
			slog.Warn("actions.answer_question.recall_top_k is set but memory or embeddings are not configured; recall disabled")
		}
	}
	if act.LightControl.IsEnabled() {
		toolActions++
		if act.LightControl.Tool == "" {
			add("actions.light_control.tool is required when enabled")
		}
		if len(act.LightControl.Rooms) == 0 {
			add("actions.light_control.rooms must list at least one room")
		}
	}
	if act.MusicControl.IsEnabled() {
		toolActions++
		if act.MusicControl.Tool == "" {
			add("actions.music_control.tool is required when enabled")
		}
		if d := act.MusicControl.DefaultDevice; d != "" && !slices.Contains(act.MusicControl.Devices, d) {
			add("actions.music_control.default_device %q is not listed in devices", d)
		}
	}
	if act.GetWeather.IsEnabled() {
		toolActions++
		if act.GetWeather.Tool == "" {
			add("actions.get_weather.tool is required when enabled")
		}
	}
	if toolActions > 0 && len(cfg.MCP.Servers) == 0 {
		add("actions use MCP tools but mcp.servers is empty")
	}

	// MCP servers
	seen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			add("%s.name is required", prefix)
		} else {
			if prev, ok := seen[srv.Name]; ok {
				add("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev)
			}
			seen[srv.Name] = i
		}
		if !srv.Transport.IsValid() {
			add("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport)
		}
		if srv.Transport == mcp.TransportStdio && srv.Command == "" {
			add("%s.command is required when transport is stdio", prefix)
		}
		if srv.Transport == mcp.TransportStreamableHTTP && srv.URL == "" {
			add("%s.url is required when transport is streamable-http", prefix)
		}
	}

	// Memory
	if cfg.Memory.EmbeddingDimensions < 0 {
		add("memory.embedding_dimensions must not be negative")
	}
	if cfg.Memory.PostgresDSN == "" {
		slog.Debug("memory.postgres_dsn is empty; turns will not be recorded")
	}

	return errors.Join(errs...)
}

// validateEntry checks the fallbacks of entry and warns about unknown names.
func validateEntry(kind string, entry ProviderEntry) []error {
	var errs []error
	validateProviderName(kind, entry.Name)
	if len(entry.Fallbacks) > 0 && kind == "embeddings" {
		errs = append(errs, errors.New("providers.embeddings does not support fallbacks"))
	}
	for i, fb := range entry.Fallbacks {
		prefix := fmt.Sprintf("providers.%s.fallbacks[%d]", kind, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s must not declare fallbacks", prefix))
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
