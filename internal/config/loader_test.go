package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/hemma/internal/config"
)

// minimalYAML is the smallest configuration that validates.
const minimalYAML = `
providers:
  stt: {name: whisper}
  llm: {name: openai}
  tts: {name: piper}
`

func TestLoadFromReader_MinimalAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo || cfg.Server.LogFormat != config.LogFormatText {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Server.ListenAddr != "" {
		t.Errorf("listen_addr = %q, want disabled", cfg.Server.ListenAddr)
	}
	if cfg.Audio.SampleRate != config.DefaultSampleRate || cfg.Audio.Channels != 1 || cfg.Audio.QueueSize != config.DefaultQueueSize {
		t.Errorf("audio defaults = %+v", cfg.Audio)
	}
	if cfg.Segmenter.PhraseTimeout != config.DefaultPhraseTimeout || cfg.Segmenter.PollInterval != config.DefaultPollInterval {
		t.Errorf("segmenter defaults = %+v", cfg.Segmenter)
	}
	if cfg.WakeWord.Phrase != config.DefaultWakePhrase || cfg.WakeWord.Threshold != 0.8 {
		t.Errorf("wake word defaults = %+v", cfg.WakeWord)
	}
	if cfg.Providers.CircuitBreaker.MaxFailures != config.DefaultMaxFailures {
		t.Errorf("breaker defaults = %+v", cfg.Providers.CircuitBreaker)
	}
	if cfg.Actions.LightControl.IsEnabled() || cfg.Actions.GetWeather.IsEnabled() {
		t.Error("tool actions must be off without a tool")
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "providers required",
			yaml: "server: {log_level: info}\n",
			want: []string{"providers.stt.name", "providers.llm.name", "providers.tts.name"},
		},
		{
			name: "bad server enums",
			yaml: minimalYAML + "server: {log_level: loud, log_format: xml}\n",
			want: []string{"server.log_level", "server.log_format"},
		},
		{
			name: "bad audio",
			yaml: minimalYAML + "audio: {channels: 6, frame_ms: 500, energy_threshold: -1}\n",
			want: []string{"audio.channels", "audio.frame_ms", "audio.energy_threshold"},
		},
		{
			name: "poll interval above bound",
			yaml: minimalYAML + "segmenter: {poll_interval: 1s}\n",
			want: []string{"segmenter.poll_interval"},
		},
		{
			name: "wake threshold out of range",
			yaml: minimalYAML + "wake_word: {threshold: 1.5}\n",
			want: []string{"wake_word"},
		},
		{
			name: "nested fallbacks",
			yaml: `
providers:
  stt: {name: whisper}
  llm:
    name: openai
    fallbacks:
      - name: anyllm
        fallbacks: [{name: openai}]
  tts: {name: piper}
`,
			want: []string{"providers.llm.fallbacks[0] must not declare fallbacks"},
		},
		{
			name: "lights without rooms or servers",
			yaml: minimalYAML + "actions: {light_control: {tool: set_light}}\n",
			want: []string{"actions.light_control.rooms", "mcp.servers is empty"},
		},
		{
			name: "music default device unknown",
			yaml: minimalYAML + `
actions: {music_control: {tool: spotify, devices: [Office], default_device: Kitchen}}
mcp: {servers: [{name: home, transport: stdio, command: home-mcp}]}
`,
			want: []string{`default_device "Kitchen"`},
		},
		{
			name: "weather enabled without tool",
			yaml: minimalYAML + `
actions: {get_weather: {enabled: true}}
mcp: {servers: [{name: home, transport: stdio, command: home-mcp}]}
`,
			want: []string{"actions.get_weather.tool"},
		},
		{
			name: "mcp servers",
			yaml: minimalYAML + `
mcp:
  servers:
    - {name: a, transport: stdio}
    - {name: a, transport: streamable-http}
    - {name: c, transport: carrier-pigeon}
`,
			want: []string{
				"mcp.servers[0].command",
				"mcp.servers[1].name \"a\" is a duplicate",
				"mcp.servers[1].url",
				"mcp.servers[2].transport",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{"OPENAI_API_KEY": "sk-123", "EMPTY": ""}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	got, missing := config.ExpandEnv(`key: ${OPENAI_API_KEY}, e: "${EMPTY}", m: ${MISSING}${MISSING}, raw: $HOME`, lookup)
	want := `key: sk-123, e: "", m: , raw: $HOME`
	if got != want {
		t.Errorf("ExpandEnv = %q, want %q", got, want)
	}
	if !slices.Equal(missing, []string{"MISSING"}) {
		t.Errorf("missing = %v, want [MISSING]", missing)
	}
}

func TestLoadFromReader_ExpandsEnvironment(t *testing.T) {
	t.Setenv("HEMMA_TEST_LLM_KEY", "sk-from-env")

	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  stt: {name: whisper}
  llm: {name: openai, api_key: "${HEMMA_TEST_LLM_KEY}"}
  tts: {name: piper}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, want sk-from-env", cfg.Providers.LLM.APIKey)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{"stt", "llm", "tts", "embeddings"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
	if !slices.Contains(config.ValidProviderNames["stt"], "whisper-native") {
		t.Error("whisper-native should be a known stt provider")
	}
}
