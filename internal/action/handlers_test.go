package action_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/hemma/internal/action"
	"github.com/MrWong99/hemma/internal/mcp"
	mcpmock "github.com/MrWong99/hemma/internal/mcp/mock"
	"github.com/MrWong99/hemma/pkg/memory"
	memmock "github.com/MrWong99/hemma/pkg/memory/mock"
	embmock "github.com/MrWong99/hemma/pkg/provider/embeddings/mock"
	"github.com/MrWong99/hemma/pkg/provider/llm"
	llmmock "github.com/MrWong99/hemma/pkg/provider/llm/mock"
)

func llmReplying(content string) *llmmock.Provider {
	return &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: content}}
}

func wantReason(t *testing.T, err error, reason string) {
	t.Helper()
	var he *action.HandlerError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want *HandlerError", err)
	}
	if he.Reason != reason {
		t.Errorf("reason = %q, want %q (err %v)", he.Reason, reason, err)
	}
}

func decodeArgs(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("tool args %q: %v", raw, err)
	}
	return m
}

// --- answer ---

func TestAnswerHandler(t *testing.T) {
	t.Parallel()

	p := llmReplying("  Paris is the capital of France. ")
	h, err := action.NewAnswerHandler(p, action.WithInstructions("Keep it short."), action.WithAnswerMaxTokens(64))
	if err != nil {
		t.Fatalf("NewAnswerHandler: %v", err)
	}
	got, err := h.Handle(context.Background(), "hey computer what is the capital of france")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got != "Paris is the capital of France." {
		t.Errorf("got %q", got)
	}
	req := p.Calls()[0].Req
	if req.SystemPrompt != action.AnswerSystemPrompt+"\nKeep it short." {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if req.MaxTokens != 64 || req.JSON {
		t.Errorf("request = %+v", req)
	}
}

func TestAnswerHandler_Failures(t *testing.T) {
	t.Parallel()

	h, _ := action.NewAnswerHandler(&llmmock.Provider{CompleteErr: errors.New("rate limited")})
	_, err := h.Handle(context.Background(), "q")
	wantReason(t, err, action.ReasonLLM)

	h, _ = action.NewAnswerHandler(llmReplying("   "))
	_, err = h.Handle(context.Background(), "q")
	wantReason(t, err, action.ReasonEmpty)

	if _, err := action.NewAnswerHandler(nil); err == nil {
		t.Error("expected error for nil provider")
	}
}

func TestAnswerHandler_Recall(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &memmock.Store{}
	emb := &embmock.Provider{EmbedResult: []float32{1, 0}, DimensionsValue: 2}
	j, err := memory.NewJournal(store, memory.WithRecall(store, emb))
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	if _, err := j.Record(ctx, memory.Turn{Transcript: "how tall is the eiffel tower", Result: "About 330 metres."}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := j.Record(ctx, memory.Turn{Transcript: "what broke", Result: "", Failed: true}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	p := llmReplying("It was finished in 1889.")
	h, _ := action.NewAnswerHandler(p, action.WithRecall(j, 3))
	if _, err := h.Handle(ctx, "when was it built"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	prompt := p.Calls()[0].Req.SystemPrompt
	if !strings.Contains(prompt, "About 330 metres.") {
		t.Errorf("prompt lacks recalled turn: %q", prompt)
	}
	if strings.Contains(prompt, "what broke") {
		t.Errorf("prompt contains failed turn: %q", prompt)
	}
}

func TestAnswerHandler_RecallFailureIsIgnored(t *testing.T) {
	t.Parallel()

	store := &memmock.Store{SimilarErr: errors.New("db down")}
	emb := &embmock.Provider{EmbedResult: []float32{1, 0}, DimensionsValue: 2}
	j, _ := memory.NewJournal(store, memory.WithRecall(store, emb))

	p := llmReplying("Answer.")
	h, _ := action.NewAnswerHandler(p, action.WithRecall(j, 3))
	got, err := h.Handle(context.Background(), "q")
	if err != nil || got != "Answer." {
		t.Fatalf("Handle = %q, %v", got, err)
	}
	if p.Calls()[0].Req.SystemPrompt != action.AnswerSystemPrompt {
		t.Errorf("system prompt = %q", p.Calls()[0].Req.SystemPrompt)
	}
}

// --- lights ---

func TestLightsHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		payload  string
		wantName string
		wantText string
	}{
		{
			name:     "exact on",
			payload:  `{"name":"Kitchen","is_on":true}`,
			wantName: "Kitchen",
			wantText: "Turned on the Kitchen lights.",
		},
		{
			name:     "misheard off",
			payload:  "```json\n{\"name\":\"living rum\",\"is_on\":false}\n```",
			wantName: "Living Room",
			wantText: "Turned off the Living Room lights.",
		},
		{
			name:     "color only",
			payload:  `{"name":"the bedroom","color":"blue"}`,
			wantName: "Bedroom",
			wantText: "Set the Bedroom lights to blue.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			host := &mcpmock.Host{ExecuteToolResult: &mcp.ToolResult{Content: "ok"}}
			h, err := action.NewLightsHandler(llmReplying(tt.payload), host, "set_light", []string{"Kitchen", "Living Room", "Bedroom"})
			if err != nil {
				t.Fatalf("NewLightsHandler: %v", err)
			}
			got, err := h.Handle(context.Background(), "hey computer lights")
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if got != tt.wantText {
				t.Errorf("reply = %q, want %q", got, tt.wantText)
			}
			calls := host.ExecutedArgs("set_light")
			if len(calls) != 1 {
				t.Fatalf("set_light calls = %d, want 1", len(calls))
			}
			if args := decodeArgs(t, calls[0]); args["name"] != tt.wantName {
				t.Errorf("tool name arg = %v, want %q", args["name"], tt.wantName)
			}
		})
	}
}

func TestLightsHandler_Failures(t *testing.T) {
	t.Parallel()

	rooms := []string{"Kitchen", "Garage"}
	tests := []struct {
		name    string
		llm     *llmmock.Provider
		host    *mcpmock.Host
		reason  string
		noCalls bool
	}{
		{"llm error", &llmmock.Provider{CompleteErr: errors.New("down")}, &mcpmock.Host{}, action.ReasonLLM, true},
		{"not json", llmReplying("sure thing"), &mcpmock.Host{}, action.ReasonBadPayload, true},
		{"nothing to change", llmReplying(`{"name":"Kitchen"}`), &mcpmock.Host{}, action.ReasonBadPayload, true},
		{"unknown room", llmReplying(`{"name":"observatory","is_on":true}`), &mcpmock.Host{}, action.ReasonUnknownTarget, true},
		{"tool error", llmReplying(`{"name":"Kitchen","is_on":true}`), &mcpmock.Host{ExecuteToolErr: errors.New("hub offline")}, action.ReasonTool, false},
		{"tool reports error", llmReplying(`{"name":"Kitchen","is_on":true}`), &mcpmock.Host{ExecuteToolResult: &mcp.ToolResult{Content: "no such light", IsError: true}}, action.ReasonTool, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, err := action.NewLightsHandler(tt.llm, tt.host, "set_light", rooms)
			if err != nil {
				t.Fatalf("NewLightsHandler: %v", err)
			}
			_, err = h.Handle(context.Background(), "x")
			wantReason(t, err, tt.reason)
			if tt.noCalls && tt.host.CallCount("ExecuteTool") != 0 {
				t.Error("tool must not be called")
			}
		})
	}
}

func TestNewLightsHandler_Validation(t *testing.T) {
	t.Parallel()

	if _, err := action.NewLightsHandler(nil, nil, "", nil); err == nil {
		t.Error("expected error")
	}
	if _, err := action.NewLightsHandler(llmReplying(""), &mcpmock.Host{}, "set_light", []string{" "}); err == nil {
		t.Error("expected error for no rooms")
	}
}

// --- music ---

func TestParseMusicAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   action.MusicAction
		wantOK bool
	}{
		{"pause", action.MusicPause, true},
		{" Turn_On_Amp ", action.MusicTurnOnAmp, true},
		{"play_playlist", action.MusicPlay, true},
		{"LIST_DEVICES", action.MusicListDevices, true},
		{"shuffle", "", false},
	}
	for _, tt := range tests {
		got, ok := action.ParseMusicAction(tt.in)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("ParseMusicAction(%q) = %q, %v", tt.in, got, ok)
		}
	}
}

func TestMusicHandler(t *testing.T) {
	t.Parallel()

	devices := []string{"Living Room Speaker", "Kitchen Radio"}
	tests := []struct {
		name       string
		payload    string
		toolOut    string
		wantText   string
		wantArgs   map[string]any
		wantNoTool bool
	}{
		{
			name:     "play on default device",
			payload:  `{"action":"play","args":{"play_type":"album","query":"abbey road"},"message":"Playing Abbey Road."}`,
			wantText: "Playing Abbey Road.",
			wantArgs: map[string]any{"action": "play", "device": "Living Room Speaker", "play_type": "album", "query": "abbey road"},
		},
		{
			name:     "pause named device",
			payload:  `{"action":"pause","args":{"device":"kitchen radio"},"message":"Paused."}`,
			wantText: "Paused.",
			wantArgs: map[string]any{"action": "pause", "device": "Kitchen Radio"},
		},
		{
			name:     "list playlists appends output",
			payload:  `{"action":"list_playlists","args":{},"message":"Your playlists are:"}`,
			toolOut:  "Chill, Workout",
			wantText: "Your playlists are: Chill, Workout",
			wantArgs: map[string]any{"action": "list_playlists", "device": "Living Room Speaker"},
		},
		{
			name:     "volume",
			payload:  `{"action":"volume","args":{"volume":40},"message":""}`,
			wantText: "",
			wantArgs: map[string]any{"action": "volume", "device": "Living Room Speaker", "volume": float64(40)},
		},
		{
			name:       "help is local",
			payload:    `{"action":"help","args":{},"message":"Here is what I can do."}`,
			wantText:   "Here is what I can do. I can turn on amp, turn off amp, list playlists, play, pause, resume, volume, help, list devices.",
			wantNoTool: true,
		},
		{
			name:       "list devices is local",
			payload:    `{"action":"list_devices","args":{}}`,
			wantText:   "Living Room Speaker, Kitchen Radio",
			wantNoTool: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			host := &mcpmock.Host{ExecuteToolResult: &mcp.ToolResult{Content: tt.toolOut}}
			h, err := action.NewMusicHandler(llmReplying(tt.payload), host, "music", devices, "living room speaker")
			if err != nil {
				t.Fatalf("NewMusicHandler: %v", err)
			}
			got, err := h.Handle(context.Background(), "hey computer music")
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if got != tt.wantText {
				t.Errorf("reply = %q, want %q", got, tt.wantText)
			}
			calls := host.ExecutedArgs("music")
			if tt.wantNoTool {
				if len(calls) != 0 {
					t.Errorf("tool called %d times, want 0", len(calls))
				}
				return
			}
			if len(calls) != 1 {
				t.Fatalf("tool calls = %d, want 1", len(calls))
			}
			args := decodeArgs(t, calls[0])
			if len(args) != len(tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
			for k, v := range tt.wantArgs {
				if args[k] != v {
					t.Errorf("args[%q] = %v, want %v", k, args[k], v)
				}
			}
		})
	}
}

func TestMusicHandler_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		reason  string
	}{
		{"unknown action", `{"action":"shuffle","args":{}}`, action.ReasonBadPayload},
		{"play without query", `{"action":"play","args":{"play_type":"album"}}`, action.ReasonBadPayload},
		{"bad play type", `{"action":"play","args":{"play_type":"podcast","query":"x"}}`, action.ReasonBadPayload},
		{"volume out of range", `{"action":"volume","args":{"volume":300}}`, action.ReasonBadPayload},
		{"volume missing", `{"action":"volume","args":{}}`, action.ReasonBadPayload},
		{"unknown device", `{"action":"pause","args":{"device":"submarine"}}`, action.ReasonUnknownTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			host := &mcpmock.Host{}
			h, err := action.NewMusicHandler(llmReplying(tt.payload), host, "music", []string{"Kitchen Radio"}, "")
			if err != nil {
				t.Fatalf("NewMusicHandler: %v", err)
			}
			_, err = h.Handle(context.Background(), "x")
			wantReason(t, err, tt.reason)
			if host.CallCount("ExecuteTool") != 0 {
				t.Error("tool must not be called")
			}
		})
	}
}

func TestNewMusicHandler_UnknownDefault(t *testing.T) {
	t.Parallel()

	_, err := action.NewMusicHandler(llmReplying(""), &mcpmock.Host{}, "music", []string{"Kitchen Radio"}, "submarine")
	if err == nil {
		t.Error("expected error for unknown default device")
	}
}

// --- weather ---

func TestWeatherHandler(t *testing.T) {
	t.Parallel()

	host := &mcpmock.Host{ExecuteToolResult: &mcp.ToolResult{Content: `{"temp_c": 14, "rain_mm": 3}`}}
	p := llmReplying("It's 14 degrees with some rain, bring an umbrella.")
	h, err := action.NewWeatherHandler(p, host, "get_weather", "Stockholm")
	if err != nil {
		t.Fatalf("NewWeatherHandler: %v", err)
	}
	got, err := h.Handle(context.Background(), "hey computer do I need an umbrella")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(got, "umbrella") {
		t.Errorf("reply = %q", got)
	}
	args := decodeArgs(t, host.ExecutedArgs("get_weather")[0])
	if args["location"] != "Stockholm" || args["query"] != "hey computer do I need an umbrella" {
		t.Errorf("tool args = %v", args)
	}
	if prompt := p.Calls()[0].Req.SystemPrompt; !strings.Contains(prompt, `"rain_mm": 3`) {
		t.Errorf("system prompt lacks weather data: %q", prompt)
	}
}

func TestWeatherHandler_Failures(t *testing.T) {
	t.Parallel()

	h, _ := action.NewWeatherHandler(llmReplying("x"), &mcpmock.Host{ExecuteToolErr: errors.New("timeout")}, "get_weather", "")
	_, err := h.Handle(context.Background(), "x")
	wantReason(t, err, action.ReasonTool)

	h, _ = action.NewWeatherHandler(llmReplying("x"), &mcpmock.Host{}, "get_weather", "")
	_, err = h.Handle(context.Background(), "x")
	wantReason(t, err, action.ReasonTool)

	host := &mcpmock.Host{ExecuteToolResult: &mcp.ToolResult{Content: "sunny"}}
	h, _ = action.NewWeatherHandler(&llmmock.Provider{CompleteErr: errors.New("down")}, host, "get_weather", "")
	_, err = h.Handle(context.Background(), "x")
	wantReason(t, err, action.ReasonLLM)

	if _, err := action.NewWeatherHandler(nil, nil, "", ""); err == nil {
		t.Error("expected validation error")
	}
}
