package deepgram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/hemma/pkg/provider/stt"
)

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}

func TestBuildURL_Defaults(t *testing.T) {
	t.Parallel()

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := p.buildURL(16000, 1)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "host", "api.deepgram.com", u.Host)
	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_Options(t *testing.T) {
	t.Parallel()

	p, _ := New("key",
		WithModel("base"),
		WithLanguage("de-DE"),
		WithKeywords(Keyword{Word: "computer", Boost: 2}, Keyword{Word: "Kitchen", Boost: 1.5}),
	)
	raw, err := p.buildURL(48000, 2)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(raw)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "channels", "2", q.Get("channels"))

	kws := q["keywords"]
	if len(kws) != 2 || kws[0] != "computer:2" || kws[1] != "Kitchen:1.5" {
		t.Errorf("keywords = %v", kws)
	}
}

func TestBuildURL_InvalidRate(t *testing.T) {
	t.Parallel()

	p, _ := New("key")
	if _, err := p.buildURL(0, 1); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestNew_EmptyKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestParseMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		msg       string
		wantText  string
		wantFinal bool
		wantDone  bool
	}{
		{
			name:      "final result",
			msg:       `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" hey computer ","confidence":0.9}]}}`,
			wantText:  "hey computer",
			wantFinal: true,
		},
		{
			name:     "interim result",
			msg:      `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hey"}]}}`,
			wantText: "hey",
		},
		{
			name:      "no alternatives",
			msg:       `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`,
			wantFinal: true,
		},
		{name: "metadata", msg: `{"type":"Metadata","request_id":"x"}`, wantDone: true},
		{name: "speech started", msg: `{"type":"SpeechStarted"}`},
		{name: "garbage", msg: `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			text, final, done := parseMessage([]byte(tt.msg))
			if text != tt.wantText || final != tt.wantFinal || done != tt.wantDone {
				t.Errorf("got (%q, %v, %v), want (%q, %v, %v)",
					text, final, done, tt.wantText, tt.wantFinal, tt.wantDone)
			}
		})
	}
}

// fakeDeepgram accepts one stream, counts audio bytes until CloseStream, then
// replies with the given finals and a Metadata message.
type fakeDeepgram struct {
	finals []string

	mu         sync.Mutex
	audioBytes int
	authHeader string
}

func (f *fakeDeepgram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.authHeader = r.Header.Get("Authorization")
	f.mu.Unlock()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()

	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageBinary {
			f.mu.Lock()
			f.audioBytes += len(msg)
			f.mu.Unlock()
			continue
		}
		if strings.Contains(string(msg), "CloseStream") {
			break
		}
	}

	_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"partial"}]}}`))
	for _, text := range f.finals {
		msg := fmt.Sprintf(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":%q}]}}`, text)
		_ = conn.Write(ctx, websocket.MessageText, []byte(msg))
	}
	_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Metadata"}`))
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestTranscribe_CollectsFinals(t *testing.T) {
	t.Parallel()

	fake := &fakeDeepgram{finals: []string{"hey computer", "what time is it"}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	p, _ := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	pcm := make([]byte, 20000) // three write chunks
	text, err := p.Transcribe(context.Background(), stt.Phrase{PCM: pcm, SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hey computer what time is it" {
		t.Errorf("text = %q", text)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.audioBytes != len(pcm) {
		t.Errorf("server received %d audio bytes, want %d", fake.audioBytes, len(pcm))
	}
	assertEqual(t, "Authorization", "Token secret", fake.authHeader)
}

func TestTranscribe_EmptyPhrase(t *testing.T) {
	t.Parallel()

	p, _ := New("key", WithEndpoint("ws://127.0.0.1:1"))
	text, err := p.Transcribe(context.Background(), stt.Phrase{SampleRate: 16000, Channels: 1})
	if err != nil || text != "" {
		t.Fatalf("got (%q, %v), want empty and nil", text, err)
	}
}

func TestTranscribe_DialError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p, _ := New("bad", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	_, err := p.Transcribe(context.Background(), stt.Phrase{PCM: make([]byte, 320), SampleRate: 16000, Channels: 1})
	if err == nil {
		t.Fatal("expected dial error")
	}
}
