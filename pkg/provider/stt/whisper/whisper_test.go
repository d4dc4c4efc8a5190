package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/hemma/pkg/provider/stt"
	"github.com/MrWong99/hemma/pkg/provider/stt/whisper"
)

// inferenceRequest holds the parts of a captured /inference upload.
type inferenceRequest struct {
	language string
	model    string
	wav      []byte
}

// newMockServer creates a test server that answers POST /inference with the
// given text and records the last request.
func newMockServer(t *testing.T, responseText string, last *atomic.Pointer[inferenceRequest]) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		wav, _ := io.ReadAll(f)
		if last != nil {
			last.Store(&inferenceRequest{
				language: r.FormValue("language"),
				model:    r.FormValue("model"),
				wav:      wav,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func phrase(samples int) stt.Phrase {
	return stt.Phrase{PCM: make([]byte, samples*2), SampleRate: 16000, Channels: 1}
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_ReturnsTrimmedText(t *testing.T) {
	t.Parallel()

	var last atomic.Pointer[inferenceRequest]
	srv := newMockServer(t, "  hey computer turn on the lights \n", &last)

	p, err := whisper.New(srv.URL+"/", whisper.WithLanguage("de"), whisper.WithModel("small"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), phrase(1600))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hey computer turn on the lights" {
		t.Errorf("text = %q", text)
	}

	req := last.Load()
	if req == nil {
		t.Fatal("server saw no request")
	}
	if req.language != "de" || req.model != "small" {
		t.Errorf("fields = %q/%q, want de/small", req.language, req.model)
	}
	if len(req.wav) != 44+3200 {
		t.Fatalf("wav length = %d, want %d", len(req.wav), 44+3200)
	}
	if string(req.wav[0:4]) != "RIFF" || string(req.wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE header")
	}
	if rate := binary.LittleEndian.Uint32(req.wav[24:28]); rate != 16000 {
		t.Errorf("wav sample rate = %d, want 16000", rate)
	}
	if size := binary.LittleEndian.Uint32(req.wav[40:44]); size != 3200 {
		t.Errorf("wav data size = %d, want 3200", size)
	}
}

func TestTranscribe_EmptyPhrase_NoRequest(t *testing.T) {
	t.Parallel()

	var last atomic.Pointer[inferenceRequest]
	srv := newMockServer(t, "ignored", &last)
	p, _ := whisper.New(srv.URL)

	text, err := p.Transcribe(context.Background(), stt.Phrase{SampleRate: 16000, Channels: 1})
	if err != nil || text != "" {
		t.Fatalf("got (%q, %v), want empty and nil", text, err)
	}
	if last.Load() != nil {
		t.Error("empty phrase must not hit the server")
	}
}

func TestTranscribe_InvalidFormat(t *testing.T) {
	t.Parallel()

	p, _ := whisper.New("http://127.0.0.1:1")
	_, err := p.Transcribe(context.Background(), stt.Phrase{PCM: []byte{0, 0}})
	if err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), phrase(160))
	if err == nil {
		t.Fatal("expected error on HTTP 500")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("error %q should mention status and body", err)
	}
}

func TestTranscribe_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	t.Cleanup(srv.Close)

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), phrase(160)); err == nil {
		t.Fatal("expected error for malformed response")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, "hello", nil)
	p, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, phrase(160)); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestTranscribe_Concurrent(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, "ok", nil)
	p, _ := whisper.New(srv.URL)

	errs := make(chan error, 8)
	for range 8 {
		go func() {
			_, err := p.Transcribe(context.Background(), phrase(320))
			errs <- err
		}()
	}
	for range 8 {
		if err := <-errs; err != nil {
			t.Errorf("Transcribe: %v", err)
		}
	}
}
