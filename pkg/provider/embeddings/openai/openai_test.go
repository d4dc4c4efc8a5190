package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestModelDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"TEXT-EMBEDDING-3-LARGE", 3072},
		{"text-embedding-ada-002", 1536},
		{"custom", 1536},
	}
	for _, tt := range tests {
		if got := modelDimensions(tt.model); got != tt.want {
			t.Errorf("modelDimensions(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New("", ""); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk", "", WithDimensions(-1)); err == nil {
		t.Error("expected error for negative dimensions")
	}

	p, err := New("sk", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ModelID() != DefaultModel || p.Dimensions() != 1536 {
		t.Errorf("defaults = %s/%d", p.ModelID(), p.Dimensions())
	}

	p, _ = New("sk", "text-embedding-3-large", WithDimensions(768))
	if p.Dimensions() != 768 {
		t.Errorf("Dimensions = %d, want 768", p.Dimensions())
	}
}

func TestEmbed_SendsShortenedDimensions(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.5,-0.25,1]}],
			"usage":{"prompt_tokens":3,"total_tokens":3}}`)
	}))
	t.Cleanup(srv.Close)

	p, err := New("sk", "", WithBaseURL(srv.URL), WithDimensions(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vec, err := p.Embed(context.Background(), "turn on the kitchen lights")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.5 || vec[1] != -0.25 || vec[2] != 1 {
		t.Errorf("vec = %v", vec)
	}
	if body["dimensions"] != float64(3) {
		t.Errorf("request dimensions = %v, want 3", body["dimensions"])
	}
	if body["input"] != "turn on the kitchen lights" {
		t.Errorf("request input = %v", body["input"])
	}
}
