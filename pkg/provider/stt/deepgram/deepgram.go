// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API.
//
// Each phrase opens its own short-lived stream: the audio is written in
// chunks, a CloseStream control message asks Deepgram to flush, and every
// final result received before the server closes the socket is joined into
// the transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/hemma/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// writeChunkBytes is 250ms of 16 kHz mono audio.
	writeChunkBytes = 8000
)

var _ stt.Provider = (*Provider)(nil)

// Keyword is a vocabulary hint that raises the recognition probability of an
// uncommon word, such as the wake phrase or a room name.
type Keyword struct {
	Word  string
	Boost float64
}

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithKeywords sets keyword boosts sent with every stream.
func WithKeywords(kw ...Keyword) Option {
	return func(p *Provider) { p.keywords = kw }
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
	keywords []Keyword
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, phrase stt.Phrase) (string, error) {
	if len(phrase.PCM) == 0 {
		return "", nil
	}
	wsURL, err := p.buildURL(phrase.SampleRate, phrase.Channels)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	writeErr := make(chan error, 1)
	go func() { writeErr <- writeAudio(ctx, conn, phrase.PCM) }()

	var parts []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return "", fmt.Errorf("deepgram: read: %w", err)
		}
		text, final, done := parseMessage(msg)
		if final && text != "" {
			parts = append(parts, text)
		}
		if done {
			break
		}
	}
	if err := <-writeErr; err != nil {
		return "", fmt.Errorf("deepgram: write: %w", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
	return strings.Join(parts, " "), nil
}

// writeAudio streams pcm in fixed-size binary messages followed by the
// CloseStream control message.
func writeAudio(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for off := 0; off < len(pcm); off += writeChunkBytes {
		end := min(off+writeChunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return err
		}
	}
	return conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
}

// buildURL constructs the streaming endpoint URL for a phrase format.
func (p *Provider) buildURL(sampleRate, channels int) (string, error) {
	if sampleRate <= 0 {
		return "", fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("encoding", "linear16")
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", strconv.Itoa(max(channels, 1)))
	for _, kw := range p.keywords {
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Word, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure of a streaming server message.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseMessage extracts the transcript from a Results message. done is true
// for the Metadata message Deepgram sends after the final flush.
func parseMessage(data []byte) (text string, final, done bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false, false
	}
	switch resp.Type {
	case "Metadata":
		return "", false, true
	case "Results":
		if len(resp.Channel.Alternatives) == 0 {
			return "", resp.IsFinal, false
		}
		return strings.TrimSpace(resp.Channel.Alternatives[0].Transcript), resp.IsFinal, false
	default:
		return "", false, false
	}
}
