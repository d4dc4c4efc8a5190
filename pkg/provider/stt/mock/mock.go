// Package mock provides a test double for the stt.Provider interface.
//
// Responses are consumed in call order; once exhausted the provider falls back
// to Text and Err. This makes it easy to script a sequence of phrases where
// some transcriptions fail:
//
//	p := &mock.Provider{Responses: []mock.Response{
//	    {Text: "hey computer lights on"},
//	    {Err: errors.New("timeout")},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hemma/pkg/provider/stt"
)

// Response is one scripted Transcribe result.
type Response struct {
	Text string
	Err  error
}

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Phrase is the phrase passed to Transcribe. PCM is copied.
	Phrase stt.Phrase
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned in order, one per call.
	Responses []Response

	// Text and Err are returned once Responses is exhausted.
	Text string
	Err  error

	// TranscribeFunc, if set, replaces the scripted responses entirely.
	TranscribeFunc func(ctx context.Context, phrase stt.Phrase) (string, error)

	calls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns the next scripted response.
func (p *Provider) Transcribe(ctx context.Context, phrase stt.Phrase) (string, error) {
	p.mu.Lock()
	rec := phrase
	rec.PCM = append([]byte(nil), phrase.PCM...)
	p.calls = append(p.calls, TranscribeCall{Ctx: ctx, Phrase: rec})
	fn := p.TranscribeFunc
	idx := len(p.calls) - 1
	var resp Response
	if idx < len(p.Responses) {
		resp = p.Responses[idx]
	} else {
		resp = Response{Text: p.Text, Err: p.Err}
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, phrase)
	}
	return resp.Text, resp.Err
}

// Calls returns a copy of every recorded Transcribe call.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}
