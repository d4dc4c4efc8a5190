// Package action maps a classified [intent.Directive] to exactly one handler
// and turns whatever the handler does into a [Result].
//
// Handlers are narrow: they receive the original transcript and return the
// text to speak. A [Dispatcher] runs them one at a time and never lets a
// handler error or panic escape. Both surface as a [*HandlerError] in the
// returned Result.
package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/hemma/internal/intent"
)

// Handler performs one kind of action.
//
// Implementations should fail with a [*HandlerError]. Other errors are
// wrapped by the [Dispatcher].
type Handler interface {
	Handle(ctx context.Context, transcript string) (string, error)
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(ctx context.Context, transcript string) (string, error)

// Handle implements [Handler].
func (f HandlerFunc) Handle(ctx context.Context, transcript string) (string, error) {
	return f(ctx, transcript)
}

// ErrUnsupported is the error of a [Result] whose kind has no handler.
var ErrUnsupported = errors.New("action: unsupported kind")

// Reasons carried by [HandlerError].
const (
	ReasonFailed        = "failed"
	ReasonPanic         = "panic"
	ReasonLLM           = "llm_error"
	ReasonBadPayload    = "bad_payload"
	ReasonUnknownTarget = "unknown_target"
	ReasonTool          = "tool_error"
	ReasonEmpty         = "empty_reply"
)

// HandlerError is the failure of a single handler run.
type HandlerError struct {
	Kind   intent.Kind
	Reason string
	Err    error
}

func (e *HandlerError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("action: %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("action: %s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func handlerErr(kind intent.Kind, reason string, err error) *HandlerError {
	return &HandlerError{Kind: kind, Reason: reason, Err: err}
}

// Result is the outcome of one dispatch.
type Result struct {
	Kind intent.Kind

	// Text is the reply to speak. Empty on failure.
	Text string

	// Err is non-nil on failure: ErrUnsupported or a *HandlerError.
	Err error

	// Unsupported is true when no handler exists for Kind.
	Unsupported bool
}

// Failed reports whether the dispatch did not produce a reply.
func (r Result) Failed() bool { return r.Err != nil }

// Handlers holds at most one handler per action kind. A nil field means the
// kind is unsupported.
type Handlers struct {
	AnswerQuestion Handler
	LightControl   Handler
	MusicControl   Handler
	GetWeather     Handler
}

// For returns the handler registered for k. NoAction and kinds outside the
// closed set never have one.
func (h Handlers) For(k intent.Kind) (Handler, bool) {
	var hd Handler
	switch k {
	case intent.NoAction:
		return nil, false
	case intent.AnswerQuestion:
		hd = h.AnswerQuestion
	case intent.LightControl:
		hd = h.LightControl
	case intent.MusicControl:
		hd = h.MusicControl
	case intent.GetWeather:
		hd = h.GetWeather
	default:
		return nil, false
	}
	return hd, hd != nil
}
