package intent

import (
	"context"
	"errors"

	"github.com/MrWong99/hemma/internal/observe"
)

// Classifier returns the raw structured payload for a transcript.
type Classifier interface {
	Classify(ctx context.Context, transcript string) (string, error)
}

// ClassifierFunc adapts a function to [Classifier].
type ClassifierFunc func(ctx context.Context, transcript string) (string, error)

// Classify implements [Classifier].
func (f ClassifierFunc) Classify(ctx context.Context, transcript string) (string, error) {
	return f(ctx, transcript)
}

// Degradation reasons passed to the degrade hook.
const (
	ReasonClassifierError = "classifier_error"
	ReasonMalformed       = "malformed"
	ReasonMissingAction   = "missing_action"
	ReasonUnknownAction   = "unknown_action"
)

// RouterOption configures a [Router].
type RouterOption func(*Router)

// WithDegradeHook registers fn to be called with a Reason* constant whenever
// Classify falls back to NoAction.
func WithDegradeHook(fn func(ctx context.Context, reason string)) RouterOption {
	return func(r *Router) { r.onDegrade = fn }
}

// Router turns transcripts into directives. Safe for concurrent use if the
// classifier is.
type Router struct {
	classifier Classifier
	onDegrade  func(ctx context.Context, reason string)
}

// NewRouter returns a Router over c.
func NewRouter(c Classifier, opts ...RouterOption) *Router {
	r := &Router{classifier: c}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Classify never fails. Classifier errors and unusable payloads are logged
// and yield [Fallback].
func (r *Router) Classify(ctx context.Context, transcript string) Directive {
	log := observe.Logger(ctx)

	raw, err := r.classifier.Classify(ctx, transcript)
	if err != nil {
		log.Warn("intent: classifier failed", "err", err)
		r.degrade(ctx, ReasonClassifierError)
		return Fallback()
	}

	d, err := Parse(raw)
	if err != nil {
		reason := ReasonMalformed
		switch {
		case errors.Is(err, ErrMissingAction):
			reason = ReasonMissingAction
		case errors.Is(err, ErrUnknownAction):
			reason = ReasonUnknownAction
		}
		log.Warn("intent: unusable classifier payload", "err", err, "payload", raw)
		r.degrade(ctx, reason)
		return Fallback()
	}

	log.Debug("intent: classified", "kind", d.Kind.String(), "message", d.Message)
	return d
}

func (r *Router) degrade(ctx context.Context, reason string) {
	if r.onDegrade != nil {
		r.onDegrade(ctx, reason)
	}
}
