package action

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/MrWong99/hemma/internal/intent"
	"github.com/MrWong99/hemma/internal/observe"
)

// NoActionReply is spoken when the directive asks for no action.
const NoActionReply = "Sorry, I could not perform any action"

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithResultHook registers fn to observe every Result before it is returned.
func WithResultHook(fn func(ctx context.Context, r Result)) DispatcherOption {
	return func(d *Dispatcher) { d.onResult = fn }
}

// Dispatcher runs the handler for a directive. Handler runs are serialized.
type Dispatcher struct {
	mu       sync.Mutex
	handlers Handlers
	onResult func(ctx context.Context, r Result)
}

// NewDispatcher returns a Dispatcher over h.
func NewDispatcher(h Handlers, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{handlers: h}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch runs at most one handler and reports the outcome. It never panics
// on behalf of a handler.
func (d *Dispatcher) Dispatch(ctx context.Context, dir intent.Directive, transcript string) Result {
	r := d.dispatch(ctx, dir, transcript)
	if d.onResult != nil {
		d.onResult(ctx, r)
	}
	return r
}

func (d *Dispatcher) dispatch(ctx context.Context, dir intent.Directive, transcript string) Result {
	log := observe.Logger(ctx).With("kind", dir.Kind.String())

	if dir.Kind == intent.NoAction {
		return Result{Kind: dir.Kind, Text: NoActionReply}
	}
	h, ok := d.handlers.For(dir.Kind)
	if !ok {
		log.Info("action: no handler for kind")
		return Result{Kind: dir.Kind, Err: ErrUnsupported, Unsupported: true}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	text, err := run(ctx, dir.Kind, h, transcript)
	if err != nil {
		log.Warn("action: handler failed", "err", err)
		return Result{Kind: dir.Kind, Err: err}
	}
	return Result{Kind: dir.Kind, Text: text}
}

func run(ctx context.Context, kind intent.Kind, h Handler, transcript string) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			observe.Logger(ctx).Error("action: handler panicked", "panic", p, "stack", string(debug.Stack()))
			text, err = "", handlerErr(kind, ReasonPanic, fmt.Errorf("%v", p))
		}
	}()

	text, err = h.Handle(ctx, transcript)
	if err == nil {
		return text, nil
	}
	var he *HandlerError
	if !errors.As(err, &he) {
		err = handlerErr(kind, ReasonFailed, err)
	}
	return "", err
}
