// Package app supervises the hemma voice loop.
//
// The App owns every collaborator lifetime. New validates and wires the
// in-process pieces, Start brings up memory, MCP servers, the response sink
// and audio capture under one root context, Run consumes phrases until the
// operator stops it, and Shutdown tears everything down in order.
//
// Any failure during Start is fatal: the root context is cancelled in one
// step (killing every subprocess group started under it), all registered
// closers run, and the App ends in [StateFatal]. Failures inside a turn are
// logged and isolated to that turn.
//
// For testing, inject doubles via functional options (WithMCPHost,
// WithMemoryStore, WithSink, ...). When an option is not provided, the
// corresponding collaborator is created from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hemma/internal/action"
	"github.com/MrWong99/hemma/internal/config"
	"github.com/MrWong99/hemma/internal/intent"
	"github.com/MrWong99/hemma/internal/mcp"
	"github.com/MrWong99/hemma/internal/mcp/mcphost"
	"github.com/MrWong99/hemma/internal/observe"
	"github.com/MrWong99/hemma/internal/playback"
	"github.com/MrWong99/hemma/internal/resilience"
	"github.com/MrWong99/hemma/internal/segment"
	"github.com/MrWong99/hemma/internal/wakeword"
	"github.com/MrWong99/hemma/pkg/audio"
	"github.com/MrWong99/hemma/pkg/memory"
	"github.com/MrWong99/hemma/pkg/memory/postgres"
	"github.com/MrWong99/hemma/pkg/provider/embeddings"
	"github.com/MrWong99/hemma/pkg/provider/llm"
	"github.com/MrWong99/hemma/pkg/provider/stt"
	"github.com/MrWong99/hemma/pkg/provider/tts"
	"github.com/MrWong99/hemma/pkg/provider/vad"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("app: already started")

	// ErrNotRunning is returned by Run when Start has not succeeded.
	ErrNotRunning = errors.New("app: not running")
)

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry. Embeddings and VAD are optional.
type Providers struct {
	Source     audio.Source
	STT        stt.Provider
	LLM        llm.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
	VAD        vad.Engine
}

// Close releases every provider that implements [io.Closer], such as a
// loaded whisper model. Once Start has been called the App does this during
// teardown; callers only need it when New fails.
func (p *Providers) Close() error {
	var errs []error
	for _, v := range []any{p.STT, p.LLM, p.TTS, p.Embeddings, p.VAD} {
		c, ok := v.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Speaker is the response sink. [playback.Sink] is the production
// implementation.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// App owns all subsystem lifetimes and runs the voice loop.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Wired in New.
	seg        *segment.Segmenter
	wake       wakeword.Config
	classifier intent.Classifier
	router     *intent.Router

	// Wired in Start unless injected.
	mcpHost    mcp.Host
	store      memory.Store
	guard      *memory.Guard
	journal    *memory.Journal
	handlers   *action.Handlers
	dispatcher *action.Dispatcher
	sink       Speaker

	state   atomic.Int32
	started atomic.Bool

	root    context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	loopCtx context.Context

	captureMu sync.Mutex
	capture   audio.Capture

	// closers are called in order during teardown.
	closersMu sync.Mutex
	closers   []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMCPHost injects an MCP host instead of creating one from config. The
// App takes ownership and closes it on teardown.
func WithMCPHost(h mcp.Host) Option {
	return func(a *App) { a.mcpHost = h }
}

// WithMemoryStore injects the turn log instead of connecting to Postgres.
func WithMemoryStore(s memory.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSink injects the response sink instead of a TTS-backed [playback.Sink].
func WithSink(s Speaker) Option {
	return func(a *App) { a.sink = s }
}

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithClassifier injects the intent classifier instead of the LLM one.
func WithClassifier(c intent.Classifier) Option {
	return func(a *App) { a.classifier = c }
}

// WithHandlers injects the action handlers instead of building them from
// the actions config.
func WithHandlers(h action.Handlers) Option {
	return func(a *App) { a.handlers = &h }
}

// New wires the in-process parts of the loop. It starts nothing; see
// [App.Start].
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.Source == nil {
		return nil, errors.New("app: audio source must not be nil")
	}
	if providers.STT == nil {
		return nil, errors.New("app: stt provider must not be nil")
	}

	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.state.Store(int32(StateStarting))

	if a.sink == nil && providers.TTS == nil {
		return nil, errors.New("app: tts provider must not be nil")
	}

	seg, err := segment.New(segment.Config{
		PhraseTimeout: cfg.Segmenter.PhraseTimeout,
		PollInterval:  cfg.Segmenter.PollInterval,
		MaxPhrase:     cfg.Segmenter.MaxPhrase,
		QueueSize:     cfg.Audio.QueueSize,
	}, segment.WithDropHook(func(audio.AudioFrame) {
		a.metrics.DroppedFrames.Add(context.Background(), 1)
	}))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.seg = seg

	a.wake = wakeword.Config{Phrase: cfg.WakeWord.Phrase, Threshold: cfg.WakeWord.Threshold}
	if a.wake.Threshold == 0 {
		a.wake.Threshold = wakeword.DefaultThreshold
	}
	if err := a.wake.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	if a.classifier == nil {
		if providers.LLM == nil {
			return nil, errors.New("app: llm provider must not be nil")
		}
		c, err := intent.NewLLMClassifier(providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.classifier = c
	}
	a.router = intent.NewRouter(a.classifier, intent.WithDegradeHook(func(ctx context.Context, reason string) {
		a.metrics.RecordDegradation(ctx, reason)
	}))

	return a, nil
}

// State returns the current lifecycle state. Safe for concurrent use.
func (a *App) State() State { return State(a.state.Load()) }

// Start brings up every collaborator and begins audio capture. On failure
// the App is torn down, its state becomes [StateFatal], and the error is
// returned.
func (a *App) Start(ctx context.Context) (err error) {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	a.root, a.cancel = context.WithCancel(ctx)
	a.group, a.loopCtx = errgroup.WithContext(a.root)

	defer func() {
		if err == nil {
			return
		}
		a.state.Store(int32(StateFatal))
		a.cancel()
		a.stopCapture()
		a.runClosers(context.Background())
		slog.Error("app: start failed", "err", err)
	}()

	a.addCloser(a.providers.Close)

	if err := a.initMemory(a.root); err != nil {
		return fmt.Errorf("app: init memory: %w", err)
	}
	if err := a.initMCP(a.root); err != nil {
		return fmt.Errorf("app: init mcp: %w", err)
	}
	if err := a.initActions(); err != nil {
		return fmt.Errorf("app: init actions: %w", err)
	}
	if err := a.initSink(); err != nil {
		return fmt.Errorf("app: init sink: %w", err)
	}
	if err := a.initCapture(a.root); err != nil {
		return fmt.Errorf("app: init capture: %w", err)
	}

	if !a.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		return fmt.Errorf("app: unexpected state %s", a.State())
	}
	slog.Info("app: started",
		"source", a.providers.Source.Name(),
		"wake_phrase", a.wake.Phrase,
		"closers", a.closerCount(),
	)
	return nil
}

// Run consumes phrases until ctx is cancelled or Shutdown is called. An
// operator stop returns nil.
func (a *App) Run(ctx context.Context) error {
	if a.State() != StateRunning {
		return ErrNotRunning
	}
	stop := context.AfterFunc(ctx, a.cancel)
	defer stop()

	a.group.Go(func() error {
		defer a.cancel()
		return a.loop(a.loopCtx)
	})
	a.group.Go(func() error {
		<-a.loopCtx.Done()
		a.stopCapture()
		return nil
	})

	if err := a.group.Wait(); err != nil {
		a.state.Store(int32(StateFatal))
		return err
	}
	return nil
}

// Shutdown stops capture, cancels the root context and runs all closers in
// order. Closers still pending when ctx expires are skipped. Safe to call
// more than once; only the first call has effect.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
		slog.Info("app: shutting down", "closers", a.closerCount())

		a.stopCapture()
		if a.cancel != nil {
			a.cancel()
		}
		if a.group != nil {
			done := make(chan struct{})
			go func() {
				_ = a.group.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				slog.Warn("app: loop did not stop before deadline")
			}
		}

		shutdownErr = a.runClosers(ctx)
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

// breakerStates is implemented by the resilience fallback wrappers.
type breakerStates interface {
	States() map[string]resilience.State
}

var (
	_ breakerStates = (*resilience.STTFallback)(nil)
	_ breakerStates = (*resilience.LLMFallback)(nil)
	_ breakerStates = (*resilience.TTSFallback)(nil)
)

// Details reports loop state and provider breaker states for /status.
func (a *App) Details() map[string]string {
	out := map[string]string{
		"state":          a.State().String(),
		"source":         a.providers.Source.Name(),
		"dropped_frames": fmt.Sprint(a.seg.Dropped()),
	}
	switch {
	case a.guard == nil:
		out["memory"] = "disabled"
	case a.guard.IsDegraded():
		out["memory"] = "degraded"
	default:
		out["memory"] = "ok"
	}
	slots := map[string]any{"stt": a.providers.STT, "llm": a.providers.LLM, "tts": a.providers.TTS}
	for slot, p := range slots {
		sp, ok := p.(breakerStates)
		if !ok {
			continue
		}
		for name, st := range sp.States() {
			out["breaker."+slot+"."+name] = st.String()
		}
	}
	return out
}

// ─── Start helpers ──────────────────────────────────────────────────────────

func (a *App) initMemory(ctx context.Context) error {
	if a.store == nil {
		dsn := a.cfg.Memory.PostgresDSN
		if dsn == "" {
			slog.Info("app: turn log disabled")
			return nil
		}
		store, err := postgres.NewStore(ctx, dsn, a.cfg.Memory.EmbeddingDimensions)
		if err != nil {
			return err
		}
		a.store = store
		a.addCloser(func() error {
			store.Close()
			return nil
		})
	}

	a.guard = memory.NewGuard(a.store)
	var opts []memory.JournalOption
	if a.providers.Embeddings != nil {
		opts = append(opts, memory.WithRecall(a.guard, a.providers.Embeddings))
	}
	j, err := memory.NewJournal(a.guard, opts...)
	if err != nil {
		return err
	}
	a.journal = j
	slog.Info("app: turn log enabled", "recall", j.RecallEnabled())
	return nil
}

// initMCP registers every configured server under ctx. stdio servers are
// subprocesses of ctx and die with it.
func (a *App) initMCP(ctx context.Context) error {
	if a.mcpHost == nil {
		if len(a.cfg.MCP.Servers) == 0 {
			return nil
		}
		a.mcpHost = mcphost.New()
	}
	a.addCloser(a.mcpHost.Close)

	if h, ok := a.mcpHost.(*mcphost.Host); ok && a.journal != nil {
		if err := h.RegisterBuiltin(recentTurns(a.journal)); err != nil {
			return err
		}
	}

	for _, srv := range a.cfg.MCP.Servers {
		if err := a.mcpHost.RegisterServer(ctx, srv.ServerConfig()); err != nil {
			return fmt.Errorf("register mcp server %q: %w", srv.Name, err)
		}
		slog.Info("app: registered MCP server", "name", srv.Name, "transport", srv.Transport)
	}
	return nil
}

func (a *App) initActions() error {
	if a.handlers == nil {
		h, err := a.buildHandlers()
		if err != nil {
			return err
		}
		a.handlers = &h
	}
	a.dispatcher = action.NewDispatcher(*a.handlers)
	return nil
}

func (a *App) buildHandlers() (action.Handlers, error) {
	var (
		h   action.Handlers
		act = a.cfg.Actions
		p   = a.providers.LLM
	)

	if act.AnswerQuestion.IsEnabled() {
		opts := []action.AnswerOption{
			action.WithInstructions(act.AnswerQuestion.Instructions),
			action.WithAnswerMaxTokens(act.AnswerQuestion.MaxTokens),
		}
		if a.journal != nil && a.journal.RecallEnabled() && act.AnswerQuestion.RecallTopK > 0 {
			opts = append(opts, action.WithRecall(a.journal, act.AnswerQuestion.RecallTopK))
		}
		answer, err := action.NewAnswerHandler(p, opts...)
		if err != nil {
			return h, err
		}
		h.AnswerQuestion = answer
	}

	needsHost := act.LightControl.IsEnabled() || act.MusicControl.IsEnabled() || act.GetWeather.IsEnabled()
	if !needsHost {
		return h, nil
	}
	if a.mcpHost == nil {
		return h, errors.New("tool actions are enabled but no MCP host is configured")
	}
	host := meteredHost{Host: a.mcpHost, metrics: a.metrics}

	if act.LightControl.IsEnabled() {
		lights, err := action.NewLightsHandler(p, host, act.LightControl.Tool, act.LightControl.Rooms)
		if err != nil {
			return h, err
		}
		h.LightControl = lights
	}
	if act.MusicControl.IsEnabled() {
		music, err := action.NewMusicHandler(p, host, act.MusicControl.Tool, act.MusicControl.Devices, act.MusicControl.DefaultDevice)
		if err != nil {
			return h, err
		}
		h.MusicControl = music
	}
	if act.GetWeather.IsEnabled() {
		weather, err := action.NewWeatherHandler(p, host, act.GetWeather.Tool, act.GetWeather.Location)
		if err != nil {
			return h, err
		}
		h.GetWeather = weather
	}
	return h, nil
}

func (a *App) initSink() error {
	if a.sink != nil {
		return nil
	}
	opts := []playback.Option{
		playback.WithSpeakHook(func(ctx context.Context, d time.Duration) {
			observe.Logger(ctx).Debug("app: spoke", "audio", d)
		}),
	}
	if a.cfg.Playback.Player != "" {
		opts = append(opts, playback.WithPlayer(a.cfg.Playback.Player))
	}
	s, err := playback.New(a.providers.TTS, opts...)
	if err != nil {
		return err
	}
	a.sink = s
	return nil
}

func (a *App) initCapture(ctx context.Context) error {
	var session vad.SessionHandle
	if a.providers.VAD != nil {
		s, err := a.providers.VAD.NewSession(vad.Config{
			SampleRate:  a.cfg.Audio.SampleRate,
			FrameSizeMs: a.cfg.Audio.FrameMs,
		})
		if err != nil {
			return fmt.Errorf("vad session: %w", err)
		}
		session = s
		a.addCloser(s.Close)
	}

	g := newGate(
		audio.Format{SampleRate: a.cfg.Audio.SampleRate, Channels: 1},
		session,
		framesFor(a.cfg.Audio.PreRoll, a.cfg.Audio.FrameMs),
		a.seg.Push,
	)
	capture, err := a.providers.Source.Start(ctx, g.onFrame)
	if err != nil {
		return fmt.Errorf("start %s: %w", a.providers.Source.Name(), err)
	}
	a.captureMu.Lock()
	a.capture = capture
	a.captureMu.Unlock()
	return nil
}

// ─── Teardown helpers ───────────────────────────────────────────────────────

func (a *App) stopCapture() {
	a.captureMu.Lock()
	c := a.capture
	a.capture = nil
	a.captureMu.Unlock()
	if c == nil {
		return
	}
	if err := c.Stop(); err != nil {
		slog.Warn("app: stop capture", "err", err)
	}
}

func (a *App) addCloser(fn func() error) {
	a.closersMu.Lock()
	a.closers = append(a.closers, fn)
	a.closersMu.Unlock()
}

func (a *App) closerCount() int {
	a.closersMu.Lock()
	defer a.closersMu.Unlock()
	return len(a.closers)
}

// runClosers runs and forgets every registered closer, stopping early if
// ctx expires.
func (a *App) runClosers(ctx context.Context) error {
	a.closersMu.Lock()
	closers := a.closers
	a.closers = nil
	a.closersMu.Unlock()

	for i, closer := range closers {
		select {
		case <-ctx.Done():
			slog.Warn("app: shutdown deadline exceeded", "remaining", len(closers)-i)
			return ctx.Err()
		default:
		}
		if err := closer(); err != nil {
			slog.Warn("app: closer error", "index", i, "err", err)
		}
	}
	return nil
}
