// Package segment turns a live stream of audio frames into phrases.
//
// A [Segmenter] sits between the capture goroutine (the only producer, via
// [Segmenter.Push]) and the voice loop (the only consumer, via
// [Segmenter.Next] or [Segmenter.Poll]). Frames travel through a buffered
// channel; the phrase buffer itself is touched only by the consumer.
//
// A phrase is flushed when no frame has arrived for the phrase timeout. The
// check runs on every poll, so a speaker who simply stops talking still gets
// a flush without any further frames. When the consumer was busy (for
// example transcribing) and drains a backlog, a gap of at least the timeout
// between two queued frames still splits them into separate phrases.
package segment

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/MrWong99/hemma/pkg/audio"
)

const (
	// DefaultPhraseTimeout is the silence after which a phrase is complete.
	DefaultPhraseTimeout = 3 * time.Second

	// MaxPollInterval bounds how long Next sleeps between timeout checks and
	// therefore how quickly a cancelled context is observed.
	MaxPollInterval = 250 * time.Millisecond

	// DefaultQueueSize holds about 40s of 20ms frames.
	DefaultQueueSize = 2048
)

// Config holds the segmentation parameters.
type Config struct {
	// PhraseTimeout is the inactivity that closes a phrase. Zero means
	// [DefaultPhraseTimeout].
	PhraseTimeout time.Duration

	// PollInterval is the longest Next waits between checks. Zero or values
	// above [MaxPollInterval] are clamped to MaxPollInterval.
	PollInterval time.Duration

	// MaxPhrase forces a flush once a phrase holds this much audio. Zero
	// disables the limit.
	MaxPhrase time.Duration

	// QueueSize is the frame channel capacity. Zero means [DefaultQueueSize].
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.PhraseTimeout == 0 {
		c.PhraseTimeout = DefaultPhraseTimeout
	}
	if c.PollInterval <= 0 || c.PollInterval > MaxPollInterval {
		c.PollInterval = MaxPollInterval
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.PhraseTimeout < 0 {
		errs = append(errs, errors.New("segment: phrase timeout must not be negative"))
	}
	if c.MaxPhrase < 0 {
		errs = append(errs, errors.New("segment: max phrase must not be negative"))
	}
	if c.QueueSize < 0 {
		errs = append(errs, errors.New("segment: queue size must not be negative"))
	}
	return errors.Join(errs...)
}

// Phrase is a closed run of contiguous frames.
type Phrase struct {
	PCM        []byte
	SampleRate int
	Channels   int

	// Frames is the number of frames appended.
	Frames int

	// FirstAt and LastAt are the arrival times of the first and last frame.
	FirstAt time.Time
	LastAt  time.Time
}

// Empty reports whether the phrase holds no frames.
func (p Phrase) Empty() bool { return p.Frames == 0 }

// Duration returns the amount of audio in the phrase.
func (p Phrase) Duration() time.Duration {
	return audio.PCMDuration(len(p.PCM), p.SampleRate, p.Channels)
}

// Option configures a [Segmenter].
type Option func(*Segmenter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Segmenter) { s.now = now }
}

// WithDropHook registers fn to be called from Push for every frame dropped
// because the queue was full. fn runs on the producer goroutine and must not
// block.
func WithDropHook(fn func(audio.AudioFrame)) Option {
	return func(s *Segmenter) { s.onDrop = fn }
}

// Segmenter accumulates frames into phrases. Push may be called from one
// producer goroutine; every other method belongs to the consumer.
type Segmenter struct {
	cfg    Config
	queue  chan audio.AudioFrame
	now    func() time.Time
	onDrop func(audio.AudioFrame)

	dropped atomic.Int64

	// Consumer-owned state.
	buf   Phrase
	ready []Phrase
}

// New returns a Segmenter for cfg.
func New(cfg Config, opts ...Option) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	s := &Segmenter{
		cfg:   cfg,
		queue: make(chan audio.AudioFrame, cfg.QueueSize),
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Segmenter) Config() Config { return s.cfg }

// Push enqueues frame without blocking. ArrivedAt is stamped unless the
// caller already set it. It returns false when the queue is full; the frame
// is then dropped and counted.
func (s *Segmenter) Push(frame audio.AudioFrame) bool {
	if frame.ArrivedAt.IsZero() {
		frame.ArrivedAt = s.now()
	}
	select {
	case s.queue <- frame:
		return true
	default:
		s.dropped.Add(1)
		if s.onDrop != nil {
			s.onDrop(frame)
		}
		return false
	}
}

// Dropped returns how many frames Push has discarded.
func (s *Segmenter) Dropped() int64 { return s.dropped.Load() }

// Queued returns the number of frames waiting in the queue.
func (s *Segmenter) Queued() int { return len(s.queue) }

// Buffered returns the bytes held by the consumer: the open phrase plus any
// closed phrases not yet returned.
func (s *Segmenter) Buffered() int {
	n := len(s.buf.PCM)
	for _, p := range s.ready {
		n += len(p.PCM)
	}
	return n
}

// Poll drains the queue into the phrase buffer and returns a phrase if one
// is complete. Polling with nothing buffered is a no-op.
func (s *Segmenter) Poll() (Phrase, bool) {
	s.drain()
	if len(s.ready) > 0 {
		return s.pop(), true
	}
	if !s.buf.Empty() && s.now().Sub(s.buf.LastAt) >= s.cfg.PhraseTimeout {
		return s.swap(), true
	}
	return Phrase{}, false
}

// Next blocks until a phrase is complete or ctx is done.
func (s *Segmenter) Next(ctx context.Context) (Phrase, error) {
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	for {
		if p, ok := s.Poll(); ok {
			return p, nil
		}

		wait := s.cfg.PollInterval
		if !s.buf.Empty() {
			remaining := s.cfg.PhraseTimeout - s.now().Sub(s.buf.LastAt)
			wait = min(wait, max(remaining, time.Millisecond))
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return Phrase{}, ctx.Err()
		case f := <-s.queue:
			s.ingest(f)
		case <-timer.C:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

func (s *Segmenter) drain() {
	for {
		select {
		case f := <-s.queue:
			s.ingest(f)
		default:
			return
		}
	}
}

// ingest appends f to the buffer, closing the buffer first when f starts a
// new phrase (gap or format change) and afterwards when it is full.
func (s *Segmenter) ingest(f audio.AudioFrame) {
	if len(f.Data) == 0 {
		return
	}
	if !s.buf.Empty() {
		gap := f.ArrivedAt.Sub(s.buf.LastAt) >= s.cfg.PhraseTimeout
		format := f.SampleRate != s.buf.SampleRate || f.Channels != s.buf.Channels
		if gap || format {
			s.ready = append(s.ready, s.swap())
		}
	}
	if s.buf.Empty() {
		s.buf.SampleRate = f.SampleRate
		s.buf.Channels = f.Channels
		s.buf.FirstAt = f.ArrivedAt
	}
	s.buf.PCM = append(s.buf.PCM, f.Data...)
	s.buf.Frames++
	s.buf.LastAt = f.ArrivedAt

	if s.cfg.MaxPhrase > 0 && s.buf.Duration() >= s.cfg.MaxPhrase {
		s.ready = append(s.ready, s.swap())
	}
}

// swap hands out the open buffer and starts an empty one.
func (s *Segmenter) swap() Phrase {
	p := s.buf
	s.buf = Phrase{}
	return p
}

func (s *Segmenter) pop() Phrase {
	p := s.ready[0]
	s.ready[0] = Phrase{}
	s.ready = s.ready[1:]
	return p
}
