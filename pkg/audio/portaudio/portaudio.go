// Package portaudio provides an [audio.Source] backed by the PortAudio C
// library. The portaudio shared library and headers must be available at
// build time (e.g., libportaudio2 + portaudio19-dev on Debian).
package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/hemma/pkg/audio"
)

const (
	defaultSampleRate = 16000
	defaultChannels   = 1
	defaultFrameMs    = 20
)

// Compile-time assertion that Source implements audio.Source.
var _ audio.Source = (*Source)(nil)

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithSampleRate sets the capture sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(s *Source) { s.sampleRate = rate }
}

// WithChannels sets the number of input channels. Defaults to 1.
func WithChannels(ch int) Option {
	return func(s *Source) { s.channels = ch }
}

// WithFrameDuration sets the length of each delivered frame in milliseconds.
// Defaults to 20.
func WithFrameDuration(ms int) Option {
	return func(s *Source) { s.frameMs = ms }
}

// WithDevice selects an input device by (case-insensitive substring of) its
// name. An empty name uses the system default input.
func WithDevice(name string) Option {
	return func(s *Source) { s.device = name }
}

// Source captures 16-bit PCM from a local input device.
type Source struct {
	sampleRate int
	channels   int
	frameMs    int
	device     string

	// paMu serialises Initialize/Terminate pairs across captures.
	paMu sync.Mutex
}

// New creates a Source. No device is opened until Start.
func New(opts ...Option) (*Source, error) {
	s := &Source{
		sampleRate: defaultSampleRate,
		channels:   defaultChannels,
		frameMs:    defaultFrameMs,
	}
	for _, o := range opts {
		o(s)
	}
	if s.sampleRate <= 0 {
		return nil, fmt.Errorf("portaudio: invalid sample rate %d", s.sampleRate)
	}
	if s.channels <= 0 {
		return nil, fmt.Errorf("portaudio: invalid channel count %d", s.channels)
	}
	if s.frameMs <= 0 {
		return nil, fmt.Errorf("portaudio: invalid frame duration %dms", s.frameMs)
	}
	return s, nil
}

// Name implements [audio.Source].
func (s *Source) Name() string {
	if s.device == "" {
		return "portaudio:default"
	}
	return "portaudio:" + s.device
}

// Start implements [audio.Source]. It opens a blocking-read input stream and
// runs the read loop on its own goroutine.
func (s *Source) Start(ctx context.Context, onFrame func(audio.AudioFrame)) (audio.Capture, error) {
	if onFrame == nil {
		return nil, errors.New("portaudio: nil frame callback")
	}

	s.paMu.Lock()
	if err := pa.Initialize(); err != nil {
		s.paMu.Unlock()
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	s.paMu.Unlock()

	framesPerBuffer := s.sampleRate * s.frameMs / 1000
	buf := make([]int16, framesPerBuffer*s.channels)

	stream, err := s.openStream(framesPerBuffer, buf)
	if err != nil {
		s.terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		s.terminate()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}

	c := &capture{
		src:    s,
		stream: stream,
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop(ctx, buf, onFrame)

	slog.Info("portaudio: capture started",
		"device", s.Name(),
		"sampleRate", s.sampleRate,
		"channels", s.channels,
		"frameMs", s.frameMs,
	)
	return c, nil
}

func (s *Source) openStream(framesPerBuffer int, buf []int16) (*pa.Stream, error) {
	if s.device == "" {
		stream, err := pa.OpenDefaultStream(s.channels, 0, float64(s.sampleRate), framesPerBuffer, buf)
		if err != nil {
			return nil, fmt.Errorf("portaudio: open default stream: %w", err)
		}
		return stream, nil
	}

	dev, err := findInputDevice(s.device)
	if err != nil {
		return nil, err
	}
	params := pa.LowLatencyParameters(dev, nil)
	params.Input.Channels = s.channels
	params.SampleRate = float64(s.sampleRate)
	params.FramesPerBuffer = framesPerBuffer

	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open stream on %q: %w", dev.Name, err)
	}
	return stream, nil
}

func (s *Source) terminate() {
	s.paMu.Lock()
	defer s.paMu.Unlock()
	if err := pa.Terminate(); err != nil {
		slog.Warn("portaudio: terminate failed", "err", err)
	}
}

// findInputDevice returns the first input-capable device whose name contains
// name (case-insensitive).
func findInputDevice(name string) (*pa.DeviceInfo, error) {
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	want := strings.ToLower(name)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("portaudio: no input device matching %q", name)
}

// capture is a running PortAudio input stream. It implements audio.Capture.
type capture struct {
	src    *Source
	stream *pa.Stream

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	err  error
}

// readLoop blocks on stream reads and forwards every buffer as an AudioFrame.
// It exits when the capture is stopped or ctx is cancelled.
func (c *capture) readLoop(ctx context.Context, buf []int16, onFrame func(audio.AudioFrame)) {
	defer c.wg.Done()

	var elapsed time.Duration
	frameDur := time.Duration(c.src.frameMs) * time.Millisecond

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			if errors.Is(err, pa.InputOverflowed) {
				slog.Debug("portaudio: input overflowed")
				continue
			}
			slog.Error("portaudio: read failed, ending capture", "err", err)
			return
		}

		data := make([]byte, len(buf)*2)
		for i, v := range buf {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
		}
		onFrame(audio.AudioFrame{
			Data:       data,
			SampleRate: c.src.sampleRate,
			Channels:   c.src.channels,
			Timestamp:  elapsed,
		})
		elapsed += frameDur
	}
}

// Stop implements [audio.Capture]. It waits for the in-flight read to return
// before closing the stream.
func (c *capture) Stop() error {
	c.once.Do(func() {
		close(c.done)
		c.wg.Wait()
		var errs []error
		if err := c.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: stop stream: %w", err))
		}
		if err := c.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
		}
		c.src.terminate()
		c.err = errors.Join(errs...)
		slog.Info("portaudio: capture stopped", "device", c.src.Name())
	})
	return c.err
}
