package audio

import "time"

// AudioFrame is a single buffer of 16-bit little-endian PCM captured from an
// input device. Frames are treated as immutable once handed to a consumer.
type AudioFrame struct {
	// PCM audio data.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for speech recognition).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration

	// ArrivedAt is the wall-clock arrival time including the monotonic clock
	// reading. It is stamped by the first queue the frame enters and is only
	// ever compared via Sub/Since.
	ArrivedAt time.Time
}

// Duration returns the playback length of the frame's PCM data.
// It returns 0 for frames with an invalid format.
func (f AudioFrame) Duration() time.Duration {
	return PCMDuration(len(f.Data), f.SampleRate, f.Channels)
}

// PCMDuration returns the duration of n bytes of 16-bit PCM at the given
// sample rate and channel count.
func PCMDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * 2
	return time.Duration(int64(n) * int64(time.Second) / int64(bytesPerSec))
}
