package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

func putSamples(vals ...int16) []byte {
	b := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func TestPcmToFloat32(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value int16
		want  float32
	}{
		{"max positive", 32767, 32767.0 / 32768.0},
		{"max negative", -32768, -1.0},
		{"zero", 0, 0.0},
		{"mid negative", -16384, -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := pcmToFloat32(putSamples(tt.value))
			if len(out) != 1 {
				t.Fatalf("got %d samples, want 1", len(out))
			}
			if math.Abs(float64(out[0]-tt.want)) > 1e-6 {
				t.Errorf("pcmToFloat32(%d) = %f, want %f", tt.value, out[0], tt.want)
			}
		})
	}
}

func TestPcmToFloat32_OddByteCount(t *testing.T) {
	t.Parallel()

	pcm := append(putSamples(100, 200), 0xff)
	if got := len(pcmToFloat32(pcm)); got != 2 {
		t.Errorf("got %d samples, want 2", got)
	}
}

func TestMonoSamples(t *testing.T) {
	t.Parallel()

	t.Run("stereo downmix", func(t *testing.T) {
		t.Parallel()
		out := monoSamples(putSamples(16384, -16384, 8192, 8192), modelSampleRate, 2)
		if len(out) != 2 {
			t.Fatalf("got %d samples, want 2", len(out))
		}
		if out[0] != 0 {
			t.Errorf("sample 0 = %f, want 0", out[0])
		}
		if math.Abs(float64(out[1]-0.25)) > 1e-6 {
			t.Errorf("sample 1 = %f, want 0.25", out[1])
		}
	})

	t.Run("resample to model rate", func(t *testing.T) {
		t.Parallel()
		pcm := make([]byte, 480*2) // 10ms at 48 kHz
		if got := len(monoSamples(pcm, 48000, 1)); got != 160 {
			t.Errorf("got %d samples, want 160", got)
		}
	})
}
