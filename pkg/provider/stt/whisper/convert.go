package whisper

import (
	"encoding/binary"

	"github.com/MrWong99/hemma/pkg/audio"
)

// pcmToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to the range [-1.0, 1.0]. A trailing odd byte is ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return samples
}

// monoSamples prepares a phrase for whisper.cpp, which only accepts mono
// float32 at its native rate.
func monoSamples(pcm []byte, sampleRate, channels int) []float32 {
	if channels > 1 {
		pcm = audio.DownmixToMono(pcm, channels)
	}
	if sampleRate != modelSampleRate {
		pcm = audio.ResampleMono16(pcm, sampleRate, modelSampleRate)
	}
	return pcmToFloat32(pcm)
}
