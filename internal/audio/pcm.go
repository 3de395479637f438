// Package audio converts between raw PCM byte buffers and float samples.
// All audio entering the gateway is little-endian 16-bit signed PCM,
// mono, 16 kHz; each channel message is one chunk with no extra framing.
package audio

import "encoding/binary"

// SampleRate is the only sample rate the gateway accepts.
const SampleRate = 16000

// BytesToFloat32 decodes little-endian int16 PCM bytes into float32
// samples normalized to [-1, 1). A trailing odd byte is ignored.
func BytesToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples
}

// Float32ToBytes encodes normalized float32 samples back into
// little-endian int16 PCM bytes. Samples outside [-1, 1) are clipped.
func Float32ToBytes(samples []float32) []byte {
	pcm := make([]byte, 2*len(samples))
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(v)))
	}
	return pcm
}
