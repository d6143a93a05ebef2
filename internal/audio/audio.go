package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// SamplesToInt16 converts interleaved float32 samples in [-1, 1] to int16
// with hard clipping.
func SamplesToInt16(in []float32, out []int16) {
	for i, s := range in {
		v := s * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
}

// Int16ToSamples converts interleaved int16 PCM to float32 in [-1, 1].
func Int16ToSamples(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768
	}
	return out
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// Seconds converts a position in per-channel samples to seconds.
func Seconds(samples int) float64 {
	return float64(samples) / SampleRate
}

// SamplePos converts seconds to a per-channel sample position.
func SamplePos(seconds float64) int {
	return int(seconds * SampleRate)
}
