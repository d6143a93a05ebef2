package metronome

import (
	"math"

	"github.com/spindeck/spindeck/internal/audio"
)

// Click synthesizes one click as an interleaved stereo buffer. Accented
// clicks (the downbeat) are pitched up and slightly louder. All three
// timbres are procedural; there are no sample assets.
func Click(t Timbre, accent bool, level float64) []float32 {
	switch t {
	case TimbreWood:
		return woodClick(accent, level)
	case TimbreClick:
		return shortClick(accent, level)
	default:
		return beepClick(accent, level)
	}
}

// beepClick is a decaying sine burst, 880 Hz (1320 Hz accented).
func beepClick(accent bool, level float64) []float32 {
	freq := 880.0
	gain := 0.5 * level
	if accent {
		freq = 1320
		gain = 0.7 * level
	}
	n := int(0.03 * audio.SampleRate)
	buf := make([]float32, n*audio.Channels)
	for i := 0; i < n; i++ {
		ts := float64(i) / audio.SampleRate
		env := math.Exp(-ts * 120)
		s := float32(gain * env * math.Sin(2*math.Pi*freq*ts))
		buf[i*audio.Channels] = s
		buf[i*audio.Channels+1] = s
	}
	return buf
}

// woodClick fakes a woodblock: a fast-decaying sine whose pitch drops over
// the first few milliseconds.
func woodClick(accent bool, level float64) []float32 {
	base := 1600.0
	gain := 0.6 * level
	if accent {
		base = 2100
		gain = 0.8 * level
	}
	n := int(0.025 * audio.SampleRate)
	buf := make([]float32, n*audio.Channels)
	phase := 0.0
	for i := 0; i < n; i++ {
		ts := float64(i) / audio.SampleRate
		env := math.Exp(-ts * 220)
		freq := base * (1 - 0.4*ts/0.025)
		phase += 2 * math.Pi * freq / audio.SampleRate
		s := float32(gain * env * math.Sin(phase))
		buf[i*audio.Channels] = s
		buf[i*audio.Channels+1] = s
	}
	return buf
}

// shortClick is a near-impulse: a couple of milliseconds of hard-decayed
// noise, brighter when accented.
func shortClick(accent bool, level float64) []float32 {
	gain := 0.5 * level
	decay := 2500.0
	if accent {
		gain = 0.7 * level
		decay = 1800
	}
	n := int(0.004 * audio.SampleRate)
	buf := make([]float32, n*audio.Channels)
	seed := uint32(0x9e3779b9)
	for i := 0; i < n; i++ {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		noise := float64(int32(seed)) / math.MaxInt32
		ts := float64(i) / audio.SampleRate
		s := float32(gain * math.Exp(-ts*decay) * noise)
		buf[i*audio.Channels] = s
		buf[i*audio.Channels+1] = s
	}
	return buf
}
