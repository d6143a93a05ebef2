package audio

import (
	"hash/fnv"
	"math"
	"strconv"
)

// Analysis carries everything a deck derives when a track is loaded.
// Key, genre, BPM and energy are deterministic pseudo-random mock
// derivations, not real signal analysis: the same input bytes and name
// always produce the same result.
type Analysis struct {
	Waveform []float32 // 512-bucket peak envelope
	Loudness float64   // full-signal RMS
	Key      string    // Camelot notation, e.g. "8A"
	BPM      float64
	Genre    string
	Energy   int // 1-10
}

const WaveformBuckets = 512

var mockGenres = []string{
	"house", "techno", "drum and bass", "hip hop",
	"disco", "trance", "dubstep", "funk",
}

// Analyze derives the decorative waveform, the loudness estimate and the
// mock musical metadata for a decoded track.
func Analyze(samples []float32, name string) Analysis {
	return Analysis{
		Waveform: PeakEnvelope(samples, WaveformBuckets),
		Loudness: RMS(samples),
		Key:      MockKey(samples, name),
		BPM:      MockBPM(samples, name),
		Genre:    MockGenre(name),
		Energy:   MockEnergy(samples, name),
	}
}

// PeakEnvelope reduces a signal to n absolute-peak buckets for waveform
// display.
func PeakEnvelope(samples []float32, n int) []float32 {
	env := make([]float32, n)
	if len(samples) == 0 {
		return env
	}
	bucket := len(samples) / n
	if bucket == 0 {
		bucket = 1
	}
	for i := 0; i < n; i++ {
		start := i * bucket
		if start >= len(samples) {
			break
		}
		end := start + bucket
		if end > len(samples) {
			end = len(samples)
		}
		var peak float32
		for _, s := range samples[start:end] {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
		env[i] = peak
	}
	return env
}

// RMS returns the root-mean-square level over the full signal.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// mockHash mixes the display name with a sparse sampling of the signal so
// the result is stable for identical inputs but varies across tracks.
func mockHash(samples []float32, name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	if len(samples) > 0 {
		step := len(samples) / 64
		if step == 0 {
			step = 1
		}
		var b [4]byte
		for i := 0; i < len(samples); i += step {
			bits := math.Float32bits(samples[i])
			b[0] = byte(bits)
			b[1] = byte(bits >> 8)
			b[2] = byte(bits >> 16)
			b[3] = byte(bits >> 24)
			h.Write(b[:])
		}
	}
	return h.Sum64()
}

// MockKey derives a Camelot key ("1A".."12B") deterministically.
func MockKey(samples []float32, name string) string {
	h := mockHash(samples, name)
	num := int(h%12) + 1
	letter := "A"
	if (h>>8)%2 == 1 {
		letter = "B"
	}
	return camelotString(num, letter)
}

// MockBPM derives a tempo in [70, 180) deterministically.
func MockBPM(samples []float32, name string) float64 {
	h := mockHash(samples, name)
	return 70 + float64((h>>16)%110)
}

// MockGenre derives a genre tag from the display name alone, so it is
// available before the audio has decoded.
func MockGenre(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return mockGenres[int(h.Sum32())%len(mockGenres)]
}

// MockEnergy derives an energy rating in [1, 10] deterministically.
func MockEnergy(samples []float32, name string) int {
	h := mockHash(samples, name)
	return int((h>>24)%10) + 1
}

func camelotString(num int, letter string) string {
	return strconv.Itoa(num) + letter
}
