package audio

import (
	"math"
	"strings"
	"testing"
	"time"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

// --- Conversions ---

func TestSamplesToInt16Clips(t *testing.T) {
	in := []float32{0, 0.5, 1.5, -1.5}
	out := make([]int16, len(in))
	SamplesToInt16(in, out)
	if out[0] != 0 {
		t.Errorf("out[0] = %d, want 0", out[0])
	}
	if out[2] != 32767 {
		t.Errorf("over-range sample should clip to 32767, got %d", out[2])
	}
	if out[3] != -32768 {
		t.Errorf("under-range sample should clip to -32768, got %d", out[3])
	}
}

func TestSecondsSamplePosInverse(t *testing.T) {
	for _, sec := range []float64{0, 0.5, 1, 12.34} {
		if got := Seconds(SamplePos(sec)); math.Abs(got-sec) > 1e-4 {
			t.Errorf("Seconds(SamplePos(%v)) = %v", sec, got)
		}
	}
}

// --- Peak envelope ---

func TestPeakEnvelopeSize(t *testing.T) {
	samples := make([]float32, SampleRate*4)
	env := PeakEnvelope(samples, WaveformBuckets)
	if len(env) != WaveformBuckets {
		t.Fatalf("envelope length = %d, want %d", len(env), WaveformBuckets)
	}
}

func TestPeakEnvelopeFindsPeak(t *testing.T) {
	samples := make([]float32, 5120)
	samples[100] = -0.9 // negative peaks count too
	env := PeakEnvelope(samples, 512)
	if env[10] != 0.9 {
		t.Errorf("bucket 10 peak = %v, want 0.9", env[10])
	}
}

// --- RMS ---

func TestRMSConstantSignal(t *testing.T) {
	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = 0.5
	}
	if got := RMS(samples); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("RMS = %v, want 0.5", got)
	}
}

func TestRMSEmpty(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
}

// --- Mock analysis ---

func TestMockAnalysisDeterministic(t *testing.T) {
	samples := []float32{0.1, -0.2, 0.3, -0.4, 0.5}
	a := Analyze(samples, "test track")
	b := Analyze(samples, "test track")
	if a.Key != b.Key || a.BPM != b.BPM || a.Genre != b.Genre || a.Energy != b.Energy {
		t.Errorf("analysis not deterministic: %+v vs %+v", a, b)
	}
}

func TestMockKeyIsCamelot(t *testing.T) {
	key := MockKey([]float32{0.25, -0.5}, "some song")
	if !strings.HasSuffix(key, "A") && !strings.HasSuffix(key, "B") {
		t.Errorf("key %q missing Camelot letter", key)
	}
}

func TestMockBPMRange(t *testing.T) {
	for _, name := range []string{"a", "b", "c", "dee", "eff"} {
		bpm := MockBPM(nil, name)
		if bpm < 70 || bpm >= 180 {
			t.Errorf("MockBPM(%q) = %v, outside [70, 180)", name, bpm)
		}
	}
}

func TestMockEnergyRange(t *testing.T) {
	for _, name := range []string{"w", "x", "y", "z"} {
		e := MockEnergy(nil, name)
		if e < 1 || e > 10 {
			t.Errorf("MockEnergy(%q) = %d, outside [1, 10]", name, e)
		}
	}
}
