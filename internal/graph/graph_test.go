package graph

import (
	"math"
	"testing"
	"time"

	"github.com/spindeck/spindeck/internal/audio"
	"go.uber.org/zap"
)

// --- Smoother ---

func TestSmootherConverges(t *testing.T) {
	s := NewSmoother(15*time.Millisecond, 0)
	s.Set(1)
	var v float64
	for i := 0; i < audio.SampleRate; i++ { // 1s is far beyond 15ms tau
		v = s.Next()
	}
	if v != 1 {
		t.Errorf("smoother did not converge: %v", v)
	}
}

func TestSmootherNeverOvershoots(t *testing.T) {
	s := NewSmoother(15*time.Millisecond, 0)
	s.Set(1)
	prev := 0.0
	for i := 0; i < 4800; i++ {
		v := s.Next()
		if v < prev || v > 1 {
			t.Fatalf("smoother not monotonic in [0,1]: %v after %v", v, prev)
		}
		prev = v
	}
}

func TestSmootherConcurrentPushes(t *testing.T) {
	s := NewSmoother(15*time.Millisecond, 0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			s.Set(float64(i%2) + 1)
		}
	}()
	for i := 0; i < 2000; i++ {
		if v := s.Next(); v < 0 || v > 2 {
			t.Fatalf("smoothed value escaped [0,2]: %v", v)
		}
	}
	<-done
	s.Set(1)
	for i := 0; i < audio.SampleRate; i++ {
		s.Next()
	}
	if got := s.Current(); got != 1 {
		t.Errorf("smoother did not converge after concurrent pushes: %v", got)
	}
}

func TestSmootherSnap(t *testing.T) {
	s := NewSmoother(15*time.Millisecond, 0)
	s.Snap(0.7)
	if got := s.Next(); got != 0.7 {
		t.Errorf("after Snap, Next() = %v, want 0.7", got)
	}
}

// --- Biquad ---

func sine(freq float64, n int) []float32 {
	buf := make([]float32, n*audio.Channels)
	for i := 0; i < n; i++ {
		v := float32(math.Sin(2 * math.Pi * freq * float64(i) / audio.SampleRate))
		for c := 0; c < audio.Channels; c++ {
			buf[i*audio.Channels+c] = v
		}
	}
	return buf
}

func peak(buf []float32) float64 {
	var p float64
	for _, s := range buf {
		if v := math.Abs(float64(s)); v > p {
			p = v
		}
	}
	return p
}

func TestLowpassAttenuatesHighs(t *testing.T) {
	lp := NewBiquad(Lowpass, 500, 0.707, 0)
	low := sine(100, 4800)
	high := sine(8000, 4800)
	lp.Process(low)
	lp.Reset()
	lp.Process(high)

	// Measure steady state, skipping the filter warm-up
	if pLow := peak(low[len(low)/2:]); pLow < 0.8 {
		t.Errorf("100Hz through 500Hz lowpass attenuated to %v", pLow)
	}
	if pHigh := peak(high[len(high)/2:]); pHigh > 0.1 {
		t.Errorf("8kHz through 500Hz lowpass only attenuated to %v", pHigh)
	}
}

func TestHighpassAttenuatesLows(t *testing.T) {
	hp := NewBiquad(Highpass, 2000, 0.707, 0)
	low := sine(100, 4800)
	hp.Process(low)
	if p := peak(low[len(low)/2:]); p > 0.1 {
		t.Errorf("100Hz through 2kHz highpass only attenuated to %v", p)
	}
}

func TestShelfUnityAtZeroGain(t *testing.T) {
	sh := NewBiquad(LowShelf, 250, 0.707, 0)
	buf := sine(100, 4800)
	sh.Process(buf)
	if p := peak(buf[len(buf)/2:]); math.Abs(p-1) > 0.05 {
		t.Errorf("0dB shelf changed level: peak %v", p)
	}
}

// --- Delay ---

func TestDelayReadsBack(t *testing.T) {
	d := NewDelay(1)
	d.Write([audio.Channels]float32{0.5, 0.5})
	for i := 0; i < 99; i++ {
		d.Write([audio.Channels]float32{})
	}
	if got := d.Read(0, 100); got != 0.5 {
		t.Errorf("Read(100 samples back) = %v, want 0.5", got)
	}
}

func TestDelayInterpolates(t *testing.T) {
	d := NewDelay(1)
	d.Write([audio.Channels]float32{1, 1})
	d.Write([audio.Channels]float32{0, 0})
	got := d.Read(0, 1.5)
	if math.Abs(float64(got)-0.5) > 1e-6 {
		t.Errorf("fractional read = %v, want 0.5", got)
	}
}

// --- Tap ---

func TestTapCapturesMonoMix(t *testing.T) {
	tap := NewTap(16)
	frame := []float32{1, 0, 0.5, 0.5, -1, 1}
	tap.Process(frame)
	got := tap.Samples(3)
	want := []float32{0.5, 0.5, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSpectrumShape(t *testing.T) {
	tap := NewTap(2048)
	tap.Process(sine(1000, 1024))
	spec := tap.Spectrum()
	if len(spec) != SpectrumBands {
		t.Fatalf("spectrum has %d bands, want %d", len(spec), SpectrumBands)
	}
	// The band nearest 1kHz must dominate the extremes
	maxBand, maxVal := 0, 0.0
	for i, v := range spec {
		if v > maxVal {
			maxBand, maxVal = i, v
		}
	}
	if maxBand == 0 || maxBand == SpectrumBands-1 {
		t.Errorf("1kHz tone peaked in extreme band %d", maxBand)
	}
}

// --- Builder ---

func TestEnsureBuiltOnce(t *testing.T) {
	g := New(zap.NewNop())
	if g.Built() {
		t.Fatal("graph reports built before first use")
	}
	if !g.EnsureBuilt() {
		t.Fatal("EnsureBuilt returned false on healthy graph")
	}
	decks := g.Decks
	if !g.EnsureBuilt() {
		t.Fatal("second EnsureBuilt returned false")
	}
	if g.Decks != decks {
		t.Error("second EnsureBuilt rebuilt the deck chains")
	}
}

func TestOnBuildHookRunsOnce(t *testing.T) {
	g := New(zap.NewNop())
	calls := 0
	g.OnBuild(func() { calls++ })
	if calls != 0 {
		t.Fatal("hook ran before the graph was built")
	}
	g.EnsureBuilt()
	if calls != 1 {
		t.Fatalf("hook ran %d times after build, want 1", calls)
	}
	g.EnsureBuilt()
	if calls != 1 {
		t.Errorf("hook re-ran on repeat EnsureBuilt: %d", calls)
	}
	g.OnBuild(func() { calls++ })
	if calls != 2 {
		t.Error("hook on a built graph did not run immediately")
	}
}

func TestInertGraphRefusesBuild(t *testing.T) {
	g := New(zap.NewNop())
	g.MarkInert()
	if g.EnsureBuilt() {
		t.Error("inert graph built anyway")
	}
	if g.Built() {
		t.Error("inert graph reports built")
	}
}

func TestHeadphoneBlendEqualPower(t *testing.T) {
	g := New(zap.NewNop())
	g.EnsureBuilt()

	cue := make([]float32, audio.FrameSamples)
	master := make([]float32, audio.FrameSamples)
	out := make([]float32, audio.FrameSamples)
	for i := range cue {
		cue[i] = 1
	}

	g.HeadphoneMix.Snap(0) // full cue
	g.BlendHeadphone(cue, master, out)
	if math.Abs(float64(out[0])-1) > 1e-6 {
		t.Errorf("mix=0 should pass cue at unity, got %v", out[0])
	}

	g.HeadphoneMix.Snap(1) // full master
	g.BlendHeadphone(cue, master, out)
	if math.Abs(float64(out[0])) > 1e-6 {
		t.Errorf("mix=1 should mute cue, got %v", out[0])
	}
}
