package metronome

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/spindeck/spindeck/internal/audio"
	"go.uber.org/zap"
)

type fakeClock struct{ at int64 }

func (c *fakeClock) Now() int64 { return c.at }

type recordingSink struct {
	mu     sync.Mutex
	events []int64
}

func (s *recordingSink) ScheduleSamples(at int64, buf []float32) {
	s.mu.Lock()
	s.events = append(s.events, at)
	s.mu.Unlock()
}

func (s *recordingSink) times() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.events...)
}

func testMetronome() (*Metronome, *fakeClock, *recordingSink) {
	clock := &fakeClock{}
	sink := &recordingSink{}
	return New(clock, sink, zap.NewNop()), clock, sink
}

// --- tap tempo ---

func TestTapTempoThreeEvenTaps(t *testing.T) {
	m, _, _ := testMetronome()
	start := time.Now()
	m.Tap(start)
	m.Tap(start.Add(500 * time.Millisecond))
	got := m.Tap(start.Add(1000 * time.Millisecond))
	if math.Abs(got-120) > 1 {
		t.Errorf("BPM = %v, want 120±1", got)
	}
}

func TestTapTempoGapResetsWindow(t *testing.T) {
	m, _, _ := testMetronome()
	start := time.Now()
	m.Tap(start)
	m.Tap(start.Add(500 * time.Millisecond))
	m.Tap(start.Add(1000 * time.Millisecond))

	// A tap after a long pause behaves as tap #1: the tempo is unchanged.
	before := m.BPM()
	got := m.Tap(start.Add(4 * time.Second))
	if got != before {
		t.Errorf("BPM after reset tap = %v, want unchanged %v", got, before)
	}

	// The next tap then measures against the fresh window only.
	got = m.Tap(start.Add(4*time.Second + 600*time.Millisecond))
	if math.Abs(got-100) > 1 {
		t.Errorf("BPM = %v, want 100±1 from the fresh window", got)
	}
}

func TestTapTempoClamp(t *testing.T) {
	m, _, _ := testMetronome()
	start := time.Now()
	m.Tap(start)
	if got := m.Tap(start.Add(50 * time.Millisecond)); got != maxBPM {
		t.Errorf("fast taps = %v, want clamped to %v", got, float64(maxBPM))
	}

	m2, _, _ := testMetronome()
	m2.Tap(start)
	if got := m2.Tap(start.Add(1900 * time.Millisecond)); got != minBPM {
		t.Errorf("slow taps = %v, want clamped to %v", got, float64(minBPM))
	}
}

func TestTapWindowCapped(t *testing.T) {
	m, _, _ := testMetronome()
	start := time.Now()
	for i := 0; i < 10; i++ {
		m.Tap(start.Add(time.Duration(i) * 500 * time.Millisecond))
	}
	m.mu.Lock()
	n := len(m.taps)
	m.mu.Unlock()
	if n > maxTaps {
		t.Errorf("window holds %d taps, want at most %d", n, maxTaps)
	}
}

// --- scheduling ---

func TestScheduleDueFillsHorizon(t *testing.T) {
	m, _, sink := testMetronome()
	m.SetBPM(120) // one beat every 24000 samples

	m.nextTick = 0
	m.scheduleDue(0)

	got := sink.times()
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("events = %v, want a single click at sample 0", got)
	}

	// Advancing the clock pulls the next beat into the horizon.
	sink.events = nil
	m.scheduleDue(20000)
	got = sink.times()
	if len(got) != 1 || got[0] != 24000 {
		t.Errorf("events = %v, want the next beat at 24000", got)
	}
}

func TestSubdivisionsAreScheduledBetweenBeats(t *testing.T) {
	m, _, sink := testMetronome()
	m.SetBPM(120)
	m.SetSubdivision(SubEighth) // ticks every 12000 samples

	m.nextTick = 0
	m.scheduleDue(0)
	m.scheduleDue(13000)

	got := sink.times()
	if len(got) != 2 || got[0] != 0 || got[1] != 12000 {
		t.Errorf("events = %v, want ticks at 0 and 12000", got)
	}
}

func TestBeatWrapsAtTimeSignature(t *testing.T) {
	m, _, _ := testMetronome()
	m.SetBPM(240) // 12000 samples per beat
	m.SetTimeSignature(3)

	beats := make([]int, 0, 8)
	var mu sync.Mutex
	m.OnBeat(func(b int) {
		mu.Lock()
		beats = append(beats, b)
		mu.Unlock()
	})

	m.nextTick = 0
	for now := int64(0); now < 60000; now += 4800 {
		m.scheduleDue(now)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(beats)
		mu.Unlock()
		if n >= 6 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(beats) < 6 {
		t.Fatalf("only %d beat callbacks fired", len(beats))
	}
	// The fake clock collapses the real-time deferral, so callback order is
	// not meaningful here; the wrap shows up as two full measures counted.
	counts := map[int]int{}
	for _, b := range beats[:6] {
		counts[b]++
	}
	if counts[0] != 2 || counts[1] != 2 || counts[2] != 2 {
		t.Errorf("beat distribution %v, want two of each of 0..2", counts)
	}
	m.mu.Lock()
	wrapped := m.beat
	m.mu.Unlock()
	if wrapped != 0 {
		t.Errorf("beat counter = %d after two full measures, want 0", wrapped)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	m, _, _ := testMetronome()
	m.Start()
	m.Start()
	if !m.Running() {
		t.Fatal("not running after start")
	}
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatal("still running after stop")
	}
}

// --- click synthesis ---

func TestClickBuffers(t *testing.T) {
	for _, timbre := range []Timbre{TimbreBeep, TimbreWood, TimbreClick} {
		buf := Click(timbre, false, 1)
		if len(buf) == 0 || len(buf)%audio.Channels != 0 {
			t.Fatalf("timbre %v: bad buffer length %d", timbre, len(buf))
		}
		var peak float32
		for _, s := range buf {
			if s > peak {
				peak = s
			}
			if s > 1 || s < -1 {
				t.Fatalf("timbre %v: sample %v out of range", timbre, s)
			}
		}
		if peak == 0 {
			t.Errorf("timbre %v: silent click", timbre)
		}
	}
}

func TestSubdivisionClickQuieter(t *testing.T) {
	main := Click(TimbreBeep, false, 1)
	sub := Click(TimbreBeep, false, subdivisionLevel)
	peak := func(buf []float32) float32 {
		var p float32
		for _, s := range buf {
			if s > p {
				p = s
			}
		}
		return p
	}
	if peak(sub) >= peak(main) {
		t.Error("subdivision click not quieter than the main click")
	}
}
