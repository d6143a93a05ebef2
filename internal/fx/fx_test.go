package fx

import (
	"math"
	"testing"

	"github.com/spindeck/spindeck/internal/audio"
)

// --- normalized mapping ---

func TestLinMapping(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float64
	}{
		{0, 10, 20, 10},
		{100, 10, 20, 20},
		{50, 0, 1, 0.5},
		{-5, 0, 1, 0},  // clamped
		{150, 0, 1, 1}, // clamped
	}
	for _, tt := range tests {
		if got := lin(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("lin(%v, %v, %v) = %v, want %v", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}

func TestLogMapEndpointsAndMidpoint(t *testing.T) {
	if got := logMap(0, 100, 10000); got != 100 {
		t.Errorf("logMap(0) = %v, want 100", got)
	}
	if got := logMap(100, 100, 10000); math.Abs(got-10000) > 1e-6 {
		t.Errorf("logMap(100) = %v, want 10000", got)
	}
	// Log spacing: halfway in knob travel is the geometric mean.
	if got := logMap(50, 100, 10000); math.Abs(got-1000) > 1e-6 {
		t.Errorf("logMap(50) = %v, want 1000", got)
	}
}

// --- tempo derivation ---

func TestSyncedSeconds(t *testing.T) {
	// 120 BPM = 0.5s per beat; one beat division = 0.5s
	if got := syncedSeconds(120, 1); got != 0.5 {
		t.Errorf("syncedSeconds(120, 1) = %v, want 0.5", got)
	}
	// half-beat division
	if got := syncedSeconds(120, 0.5); got != 0.25 {
		t.Errorf("syncedSeconds(120, 0.5) = %v, want 0.25", got)
	}
}

func TestSyncedRate(t *testing.T) {
	// 120 BPM = 2 beats per second; division 2 halves the rate
	if got := syncedRate(120, 2); got != 1 {
		t.Errorf("syncedRate(120, 2) = %v, want 1", got)
	}
}

// --- chain ordering ---

func TestChainCanonicalOrder(t *testing.T) {
	c := NewChain()
	// Activate out of canonical order
	c.SetActive(UnitFilter, true)
	c.SetActive(UnitDelay, true)
	c.SetActive(UnitDistortion, true)

	got := c.Active()
	want := []UnitKind{UnitDelay, UnitDistortion, UnitFilter}
	if len(got) != len(want) {
		t.Fatalf("active = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("active[%d] = %v, want %v (insertion order must not be preserved)", i, got[i], want[i])
		}
	}
}

func TestChainToggle(t *testing.T) {
	c := NewChain()
	if !c.Toggle(UnitReverb) {
		t.Error("first toggle should activate")
	}
	if !c.IsActive(UnitReverb) {
		t.Error("reverb should be active")
	}
	if c.Toggle(UnitReverb) {
		t.Error("second toggle should deactivate")
	}
}

func TestInactiveChainPassesThrough(t *testing.T) {
	c := NewChain()
	buf := make([]float32, audio.FrameSamples)
	buf[0] = 0.5
	c.Process(buf)
	if buf[0] != 0.5 {
		t.Errorf("empty chain mutated the signal: %v", buf[0])
	}
}

func TestActiveUnitProducesOutput(t *testing.T) {
	c := NewChain()
	c.SetActive(UnitDistortion, true)
	c.Apply(UnitDistortion, Settings{Mix: 100, Param1: 80, Param2: 100, Division: 1})

	buf := make([]float32, audio.FrameSamples)
	for i := range buf {
		buf[i] = 0.5
	}
	c.Process(buf)
	var energy float64
	for _, s := range buf {
		energy += math.Abs(float64(s))
	}
	if energy == 0 {
		t.Error("active distortion produced silence")
	}
}

// --- presets ---

func TestPresetRoundTrip(t *testing.T) {
	c := NewChain()
	c.SetActive(UnitDelay, true)
	c.Apply(UnitDelay, Settings{Mix: 75, Param1: 30, Param2: 60, TempoSync: true, Division: 0.5})
	c.SetActive(UnitFilter, true)

	p := c.Capture("club")
	if p.Name != "club" || len(p.Units) != 2 {
		t.Fatalf("capture = %+v", p)
	}

	other := NewChain()
	other.ApplyPreset(p)
	got := other.Active()
	if len(got) != 2 || got[0] != UnitDelay || got[1] != UnitFilter {
		t.Errorf("applied preset active = %v", got)
	}
	s := other.SettingsFor(UnitDelay)
	if s.Mix != 75 || !s.TempoSync || s.Division != 0.5 {
		t.Errorf("applied delay settings = %+v", s)
	}
}

func TestApplyPresetReplacesWholeChain(t *testing.T) {
	c := NewChain()
	c.SetActive(UnitTremolo, true)
	c.ApplyPreset(Preset{Name: "empty"})
	if len(c.Active()) != 0 {
		t.Error("applying an empty preset should clear the chain")
	}
}

func TestApplyPresetSkipsUnknownUnits(t *testing.T) {
	c := NewChain()
	c.ApplyPreset(Preset{Name: "bad", Units: []PresetUnit{{Unit: "timewarp"}}})
	if len(c.Active()) != 0 {
		t.Error("unknown unit name should be skipped")
	}
}

// --- tempo sync re-application ---

func TestSetTempoReappliesSyncedUnits(t *testing.T) {
	c := NewChain()
	c.SetActive(UnitDelay, true)
	c.Apply(UnitDelay, Settings{Mix: 50, Param1: 50, Param2: 20, TempoSync: true, Division: 1})

	u := c.units[UnitDelay].(*delayUnit)
	c.SetTempo(120)
	if got := u.time.Target(); got != 0.5 {
		t.Errorf("delay time at 120 BPM = %v, want 0.5", got)
	}
	c.SetTempo(60)
	if got := u.time.Target(); got != 1 {
		t.Errorf("delay time at 60 BPM = %v, want 1", got)
	}
}
