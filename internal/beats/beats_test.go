package beats

import (
	"testing"

	"github.com/spindeck/spindeck/internal/audio"
	"github.com/spindeck/spindeck/internal/store"
	"go.uber.org/zap"
)

func testBank(t *testing.T) (*Bank, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return NewBank(st, zap.NewNop()), st
}

func TestFreshBankIsThreeEmptyCategories(t *testing.T) {
	b, _ := testBank(t)
	kit := b.Kit()
	if len(kit) != len(Categories) {
		t.Fatalf("kit has %d categories, want %d", len(kit), len(Categories))
	}
	for _, c := range Categories {
		pads, ok := kit[c]
		if !ok {
			t.Fatalf("category %q missing", c)
		}
		if len(pads) != PadsPerCategory {
			t.Fatalf("category %q has %d slots, want %d", c, len(pads), PadsPerCategory)
		}
		for i, p := range pads {
			if !p.Empty() {
				t.Errorf("fresh pad %s-%d not empty", c, i)
			}
		}
	}
}

func TestKitRoundTrip(t *testing.T) {
	b, st := testBank(t)
	if err := b.SetPad("drums", 3, Pad{Label: "Boom", Sound: "kick", Gain: 0.9}); err != nil {
		t.Fatal(err)
	}
	// Render the buffer so the non-storable field is populated before save.
	if buf := b.Trigger("drums", 3); buf == nil {
		t.Fatal("trigger returned nothing")
	}
	b.Save()

	restored := NewBank(st, zap.NewNop())
	p, ok := restored.Pad("drums", 3)
	if !ok || p.Label != "Boom" || p.Sound != "kick" || p.Gain != 0.9 {
		t.Errorf("restored pad = %+v", p)
	}
	if p.buffer != nil {
		t.Error("rendered buffer survived persistence")
	}
	for _, c := range []string{"percussion", "samples"} {
		for i := 0; i < PadsPerCategory; i++ {
			if p, _ := restored.Pad(c, i); !p.Empty() {
				t.Errorf("pad %s-%d not empty after round trip", c, i)
			}
		}
	}
}

func TestSaveDropsClearedPads(t *testing.T) {
	b, st := testBank(t)
	b.SetPad("drums", 0, Pad{Sound: "kick"})
	b.SetPad("drums", 1, Pad{Sound: "snare"})
	b.ClearPad("drums", 0)

	restored := NewBank(st, zap.NewNop())
	if p, _ := restored.Pad("drums", 0); !p.Empty() {
		t.Error("cleared pad reappeared after reload")
	}
	if p, _ := restored.Pad("drums", 1); p.Sound != "snare" {
		t.Error("surviving pad lost")
	}
}

func TestLoadDropsGarbageKeys(t *testing.T) {
	st, err := store.Open(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	st.Save("beatkit", map[string]Pad{
		"drums-2":    {Sound: "kick"},
		"unknown-1":  {Sound: "snare"},
		"drums-99":   {Sound: "clap"},
		"nodashhere": {Sound: "laser"},
	})
	b := NewBank(st, zap.NewNop())
	if p, _ := b.Pad("drums", 2); p.Sound != "kick" {
		t.Error("valid entry dropped")
	}
	for _, pads := range b.Kit() {
		populated := 0
		for _, p := range pads {
			if !p.Empty() {
				populated++
			}
		}
		if populated > 1 {
			t.Error("garbage keys leaked into the kit")
		}
	}
}

func TestSetPadRejectsBadSlot(t *testing.T) {
	b, _ := testBank(t)
	if err := b.SetPad("nope", 0, Pad{Sound: "kick"}); err == nil {
		t.Error("unknown category accepted")
	}
	if err := b.SetPad("drums", PadsPerCategory, Pad{Sound: "kick"}); err == nil {
		t.Error("out-of-range index accepted")
	}
}

func TestTriggerUnknownSound(t *testing.T) {
	b, _ := testBank(t)
	b.SetPad("drums", 0, Pad{Sound: "theremin"})
	if buf := b.Trigger("drums", 0); buf != nil {
		t.Error("unknown sound produced a buffer")
	}
}

func TestTriggerCachesBuffer(t *testing.T) {
	b, _ := testBank(t)
	b.SetPad("samples", 5, Pad{Sound: "horn"})
	first := b.Trigger("samples", 5)
	second := b.Trigger("samples", 5)
	if len(first) == 0 {
		t.Fatal("no buffer rendered")
	}
	if &first[0] != &second[0] {
		t.Error("buffer re-rendered on every trigger")
	}
}

func TestSynthesizeAllPatches(t *testing.T) {
	for _, name := range Sounds() {
		buf := Synthesize(name)
		if len(buf) == 0 || len(buf)%audio.Channels != 0 {
			t.Fatalf("%s: bad buffer length %d", name, len(buf))
		}
		var peak float32
		for _, s := range buf {
			if s > 1 || s < -1 {
				t.Fatalf("%s: sample %v out of range", name, s)
			}
			if s > peak {
				peak = s
			}
		}
		if peak == 0 {
			t.Errorf("%s: silent patch", name)
		}
	}
	if Synthesize("nope") != nil {
		t.Error("unknown patch produced a buffer")
	}
}
