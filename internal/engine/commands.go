package engine

import (
	"errors"

	"github.com/spindeck/spindeck/internal/fx"
	"github.com/spindeck/spindeck/internal/graph"
	"github.com/spindeck/spindeck/internal/midi"
	"github.com/spindeck/spindeck/internal/mixer"
	"go.uber.org/zap"
)

// ErrUnknownPreset is returned when applying a preset name that was never
// saved.
var ErrUnknownPreset = errors.New("unknown preset")

// --- master ---

// SetMasterVolume sets the master gain knob (0-100, 100 = unity).
func (e *Engine) SetMasterVolume(knob float64) {
	if knob < 0 {
		knob = 0
	} else if knob > 100 {
		knob = 100
	}
	e.mu.Lock()
	e.masterVol = knob
	e.mu.Unlock()
	if e.g.Built() {
		e.g.Master.Set(knob / 100)
	}
}

// MasterVolume returns the master gain knob position.
func (e *Engine) MasterVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.masterVol
}

// SetMicLevel sets the talkover knob (0-100, 0 = muted). A no-op without a
// capture device.
func (e *Engine) SetMicLevel(knob float64) {
	if knob < 0 {
		knob = 0
	} else if knob > 100 {
		knob = 100
	}
	e.mu.Lock()
	e.micLevel = knob
	e.mu.Unlock()
}

// MicLevel returns the talkover knob position.
func (e *Engine) MicLevel() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.micLevel
}

// MicAvailable reports whether a capture device was opened.
func (e *Engine) MicAvailable() bool { return e.mic != nil }

// --- beat pads ---

// TriggerPad renders a pad's sound and schedules it on the master bus at
// the current sample position.
func (e *Engine) TriggerPad(category string, index int) bool {
	buf := e.pads.Trigger(category, index)
	if buf == nil {
		return false
	}
	e.ScheduleSamples(e.Now(), buf)
	return true
}

// --- FX focus ---

// The focused unit is the one the generic MIDI fx.* controls address; the
// console selects it when the user touches a unit's panel.

// FocusFX selects the unit addressed by the fx.* MIDI controls.
func (e *Engine) FocusFX(kind fx.UnitKind) {
	if kind < 0 || kind >= fx.NumUnits {
		return
	}
	e.mu.Lock()
	e.fxFocus = kind
	e.mu.Unlock()
}

// FocusedFX returns the unit the fx.* controls address.
func (e *Engine) FocusedFX() fx.UnitKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fxFocus
}

// --- FX presets ---

func (e *Engine) loadPresets() map[string]fx.Preset {
	presets := make(map[string]fx.Preset)
	e.st.Load(presetNamespace, &presets)
	return presets
}

// SaveFXPreset captures the current chain under a name and persists it.
func (e *Engine) SaveFXPreset(name string) {
	if name == "" {
		return
	}
	presets := e.loadPresets()
	presets[name] = e.fx.Capture(name)
	e.st.Save(presetNamespace, presets)
	e.log.Info("fx preset saved", zap.String("name", name))
}

// ApplyFXPreset replaces the chain with a saved preset.
func (e *Engine) ApplyFXPreset(name string) error {
	presets := e.loadPresets()
	p, ok := presets[name]
	if !ok {
		return ErrUnknownPreset
	}
	e.fx.ApplyPreset(p)
	return nil
}

// DeleteFXPreset removes a saved preset.
func (e *Engine) DeleteFXPreset(name string) {
	presets := e.loadPresets()
	if _, ok := presets[name]; !ok {
		return
	}
	delete(presets, name)
	e.st.Save(presetNamespace, presets)
}

// FXPresetNames lists the saved preset names.
func (e *Engine) FXPresetNames() []string {
	presets := e.loadPresets()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}

// --- MIDI dispatch ---

// HandleMIDI parses a raw MIDI message, routes it through the binding table
// (or a pending learn) and dispatches the bound control.
func (e *Engine) HandleMIDI(status, data1, data2 byte) {
	msg, ok := midi.Parse(status, data1, data2)
	if !ok {
		return
	}
	control, learned, bound := e.mapping.Route(msg)
	if learned {
		e.log.Info("midi control learned",
			zap.String("control", string(control)),
			zap.String("key", msg.Key.String()))
		return
	}
	if !bound {
		return
	}
	e.dispatch(control, msg)
}

// dispatch maps a logical control onto an engine operation. Buttons act on
// note-on only; continuous controls use the normalized value.
func (e *Engine) dispatch(control midi.Control, msg midi.Message) {
	press := msg.Key.Class != midi.NoteOff && msg.Value > 0
	v := msg.Normalized()

	switch control {
	case midi.ControlPlayA:
		if press {
			e.decks[graph.DeckA].TogglePlay()
		}
	case midi.ControlPlayB:
		if press {
			e.decks[graph.DeckB].TogglePlay()
		}
	case midi.ControlCueA:
		if press {
			e.mix.SetCue(graph.DeckA, !e.mix.Cue(graph.DeckA))
		}
	case midi.ControlCueB:
		if press {
			e.mix.SetCue(graph.DeckB, !e.mix.Cue(graph.DeckB))
		}
	case midi.ControlVolumeA:
		e.mix.SetDeckVolume(graph.DeckA, v*100)
	case midi.ControlVolumeB:
		e.mix.SetDeckVolume(graph.DeckB, v*100)
	case midi.ControlPitchA:
		e.decks[graph.DeckA].SetRate(pitchRate(v))
	case midi.ControlPitchB:
		e.decks[graph.DeckB].SetRate(pitchRate(v))
	case midi.ControlHotCueA:
		if press {
			e.decks[graph.DeckA].JumpCue(0)
		}
	case midi.ControlHotCueB:
		if press {
			e.decks[graph.DeckB].JumpCue(0)
		}
	case midi.ControlQuickLoopA:
		if press {
			e.quickLoop(graph.DeckA)
		}
	case midi.ControlQuickLoopB:
		if press {
			e.quickLoop(graph.DeckB)
		}
	case midi.ControlCrossfader:
		e.mix.SetCrossfader(v*2 - 1)
	case midi.ControlMasterVol:
		e.SetMasterVolume(v * 100)
	case midi.ControlHeadphone:
		e.mix.SetHeadphoneVolume(v * 100)
	case midi.ControlEQLow:
		e.mix.SetSweepEQ(mixer.BandLow, v*100)
	case midi.ControlEQMid:
		e.mix.SetSweepEQ(mixer.BandMid, v*100)
	case midi.ControlEQHigh:
		e.mix.SetSweepEQ(mixer.BandHigh, v*100)
	case midi.ControlFXToggle:
		if press {
			e.fx.Toggle(e.FocusedFX())
		}
	case midi.ControlFXMix:
		e.applyFocusedFX(func(s *fx.Settings) { s.Mix = v * 100 })
	case midi.ControlFXParam1:
		e.applyFocusedFX(func(s *fx.Settings) { s.Param1 = v * 100 })
	case midi.ControlFXParam2:
		e.applyFocusedFX(func(s *fx.Settings) { s.Param2 = v * 100 })
	}
}

// quickLoop drops a 4-beat auto-loop, or clears an active one.
func (e *Engine) quickLoop(id graph.DeckID) {
	d := e.decks[id]
	if d.Loop().Active {
		d.ClearLoop()
		return
	}
	d.AutoLoop(4)
}

func (e *Engine) applyFocusedFX(mutate func(*fx.Settings)) {
	kind := e.FocusedFX()
	s := e.fx.SettingsFor(kind)
	mutate(&s)
	e.fx.Apply(kind, s)
}

// pitchRate maps a pitch fader (0..1, 0.5 centered) onto a +/-8% rate range.
func pitchRate(v float64) float64 {
	return 1 + (v-0.5)*0.16
}
