package midi

// Control is a logical console control a physical message can be bound to.
type Control string

// The fixed control catalogue. Per-deck controls carry an A/B suffix; the
// hot-cue and loop pads address the deck that last had focus on the surface.
const (
	ControlPlayA      Control = "deck.a.play"
	ControlPlayB      Control = "deck.b.play"
	ControlCueA       Control = "deck.a.cue"
	ControlCueB       Control = "deck.b.cue"
	ControlVolumeA    Control = "deck.a.volume"
	ControlVolumeB    Control = "deck.b.volume"
	ControlPitchA     Control = "deck.a.pitch"
	ControlPitchB     Control = "deck.b.pitch"
	ControlHotCueA    Control = "deck.a.hotcue"
	ControlHotCueB    Control = "deck.b.hotcue"
	ControlQuickLoopA Control = "deck.a.quickloop"
	ControlQuickLoopB Control = "deck.b.quickloop"
	ControlCrossfader Control = "mixer.crossfader"
	ControlMasterVol  Control = "mixer.master"
	ControlHeadphone  Control = "mixer.headphone"
	ControlEQLow      Control = "mixer.eq.low"
	ControlEQMid      Control = "mixer.eq.mid"
	ControlEQHigh     Control = "mixer.eq.high"
	ControlFXToggle   Control = "fx.toggle"
	ControlFXMix      Control = "fx.mix"
	ControlFXParam1   Control = "fx.param1"
	ControlFXParam2   Control = "fx.param2"
)

// Catalogue lists every bindable control in display order.
func Catalogue() []Control {
	return []Control{
		ControlPlayA, ControlPlayB,
		ControlCueA, ControlCueB,
		ControlVolumeA, ControlVolumeB,
		ControlPitchA, ControlPitchB,
		ControlHotCueA, ControlHotCueB,
		ControlQuickLoopA, ControlQuickLoopB,
		ControlCrossfader, ControlMasterVol, ControlHeadphone,
		ControlEQLow, ControlEQMid, ControlEQHigh,
		ControlFXToggle, ControlFXMix, ControlFXParam1, ControlFXParam2,
	}
}

var catalogueSet = func() map[Control]bool {
	m := make(map[Control]bool)
	for _, c := range Catalogue() {
		m[c] = true
	}
	return m
}()

// Valid reports whether a control name is part of the catalogue.
func (c Control) Valid() bool { return catalogueSet[c] }
