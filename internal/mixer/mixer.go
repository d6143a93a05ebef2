// Package mixer implements the crossfader laws, the EQ knob curves and the
// headphone cue/monitor blend, pushing every change into the signal graph
// with smoothing.
package mixer

import (
	"math"
	"sync"

	"github.com/spindeck/spindeck/internal/graph"
)

// CurveLaw selects the crossfader curve shape.
type CurveLaw int

const (
	CurveLinear CurveLaw = iota
	CurveConstantPower
	CurveFastCut
)

func (l CurveLaw) String() string {
	switch l {
	case CurveConstantPower:
		return "constant-power"
	case CurveFastCut:
		return "fast-cut"
	default:
		return "linear"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CurveGains maps a bipolar crossfader position x in [-1, 1] to the deck
// gain pair. All laws are exact at the rails: gA(-1)=1, gB(-1)=0, gA(1)=0,
// gB(1)=1.
func CurveGains(law CurveLaw, x float64) (gA, gB float64) {
	if x < -1 {
		x = -1
	} else if x > 1 {
		x = 1
	}
	p := (x + 1) / 2
	switch law {
	case CurveConstantPower:
		return math.Cos(p * math.Pi / 2), math.Sin(p * math.Pi / 2)
	case CurveFastCut:
		// Cubic-steepened: both decks stay near unity through the middle
		// of the travel and cut sharply toward the poles. Both branches
		// meet at p=0.5 with gain 1, so the midpoint is continuous.
		ta := clamp01(2*p - 1)
		tb := clamp01(1 - 2*p)
		return 1 - ta*ta*ta, 1 - tb*tb*tb
	default:
		return 1 - p, p
	}
}

// --- knob curves ---

// SweepEQGainDB maps a 3-band sweep EQ knob (0-100, 50 = flat) to decibels.
// The cut side reaches a near-kill -26dB with a squared taper; the boost
// side is a gentler +9dB.
func SweepEQGainDB(knob float64) float64 {
	knob = 100 * clamp01(knob/100)
	if knob < 50 {
		t := (50 - knob) / 50
		return -26 * t * t
	}
	t := (knob - 50) / 50
	return 9 * t
}

// GraphicEQGainDB maps a graphic EQ band knob (0-100, 50 = flat) linearly
// onto +/-12dB.
func GraphicEQGainDB(knob float64) float64 {
	return (clamp01(knob/100) - 0.5) * 24
}

// BassBoostGainDB maps the bass-boost knob (0-100) onto 0..+15dB with a
// squared taper so the first half of the travel stays subtle.
func BassBoostGainDB(knob float64) float64 {
	t := clamp01(knob / 100)
	return 15 * t * t
}

// HeadphoneGain maps the headphone volume knob (0-100) to gain with extra
// headroom: 100 is 1.5x unity.
func HeadphoneGain(knob float64) float64 {
	return clamp01(knob/100) * 1.5
}

// SweepBand names a 3-band EQ knob.
type SweepBand int

const (
	BandLow SweepBand = iota
	BandMid
	BandHigh
)

// Mixer owns the crossfader and EQ state and applies it to the graph. Every
// knob is cached here so values set before the graph is built land on the
// nodes once it is.
type Mixer struct {
	mu         sync.Mutex
	g          *graph.Graph
	law        CurveLaw
	position   float64                 // -1..1
	deckVolume [graph.NumDecks]float64 // 0..1
	cue        [graph.NumDecks]bool
	sweep      [3]float64  // knobs 0-100, 50 = flat
	graphic    [10]float64 // knobs 0-100, 50 = flat
	bassBoost  float64     // knob 0-100
	phoneMix   float64     // knob 0-100
	phoneVol   float64     // knob 0-100
}

// New creates a mixer over a graph, crossfader centered, volumes at unity.
func New(g *graph.Graph) *Mixer {
	m := &Mixer{
		g:        g,
		law:      CurveLinear,
		phoneMix: 50,
		phoneVol: 100.0 / 1.5, // unity
	}
	for i := range m.deckVolume {
		m.deckVolume[i] = 1
	}
	for i := range m.sweep {
		m.sweep[i] = 50
	}
	for i := range m.graphic {
		m.graphic[i] = 50
	}
	g.OnBuild(m.pushAll)
	return m
}

// pushAll re-pushes the cached console state into freshly built nodes.
func (m *Mixer) pushAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushFaders(true)
	m.g.SweepLow.SetGainDB(SweepEQGainDB(m.sweep[BandLow]))
	m.g.SweepMid.SetGainDB(SweepEQGainDB(m.sweep[BandMid]))
	m.g.SweepHigh.SetGainDB(SweepEQGainDB(m.sweep[BandHigh]))
	for i, knob := range m.graphic {
		m.g.Graphic[i].SetGainDB(GraphicEQGainDB(knob))
	}
	m.g.BassBoost.SetGainDB(BassBoostGainDB(m.bassBoost))
	for id, on := range m.cue {
		if on {
			m.g.Decks[id].CueGate.Snap(1)
		}
	}
	m.g.HeadphoneMix.Set(clamp01(m.phoneMix / 100))
	m.g.HeadphoneVol.Set(HeadphoneGain(m.phoneVol))
}

// SetCrossfader moves the crossfader and pushes both deck fader gains.
func (m *Mixer) SetCrossfader(x float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if x < -1 {
		x = -1
	} else if x > 1 {
		x = 1
	}
	m.position = x
	m.pushFaders(false)
}

// SnapCrossfader jumps the crossfader without smoothing; used when a
// transition completes and the fader snaps to the new active side.
func (m *Mixer) SnapCrossfader(x float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = x
	m.pushFaders(true)
}

// Crossfader returns the current position.
func (m *Mixer) Crossfader() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// SetCurve switches the crossfader law and re-applies the current position.
func (m *Mixer) SetCurve(law CurveLaw) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.law = law
	m.pushFaders(false)
}

// SetDeckVolume sets a deck volume knob (0-100) and re-pushes its fader.
func (m *Mixer) SetDeckVolume(id graph.DeckID, knob float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deckVolume[id] = clamp01(knob / 100)
	m.pushFaders(false)
}

// DeckVolume returns a deck's volume knob position (0-100).
func (m *Mixer) DeckVolume(id graph.DeckID) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deckVolume[id] * 100
}

// pushFaders applies volume x fader-law gain at each deck's own fader node.
// Must hold mu.
func (m *Mixer) pushFaders(snap bool) {
	if !m.g.Built() {
		return
	}
	gA, gB := CurveGains(m.law, m.position)
	gains := [graph.NumDecks]float64{gA * m.deckVolume[graph.DeckA], gB * m.deckVolume[graph.DeckB]}
	for i, chain := range m.g.Decks {
		if snap {
			chain.Fader.Snap(gains[i])
		} else {
			chain.Fader.Set(gains[i])
		}
	}
}

// SetSweepEQ pushes a 3-band sweep EQ knob.
func (m *Mixer) SetSweepEQ(band SweepBand, knob float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if band < BandLow || band > BandHigh {
		return
	}
	m.sweep[band] = knob
	if !m.g.Built() {
		return
	}
	db := SweepEQGainDB(knob)
	switch band {
	case BandLow:
		m.g.SweepLow.SetGainDB(db)
	case BandMid:
		m.g.SweepMid.SetGainDB(db)
	case BandHigh:
		m.g.SweepHigh.SetGainDB(db)
	}
}

// SetGraphicBand pushes one graphic EQ band knob.
func (m *Mixer) SetGraphicBand(band int, knob float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if band < 0 || band >= len(m.graphic) {
		return
	}
	m.graphic[band] = knob
	if !m.g.Built() {
		return
	}
	m.g.Graphic[band].SetGainDB(GraphicEQGainDB(knob))
}

// SetBassBoost pushes the bass-boost shelf knob.
func (m *Mixer) SetBassBoost(knob float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bassBoost = knob
	if !m.g.Built() {
		return
	}
	m.g.BassBoost.SetGainDB(BassBoostGainDB(knob))
}

// SetCue gates a deck into or out of the headphone cue bus.
func (m *Mixer) SetCue(id graph.DeckID, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cue[id] = on
	if !m.g.Built() {
		return
	}
	level := 0.0
	if on {
		level = 1
	}
	m.g.Decks[id].CueGate.Set(level)
}

// Cue reports whether a deck feeds the headphone bus.
func (m *Mixer) Cue(id graph.DeckID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cue[id]
}

// SetHeadphoneMix blends cue against master (0 = cue only, 100 = master).
func (m *Mixer) SetHeadphoneMix(knob float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phoneMix = knob
	if !m.g.Built() {
		return
	}
	m.g.HeadphoneMix.Set(clamp01(knob / 100))
}

// SetHeadphoneVolume pushes the headphone level knob.
func (m *Mixer) SetHeadphoneVolume(knob float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phoneVol = knob
	if !m.g.Built() {
		return
	}
	m.g.HeadphoneVol.Set(HeadphoneGain(knob))
}
