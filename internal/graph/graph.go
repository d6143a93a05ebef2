package graph

import (
	"math"
	"sync"

	"github.com/spindeck/spindeck/internal/audio"
	"go.uber.org/zap"
)

// DeckID names one of the two playback chains.
type DeckID int

const (
	DeckA DeckID = iota
	DeckB
	NumDecks
)

func (d DeckID) String() string {
	if d == DeckA {
		return "A"
	}
	return "B"
}

// Other returns the opposite deck.
func (d DeckID) Other() DeckID {
	if d == DeckA {
		return DeckB
	}
	return DeckA
}

// GraphicBands lists the center frequencies of the graphic EQ bank.
var GraphicBands = [10]float64{31, 62, 125, 250, 500, 1000, 2000, 4000, 8000, 16000}

// DeckChain holds one deck's nodes: pre-amp and fader gains, the transition
// node chain (series high-pass, low-pass, low-shelf fade filter) that is
// the deck's sole injection point into the shared FX entry, the pre-fader
// analysis/cue tap, and the scratch-noise bed.
type DeckChain struct {
	PreAmp    *Gain
	Fader     *Gain
	HighPass  *Biquad
	LowPass   *Biquad
	ShelfFade *Biquad
	Tap       *Tap
	CueGate   *Gain
	Noise     *Noise
}

// Transition-filter neutral positions.
const (
	HighPassFloor = 10.0
	LowPassCeil   = 20000.0
)

// ResetTransition returns the transition node chain to neutral.
func (c *DeckChain) ResetTransition() {
	c.HighPass.SnapFrequency(HighPassFloor)
	c.LowPass.SnapFrequency(LowPassCeil)
	c.ShelfFade.SnapGainDB(0)
}

// Graph is the fixed processing topology. It is built lazily exactly once
// per session, on the first command that needs audio; if the monitor stream
// layer is unavailable the graph marks itself inert and every dependent
// operation becomes a no-op.
type Graph struct {
	mu    sync.Mutex
	built bool
	inert bool
	hooks []func()
	log   *zap.Logger

	Decks [NumDecks]*DeckChain

	// Master section, in signal order: FX return, 3-band sweep EQ,
	// bass-boost shelf, graphic EQ bank, master gain, final analyser.
	SweepLow  *Biquad
	SweepMid  *Biquad
	SweepHigh *Biquad
	BassBoost *Biquad
	Graphic   [10]*Biquad
	Master    *Gain
	MasterTap *Tap

	// Headphone monitor bus.
	HeadphoneMix *Smoother // 0..1 equal-power cue/master blend
	HeadphoneVol *Gain     // up to 1.5x unity headroom
}

// New creates an unbuilt graph.
func New(log *zap.Logger) *Graph {
	return &Graph{log: log}
}

// EnsureBuilt constructs the node graph on first call and is a cheap no-op
// afterwards. Returns false when the graph is inert. Build hooks run once,
// after the nodes exist, so control state set before the build lands on them.
func (g *Graph) EnsureBuilt() bool {
	g.mu.Lock()
	if g.inert {
		g.mu.Unlock()
		return false
	}
	if g.built {
		g.mu.Unlock()
		return true
	}
	g.build()
	g.built = true
	hooks := g.hooks
	g.hooks = nil
	g.mu.Unlock()
	g.log.Info("signal graph built")
	for _, fn := range hooks {
		fn()
	}
	return true
}

// OnBuild registers fn to run once when the graph is built. On an
// already-built graph fn runs immediately.
func (g *Graph) OnBuild(fn func()) {
	g.mu.Lock()
	live := g.built && !g.inert
	if !live && !g.inert {
		g.hooks = append(g.hooks, fn)
	}
	g.mu.Unlock()
	if live {
		fn()
	}
}

// MarkInert disables the graph permanently: on platforms without audio and
// at engine shutdown, so dependent features degrade silently.
func (g *Graph) MarkInert() {
	g.mu.Lock()
	g.inert = true
	g.mu.Unlock()
	g.log.Info("signal graph inert")
}

// Built reports whether the graph is live.
func (g *Graph) Built() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.built && !g.inert
}

func (g *Graph) build() {
	tapSize := audio.SampleRate / 4 // 250ms analysis window

	for i := range g.Decks {
		g.Decks[i] = &DeckChain{
			PreAmp:    NewGain(1),
			Fader:     NewGain(1),
			HighPass:  NewBiquad(Highpass, HighPassFloor, 0.707, 0),
			LowPass:   NewBiquad(Lowpass, LowPassCeil, 0.707, 0),
			ShelfFade: NewBiquad(LowShelf, 250, 0.707, 0),
			Tap:       NewTap(tapSize),
			CueGate:   NewGain(0),
			Noise:     NewNoise(),
		}
	}

	g.SweepLow = NewBiquad(LowShelf, 320, 0.707, 0)
	g.SweepMid = NewBiquad(Peaking, 1000, 1.0, 0)
	g.SweepHigh = NewBiquad(HighShelf, 3200, 0.707, 0)
	g.BassBoost = NewBiquad(LowShelf, 120, 0.707, 0)
	for i, hz := range GraphicBands {
		g.Graphic[i] = NewBiquad(Peaking, hz, 1.4, 0)
	}
	g.Master = NewGain(1)
	g.MasterTap = NewTap(tapSize)
	g.HeadphoneMix = NewSmoother(DefaultSmoothing, 0.5)
	g.HeadphoneVol = NewGain(1)
}

// ProcessMasterSection runs a summed FX-return frame through the EQ stages,
// master gain and final analyser, in place.
func (g *Graph) ProcessMasterSection(buf []float32) {
	g.SweepLow.Process(buf)
	g.SweepMid.Process(buf)
	g.SweepHigh.Process(buf)
	g.BassBoost.Process(buf)
	for _, band := range g.Graphic {
		band.Process(buf)
	}
	g.Master.Process(buf)
	g.MasterTap.Process(buf)
}

// BlendHeadphone writes the headphone frame: the gated cue bus crossfaded
// against the master bus by an equal-power law, then scaled by the
// headphone volume.
func (g *Graph) BlendHeadphone(cue, master, out []float32) {
	for i := 0; i < len(out); i += audio.Channels {
		mix := g.HeadphoneMix.Next()
		cueGain := float32(equalPowerA(mix))
		masterGain := float32(equalPowerB(mix))
		for c := 0; c < audio.Channels; c++ {
			out[i+c] = cue[i+c]*cueGain + master[i+c]*masterGain
		}
	}
	g.HeadphoneVol.Process(out)
}

// equalPowerA/B implement the constant-power pan law over p in [0,1],
// A full at p=0.
func equalPowerA(p float64) float64 { return math.Cos(p * math.Pi / 2) }
func equalPowerB(p float64) float64 { return math.Sin(p * math.Pi / 2) }
