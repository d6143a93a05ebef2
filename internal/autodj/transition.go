package autodj

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/spindeck/spindeck/internal/graph"
	"github.com/spindeck/spindeck/internal/library"
)

// Style selects how a transition is automated. StyleAutomatic defers the
// choice to the energy/genre heuristic at transition time.
type Style int

const (
	StyleAutomatic Style = iota
	StyleCrossfade
	StyleBassSwap
	StyleFilterFade
	StyleEQFade
	StyleFadeInOut
	StyleHardCut
)

var styleNames = map[Style]string{
	StyleAutomatic:  "automatic",
	StyleCrossfade:  "crossfade",
	StyleBassSwap:   "bass-swap",
	StyleFilterFade: "filter-fade",
	StyleEQFade:     "eq-fade",
	StyleFadeInOut:  "fade-in-out",
	StyleHardCut:    "hard-cut",
}

func (s Style) String() string {
	if n, ok := styleNames[s]; ok {
		return n
	}
	return "automatic"
}

// StyleFromString parses a style name.
func StyleFromString(name string) (Style, bool) {
	for s, n := range styleNames {
		if n == name {
			return s, true
		}
	}
	return StyleAutomatic, false
}

func (s Style) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Style) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, ok := StyleFromString(name)
	if !ok {
		return fmt.Errorf("unknown transition style %q", name)
	}
	*s = parsed
	return nil
}

// effectiveStyle resolves the automatic style from the relationship between
// the outgoing and incoming track: close energy within a genre earns a long
// smooth filter blend, a big energy jump earns a bass swap, everything else
// a short plain crossfade. The second return is a duration scale applied to
// the configured transition length.
func effectiveStyle(out, in library.Track) (Style, float64) {
	gap := math.Abs(float64(out.Energy - in.Energy))
	switch {
	case out.Genre == in.Genre && gap <= 2:
		return StyleFilterFade, 1.5
	case gap > 4:
		return StyleBassSwap, 1
	default:
		return StyleCrossfade, 0.5
	}
}

// hardCutSettleSeconds is how long a hard cut lets the new deck run before
// the outgoing deck is retired.
const hardCutSettleSeconds = 1

// transitionShelfCutDB is the low-shelf kill depth used by the bass-swap and
// EQ-fade styles.
const transitionShelfCutDB = -26.0

// filterSweep maps transition progress to the outgoing deck's rising
// high-pass corner and the incoming deck's opening low-pass corner, both
// swept logarithmically.
func filterSweep(p float64) (outHP, inLP float64) {
	p = clamp01(p)
	outHP = graph.HighPassFloor * math.Pow(2000/graph.HighPassFloor, p)
	inLP = 200 * math.Pow(graph.LowPassCeil/200, p)
	return outHP, inLP
}

// bassSwapShelves maps progress to the two low-shelf gains: the outgoing
// deck's bass drains as the incoming deck's fills.
func bassSwapShelves(p float64) (outDB, inDB float64) {
	p = clamp01(p)
	return transitionShelfCutDB * p, transitionShelfCutDB * (1 - p)
}

// autoGainRatio bounds the loudness correction applied to the incoming deck.
func autoGainRatio(outLoudness, inLoudness float64) float64 {
	if outLoudness <= 0 || inLoudness <= 0 {
		return 1
	}
	return clamp(outLoudness/inLoudness, 0.5, 1.5)
}

// beatMatchRate is the playback-rate multiplier that matches the incoming
// track's tempo to the outgoing one.
func beatMatchRate(outBPM, inBPM float64) float64 {
	if outBPM <= 0 || inBPM <= 0 {
		return 1
	}
	return outBPM / inBPM
}

// preAmpKnob inverts the deck pre-amp curve, mapping a linear gain onto the
// 0-100 knob (50 = unity, +/-12dB exponential). The auto-gain clamp keeps
// the result well inside the knob's travel.
func preAmpKnob(gain float64) float64 {
	if gain <= 0 {
		return 0
	}
	db := 20 * math.Log10(gain)
	return clamp(50+50*db/12, 0, 100)
}

// faderSide is the crossfader rail owned by a deck.
func faderSide(id graph.DeckID) float64 {
	if id == graph.DeckA {
		return -1
	}
	return 1
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
