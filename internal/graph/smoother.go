// Package graph implements the fixed audio processing topology: parameter
// smoothing, node primitives, and the lazily-built master / headphone /
// per-deck signal chains.
package graph

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/spindeck/spindeck/internal/audio"
)

// Smoother is a one-pole exponential parameter smoother. Every audible
// parameter goes through one so pushes are never instantaneous (zipper
// noise). Targets arrive from control goroutines (console commands, the
// transition stepper) while the render goroutine steps the output, so both
// values live behind atomics; only the render goroutine advances current.
type Smoother struct {
	current  atomic.Uint64 // float64 bits
	target   atomic.Uint64 // float64 bits
	coeff    float64
	logSpace bool
}

// DefaultSmoothing is the time constant used for knob and fader pushes.
const DefaultSmoothing = 15 * time.Millisecond

// NewSmoother creates a smoother with the given time constant.
func NewSmoother(tau time.Duration, initial float64) *Smoother {
	s := &Smoother{coeff: smoothingCoeff(tau)}
	s.current.Store(math.Float64bits(initial))
	s.target.Store(math.Float64bits(initial))
	return s
}

// NewLogSmoother creates a smoother that interpolates in log space, which
// matches perceptual spacing for frequency-type parameters.
func NewLogSmoother(tau time.Duration, initial float64) *Smoother {
	s := NewSmoother(tau, initial)
	s.logSpace = true
	return s
}

func smoothingCoeff(tau time.Duration) float64 {
	samples := tau.Seconds() * audio.SampleRate
	if samples < 1 {
		samples = 1
	}
	return math.Exp(-1 / samples)
}

// Set changes the target; the output converges over the time constant.
func (s *Smoother) Set(target float64) {
	s.target.Store(math.Float64bits(target))
}

// Snap jumps both current and target without smoothing. Used for resets.
func (s *Smoother) Snap(v float64) {
	bits := math.Float64bits(v)
	s.target.Store(bits)
	s.current.Store(bits)
}

// Target returns the value the smoother is converging to.
func (s *Smoother) Target() float64 {
	return math.Float64frombits(s.target.Load())
}

// Current returns the smoothed output as of the last Next.
func (s *Smoother) Current() float64 {
	return math.Float64frombits(s.current.Load())
}

// Next advances by one sample and returns the smoothed value.
func (s *Smoother) Next() float64 {
	cur := s.Current()
	tgt := s.Target()
	if cur == tgt {
		return cur
	}
	if s.logSpace {
		const floor = 1e-4
		c := math.Max(cur, floor)
		t := math.Max(tgt, floor)
		lg := s.coeff*math.Log(c) + (1-s.coeff)*math.Log(t)
		cur = math.Exp(lg)
	} else {
		cur = s.coeff*cur + (1-s.coeff)*tgt
	}
	if math.Abs(cur-tgt) < 1e-6 {
		cur = tgt
	}
	s.current.Store(math.Float64bits(cur))
	return cur
}

// NextFrame advances by a whole frame and returns the end-of-frame value.
// Cheaper than per-sample stepping for parameters applied once per frame.
func (s *Smoother) NextFrame(frameSamples int) float64 {
	v := s.Current()
	for i := 0; i < frameSamples; i++ {
		v = s.Next()
		if v == s.Target() {
			break
		}
	}
	return v
}
