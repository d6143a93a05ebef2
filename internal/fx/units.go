// Package fx implements the nine-unit effect bank and its ordered chain.
//
// Every unit exposes the same control surface: a dry/wet mix and two
// generic parameters, all in the normalized 0-100 input domain. Physical
// units are derived at the point of application -- linear interpolation for
// most ranges, logarithmic for frequency-type ranges -- and pushed through
// short exponential smoothing.
package fx

import (
	"math"

	"github.com/spindeck/spindeck/internal/audio"
	"github.com/spindeck/spindeck/internal/graph"
)

// UnitKind identifies an effect unit. Declaration order is the canonical
// bank order: the chain is always rebuilt in this order, never in
// activation order.
type UnitKind int

const (
	UnitDelay UnitKind = iota
	UnitReverb
	UnitFlanger
	UnitPhaser
	UnitChorus
	UnitTremolo
	UnitDistortion
	UnitBitcrusher
	UnitFilter
	NumUnits
)

var unitNames = [NumUnits]string{
	"delay", "reverb", "flanger", "phaser", "chorus",
	"tremolo", "distortion", "bitcrusher", "filter",
}

func (k UnitKind) String() string {
	if k < 0 || k >= NumUnits {
		return "unknown"
	}
	return unitNames[k]
}

// Settings is the uniform normalized control surface of a unit.
type Settings struct {
	Mix       float64 `json:"mix"`    // 0-100 dry/wet
	Param1    float64 `json:"param1"` // 0-100
	Param2    float64 `json:"param2"` // 0-100
	TempoSync bool    `json:"tempoSync"`
	Division  float64 `json:"division"` // beats per repeat/cycle when synced
}

// DefaultSettings is the state a unit starts in.
func DefaultSettings() Settings {
	return Settings{Mix: 50, Param1: 50, Param2: 50, Division: 1}
}

// Unit is one effect processor with a classic dry/wet bus.
type Unit interface {
	Kind() UnitKind
	// Apply maps normalized settings to physical units and pushes them with
	// smoothing. bpm feeds tempo-synced parameters.
	Apply(s Settings, bpm float64)
	// Process runs a frame through the unit in place, including the dry/wet
	// mix.
	Process(buf []float32)
	// Reset clears internal delay/filter state.
	Reset()
}

// --- normalized-to-physical mapping ---

// lin maps v in [0,100] linearly onto [lo, hi].
func lin(v, lo, hi float64) float64 {
	if v < 0 {
		v = 0
	} else if v > 100 {
		v = 100
	}
	return lo + (hi-lo)*v/100
}

// logMap maps v in [0,100] onto [lo, hi] with logarithmic spacing, so equal
// knob travel is equal perceptual (frequency) travel.
func logMap(v, lo, hi float64) float64 {
	if v < 0 {
		v = 0
	} else if v > 100 {
		v = 100
	}
	return lo * math.Pow(hi/lo, v/100)
}

// syncedSeconds derives a delay time from tempo: seconds-per-beat times the
// selected division.
func syncedSeconds(bpm, division float64) float64 {
	if bpm <= 0 {
		bpm = 120
	}
	if division <= 0 {
		division = 1
	}
	return 60 / bpm * division
}

// syncedRate derives a modulation rate from tempo: beats-per-second divided
// by the selected division.
func syncedRate(bpm, division float64) float64 {
	if bpm <= 0 {
		bpm = 120
	}
	if division <= 0 {
		division = 1
	}
	return bpm / 60 / division
}

// --- dry/wet bus ---

// wetDry is the shared dry/wet output stage: independent dry and wet gains
// both feeding the unit output.
type wetDry struct {
	dry *graph.Smoother
	wet *graph.Smoother
}

func newWetDry() wetDry {
	return wetDry{
		dry: graph.NewSmoother(graph.DefaultSmoothing, 0.5),
		wet: graph.NewSmoother(graph.DefaultSmoothing, 0.5),
	}
}

func (w *wetDry) applyMix(mix float64) {
	m := lin(mix, 0, 1)
	w.wet.Set(m)
	w.dry.Set(1 - m)
}

// mix writes dry*in + wet*wetSig back into buf.
func (w *wetDry) mix(buf, wetSig []float32) {
	for i := 0; i < len(buf); i += audio.Channels {
		dg := float32(w.dry.Next())
		wg := float32(w.wet.Next())
		for c := 0; c < audio.Channels; c++ {
			buf[i+c] = buf[i+c]*dg + wetSig[i+c]*wg
		}
	}
}

// --- LFO ---

type lfo struct {
	phase float64
	rate  *graph.Smoother
}

func newLFO(hz float64) lfo {
	return lfo{rate: graph.NewSmoother(graph.DefaultSmoothing, hz)}
}

// next returns a sine in [-1, 1] and advances one sample.
func (l *lfo) next() float64 {
	v := math.Sin(2 * math.Pi * l.phase)
	l.phase += l.rate.Next() / audio.SampleRate
	if l.phase >= 1 {
		l.phase -= 1
	}
	return v
}

// --- Delay ---

type delayUnit struct {
	wetDry
	line     *graph.Delay
	time     *graph.Smoother // seconds
	feedback *graph.Smoother
}

func newDelayUnit() *delayUnit {
	return &delayUnit{
		wetDry:   newWetDry(),
		line:     graph.NewDelay(2),
		time:     graph.NewSmoother(graph.DefaultSmoothing, 0.3),
		feedback: graph.NewSmoother(graph.DefaultSmoothing, 0.35),
	}
}

func (u *delayUnit) Kind() UnitKind { return UnitDelay }

func (u *delayUnit) Apply(s Settings, bpm float64) {
	u.applyMix(s.Mix)
	if s.TempoSync {
		u.time.Set(math.Min(syncedSeconds(bpm, s.Division), 2))
	} else {
		u.time.Set(lin(s.Param1, 0.01, 1.5))
	}
	u.feedback.Set(lin(s.Param2, 0, 0.9))
}

func (u *delayUnit) Process(buf []float32) {
	wet := make([]float32, len(buf))
	for i := 0; i < len(buf); i += audio.Channels {
		delaySamples := u.time.Next() * audio.SampleRate
		fb := float32(u.feedback.Next())
		var in [audio.Channels]float32
		for c := 0; c < audio.Channels; c++ {
			echoed := u.line.Read(c, delaySamples)
			wet[i+c] = echoed
			in[c] = buf[i+c] + echoed*fb
		}
		u.line.Write(in)
	}
	u.mix(buf, wet)
}

func (u *delayUnit) Reset() { u.line.Reset() }

// --- Reverb ---

// reverbUnit simulates a room with a pair of cross-feeding delay lines:
// each line's output feeds the other's input, decaying per pass.
type reverbUnit struct {
	wetDry
	left  *graph.Delay
	right *graph.Delay
	size  *graph.Smoother // seconds, base delay
	decay *graph.Smoother
}

func newReverbUnit() *reverbUnit {
	return &reverbUnit{
		wetDry: newWetDry(),
		left:   graph.NewDelay(0.5),
		right:  graph.NewDelay(0.5),
		size:   graph.NewSmoother(graph.DefaultSmoothing, 0.045),
		decay:  graph.NewSmoother(graph.DefaultSmoothing, 0.5),
	}
}

func (u *reverbUnit) Kind() UnitKind { return UnitReverb }

func (u *reverbUnit) Apply(s Settings, _ float64) {
	u.applyMix(s.Mix)
	u.size.Set(lin(s.Param1, 0.02, 0.12))
	u.decay.Set(lin(s.Param2, 0.2, 0.85))
}

func (u *reverbUnit) Process(buf []float32) {
	wet := make([]float32, len(buf))
	for i := 0; i < len(buf); i += audio.Channels {
		base := u.size.Next() * audio.SampleRate
		decay := float32(u.decay.Next())

		// Slightly detuned lines keep the tail from ringing at one pitch.
		outL := u.left.Read(0, base)
		outR := u.right.Read(0, base*1.17)

		wet[i] = outL
		wet[i+1] = outR

		// Cross-feed: left output returns through the right line and vice
		// versa.
		u.left.Write([audio.Channels]float32{buf[i] + outR*decay, 0})
		u.right.Write([audio.Channels]float32{buf[i+1] + outL*decay, 0})
	}
	u.mix(buf, wet)
}

func (u *reverbUnit) Reset() {
	u.left.Reset()
	u.right.Reset()
}

// --- modulated delay core (flanger / chorus) ---

type modDelay struct {
	wetDry
	line     *graph.Delay
	osc      lfo
	depth    *graph.Smoother // seconds of sweep
	basesec  float64         // center delay
	feedback float32
}

func (u *modDelay) process(buf []float32) []float32 {
	wet := make([]float32, len(buf))
	for i := 0; i < len(buf); i += audio.Channels {
		mod := u.osc.next()
		depth := u.depth.Next()
		delaySec := u.basesec + depth*(mod+1)/2
		delaySamples := delaySec * audio.SampleRate
		var in [audio.Channels]float32
		for c := 0; c < audio.Channels; c++ {
			d := u.line.Read(c, delaySamples)
			wet[i+c] = d
			in[c] = buf[i+c] + d*u.feedback
		}
		u.line.Write(in)
	}
	return wet
}

type flangerUnit struct{ modDelay }

func newFlangerUnit() *flangerUnit {
	return &flangerUnit{modDelay{
		wetDry:   newWetDry(),
		line:     graph.NewDelay(0.05),
		osc:      newLFO(0.25),
		depth:    graph.NewSmoother(graph.DefaultSmoothing, 0.002),
		basesec:  0.001,
		feedback: 0.5,
	}}
}

func (u *flangerUnit) Kind() UnitKind { return UnitFlanger }

func (u *flangerUnit) Apply(s Settings, bpm float64) {
	u.applyMix(s.Mix)
	if s.TempoSync {
		u.osc.rate.Set(syncedRate(bpm, s.Division))
	} else {
		u.osc.rate.Set(logMap(s.Param1, 0.05, 5))
	}
	u.depth.Set(lin(s.Param2, 0.0005, 0.005))
}

func (u *flangerUnit) Process(buf []float32) { u.mix(buf, u.process(buf)) }
func (u *flangerUnit) Reset()                { u.line.Reset() }

type chorusUnit struct{ modDelay }

func newChorusUnit() *chorusUnit {
	return &chorusUnit{modDelay{
		wetDry:   newWetDry(),
		line:     graph.NewDelay(0.1),
		osc:      newLFO(0.8),
		depth:    graph.NewSmoother(graph.DefaultSmoothing, 0.006),
		basesec:  0.012,
		feedback: 0,
	}}
}

func (u *chorusUnit) Kind() UnitKind { return UnitChorus }

func (u *chorusUnit) Apply(s Settings, _ float64) {
	u.applyMix(s.Mix)
	u.osc.rate.Set(logMap(s.Param1, 0.1, 4))
	u.depth.Set(lin(s.Param2, 0.001, 0.015))
}

func (u *chorusUnit) Process(buf []float32) { u.mix(buf, u.process(buf)) }
func (u *chorusUnit) Reset()                { u.line.Reset() }

// --- Phaser ---

type phaserUnit struct {
	wetDry
	stages [4]*graph.Biquad
	osc    lfo
	depth  *graph.Smoother
	center float64
}

func newPhaserUnit() *phaserUnit {
	u := &phaserUnit{
		wetDry: newWetDry(),
		osc:    newLFO(0.5),
		depth:  graph.NewSmoother(graph.DefaultSmoothing, 0.5),
		center: 800,
	}
	for i := range u.stages {
		u.stages[i] = graph.NewBiquad(graph.Allpass, u.center, 0.7, 0)
	}
	return u
}

func (u *phaserUnit) Kind() UnitKind { return UnitPhaser }

func (u *phaserUnit) Apply(s Settings, bpm float64) {
	u.applyMix(s.Mix)
	if s.TempoSync {
		u.osc.rate.Set(syncedRate(bpm, s.Division))
	} else {
		u.osc.rate.Set(logMap(s.Param1, 0.05, 4))
	}
	u.depth.Set(lin(s.Param2, 0.1, 1))
}

func (u *phaserUnit) Process(buf []float32) {
	wet := make([]float32, len(buf))
	copy(wet, buf)

	// One sweep position per frame is enough: the LFO is slow and the
	// allpass chain re-designs are not free.
	var mod float64
	for i := 0; i < len(buf)/audio.Channels; i++ {
		mod = u.osc.next()
	}
	depth := u.depth.NextFrame(len(buf) / audio.Channels)
	freq := u.center * math.Pow(2, mod*depth*2)
	for _, st := range u.stages {
		st.SetFrequency(freq)
		st.Process(wet)
	}
	u.mix(buf, wet)
}

func (u *phaserUnit) Reset() {
	for _, st := range u.stages {
		st.Reset()
	}
}

// --- Tremolo ---

type tremoloUnit struct {
	wetDry
	osc   lfo
	depth *graph.Smoother
}

func newTremoloUnit() *tremoloUnit {
	return &tremoloUnit{
		wetDry: newWetDry(),
		osc:    newLFO(4),
		depth:  graph.NewSmoother(graph.DefaultSmoothing, 0.5),
	}
}

func (u *tremoloUnit) Kind() UnitKind { return UnitTremolo }

func (u *tremoloUnit) Apply(s Settings, bpm float64) {
	u.applyMix(s.Mix)
	if s.TempoSync {
		u.osc.rate.Set(syncedRate(bpm, s.Division))
	} else {
		u.osc.rate.Set(logMap(s.Param1, 0.5, 16))
	}
	u.depth.Set(lin(s.Param2, 0, 1))
}

func (u *tremoloUnit) Process(buf []float32) {
	wet := make([]float32, len(buf))
	for i := 0; i < len(buf); i += audio.Channels {
		mod := (u.osc.next() + 1) / 2
		depth := u.depth.Next()
		g := float32(1 - depth*mod)
		for c := 0; c < audio.Channels; c++ {
			wet[i+c] = buf[i+c] * g
		}
	}
	u.mix(buf, wet)
}

func (u *tremoloUnit) Reset() { u.osc.phase = 0 }

// --- Distortion ---

const curveLen = 2048
const oversample = 4

// distortionUnit shapes the signal through a soft-clip lookup curve,
// regenerated in full whenever the amount changes, and applied with 4x
// oversampling to keep aliasing down.
type distortionUnit struct {
	wetDry
	curve      [curveLen]float32
	amount     float64
	output     *graph.Smoother
	lastSample [audio.Channels]float32
}

func newDistortionUnit() *distortionUnit {
	u := &distortionUnit{
		wetDry: newWetDry(),
		output: graph.NewSmoother(graph.DefaultSmoothing, 1),
	}
	u.regenCurve(20)
	return u
}

func (u *distortionUnit) Kind() UnitKind { return UnitDistortion }

// regenCurve rebuilds the waveshaping lookup table over [-1, 1] using the
// classic soft-clip formula parameterized by amount.
func (u *distortionUnit) regenCurve(amount float64) {
	k := amount
	if k < 0.01 {
		k = 0.01
	}
	deg := math.Pi / 180
	for i := range u.curve {
		x := float64(i)*2/curveLen - 1
		u.curve[i] = float32((3 + k) * x * 20 * deg / (math.Pi + k*math.Abs(x)))
	}
	u.amount = amount
}

func (u *distortionUnit) Apply(s Settings, _ float64) {
	u.applyMix(s.Mix)
	if amount := lin(s.Param1, 0, 100); amount != u.amount {
		u.regenCurve(amount)
	}
	u.output.Set(lin(s.Param2, 0.1, 1.5))
}

func (u *distortionUnit) shape(x float32) float32 {
	if x < -1 {
		x = -1
	} else if x > 1 {
		x = 1
	}
	idx := int((x + 1) / 2 * (curveLen - 1))
	return u.curve[idx]
}

func (u *distortionUnit) Process(buf []float32) {
	wet := make([]float32, len(buf))
	for i := 0; i < len(buf); i += audio.Channels {
		out := float32(u.output.Next())
		for c := 0; c < audio.Channels; c++ {
			x := buf[i+c]
			prev := u.lastSample[c]
			// 4x oversample: shape linear interpolations between the
			// previous and current sample, then average back down.
			var acc float32
			for k := 1; k <= oversample; k++ {
				t := float32(k) / oversample
				acc += u.shape(prev*(1-t) + x*t)
			}
			u.lastSample[c] = x
			wet[i+c] = acc / oversample * out
		}
	}
	u.mix(buf, wet)
}

func (u *distortionUnit) Reset() {
	u.lastSample = [audio.Channels]float32{}
}

// --- Bitcrusher ---

type bitcrusherUnit struct {
	wetDry
	bits    *graph.Smoother
	rateDiv *graph.Smoother
	holdCnt float64
	held    [audio.Channels]float32
}

func newBitcrusherUnit() *bitcrusherUnit {
	return &bitcrusherUnit{
		wetDry:  newWetDry(),
		bits:    graph.NewSmoother(graph.DefaultSmoothing, 8),
		rateDiv: graph.NewSmoother(graph.DefaultSmoothing, 4),
	}
}

func (u *bitcrusherUnit) Kind() UnitKind { return UnitBitcrusher }

func (u *bitcrusherUnit) Apply(s Settings, _ float64) {
	u.applyMix(s.Mix)
	// More knob means more crush: fewer bits, bigger hold.
	u.bits.Set(lin(100-s.Param1, 2, 16))
	u.rateDiv.Set(lin(s.Param2, 1, 50))
}

func (u *bitcrusherUnit) Process(buf []float32) {
	wet := make([]float32, len(buf))
	for i := 0; i < len(buf); i += audio.Channels {
		bits := u.bits.Next()
		div := u.rateDiv.Next()
		levels := math.Pow(2, bits)

		u.holdCnt++
		if u.holdCnt >= div {
			u.holdCnt = 0
			for c := 0; c < audio.Channels; c++ {
				q := math.Round(float64(buf[i+c])*levels) / levels
				u.held[c] = float32(q)
			}
		}
		for c := 0; c < audio.Channels; c++ {
			wet[i+c] = u.held[c]
		}
	}
	u.mix(buf, wet)
}

func (u *bitcrusherUnit) Reset() {
	u.holdCnt = 0
	u.held = [audio.Channels]float32{}
}

// --- Filter ---

// filterUnit is a DJ-style morphing filter: the first parameter sweeps a
// lowpass closed through the bottom half of its travel and a highpass open
// through the top half; the second parameter is resonance.
type filterUnit struct {
	wetDry
	lp *graph.Biquad
	hp *graph.Biquad
}

func newFilterUnit() *filterUnit {
	return &filterUnit{
		wetDry: newWetDry(),
		lp:     graph.NewBiquad(graph.Lowpass, graph.LowPassCeil, 0.707, 0),
		hp:     graph.NewBiquad(graph.Highpass, graph.HighPassFloor, 0.707, 0),
	}
}

func (u *filterUnit) Kind() UnitKind { return UnitFilter }

func (u *filterUnit) Apply(s Settings, _ float64) {
	u.applyMix(s.Mix)
	q := lin(s.Param2, 0.5, 8)
	u.lp.SetQ(q)
	u.hp.SetQ(q)
	if s.Param1 <= 50 {
		// 0..50: lowpass sweeps 200Hz (closed) .. 20kHz (open)
		u.lp.SetFrequency(logMap(s.Param1*2, 200, graph.LowPassCeil))
		u.hp.SetFrequency(graph.HighPassFloor)
	} else {
		// 50..100: highpass sweeps 20Hz (open) .. 8kHz (closed)
		u.lp.SetFrequency(graph.LowPassCeil)
		u.hp.SetFrequency(logMap((s.Param1-50)*2, 20, 8000))
	}
}

func (u *filterUnit) Process(buf []float32) {
	wet := make([]float32, len(buf))
	copy(wet, buf)
	u.lp.Process(wet)
	u.hp.Process(wet)
	u.mix(buf, wet)
}

func (u *filterUnit) Reset() {
	u.lp.Reset()
	u.hp.Reset()
}

// newUnit constructs a unit of the given kind.
func newUnit(kind UnitKind) Unit {
	switch kind {
	case UnitDelay:
		return newDelayUnit()
	case UnitReverb:
		return newReverbUnit()
	case UnitFlanger:
		return newFlangerUnit()
	case UnitPhaser:
		return newPhaserUnit()
	case UnitChorus:
		return newChorusUnit()
	case UnitTremolo:
		return newTremoloUnit()
	case UnitDistortion:
		return newDistortionUnit()
	case UnitBitcrusher:
		return newBitcrusherUnit()
	case UnitFilter:
		return newFilterUnit()
	}
	return nil
}
