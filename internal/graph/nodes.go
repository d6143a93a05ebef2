package graph

import (
	"math"
	"sync"

	"github.com/spindeck/spindeck/internal/audio"
)

// All nodes process interleaved stereo float32 frames in place.

// --- Gain ---

// Gain scales a signal with smoothed parameter pushes.
type Gain struct {
	level *Smoother
}

func NewGain(initial float64) *Gain {
	return &Gain{level: NewSmoother(DefaultSmoothing, initial)}
}

func (g *Gain) Set(level float64)  { g.level.Set(level) }
func (g *Gain) Snap(level float64) { g.level.Snap(level) }
func (g *Gain) Target() float64    { return g.level.Target() }

func (g *Gain) Process(buf []float32) {
	for i := 0; i < len(buf); i += audio.Channels {
		v := float32(g.level.Next())
		for c := 0; c < audio.Channels; c++ {
			buf[i+c] *= v
		}
	}
}

// --- Biquad ---

// FilterKind selects a biquad design.
type FilterKind int

const (
	Lowpass FilterKind = iota
	Highpass
	LowShelf
	HighShelf
	Peaking
	Bandpass
	Allpass
)

// Biquad is a second-order IIR filter, direct form I, with per-channel
// state. Coefficients follow the RBJ cookbook designs.
type Biquad struct {
	kind FilterKind
	freq *Smoother
	gain *Smoother // dB, shelf/peaking only
	q    float64

	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     [audio.Channels]float64

	lastFreq, lastGain float64
}

// NewBiquad creates a filter of the given design. Frequency pushes are
// smoothed in log space.
func NewBiquad(kind FilterKind, freq, q, gainDB float64) *Biquad {
	b := &Biquad{
		kind: kind,
		freq: NewLogSmoother(DefaultSmoothing, freq),
		gain: NewSmoother(DefaultSmoothing, gainDB),
		q:    q,
	}
	b.design(freq, gainDB)
	return b
}

func (b *Biquad) SetFrequency(hz float64) { b.freq.Set(clampFreq(hz)) }
func (b *Biquad) SetGainDB(db float64)    { b.gain.Set(db) }
func (b *Biquad) SnapFrequency(hz float64) {
	b.freq.Snap(clampFreq(hz))
}
func (b *Biquad) SnapGainDB(db float64) { b.gain.Snap(db) }

func (b *Biquad) TargetFrequency() float64 { return b.freq.Target() }
func (b *Biquad) TargetGainDB() float64    { return b.gain.Target() }

// SetQ changes the resonance; takes effect on the next processed frame.
func (b *Biquad) SetQ(q float64) {
	if q < 0.1 {
		q = 0.1
	}
	b.q = q
	b.lastFreq = -1 // force redesign
}

func clampFreq(hz float64) float64 {
	if hz < 10 {
		return 10
	}
	if hz > audio.SampleRate/2-100 {
		return audio.SampleRate/2 - 100
	}
	return hz
}

// Reset clears the filter state.
func (b *Biquad) Reset() {
	for c := range b.x1 {
		b.x1[c], b.x2[c], b.y1[c], b.y2[c] = 0, 0, 0, 0
	}
}

func (b *Biquad) design(freq, gainDB float64) {
	omega := 2 * math.Pi * freq / audio.SampleRate
	sin, cos := math.Sin(omega), math.Cos(omega)
	alpha := sin / (2 * b.q)
	a := math.Pow(10, gainDB/40)

	var b0, b1, b2, a0, a1, a2 float64
	switch b.kind {
	case Lowpass:
		b0, b1, b2 = (1-cos)/2, 1-cos, (1-cos)/2
		a0, a1, a2 = 1+alpha, -2*cos, 1-alpha
	case Highpass:
		b0, b1, b2 = (1+cos)/2, -(1+cos), (1+cos)/2
		a0, a1, a2 = 1+alpha, -2*cos, 1-alpha
	case Bandpass:
		b0, b1, b2 = alpha, 0, -alpha
		a0, a1, a2 = 1+alpha, -2*cos, 1-alpha
	case Allpass:
		b0, b1, b2 = 1-alpha, -2*cos, 1+alpha
		a0, a1, a2 = 1+alpha, -2*cos, 1-alpha
	case LowShelf:
		beta := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) - (a-1)*cos + beta)
		b1 = 2 * a * ((a - 1) - (a+1)*cos)
		b2 = a * ((a + 1) - (a-1)*cos - beta)
		a0 = (a + 1) + (a-1)*cos + beta
		a1 = -2 * ((a - 1) + (a+1)*cos)
		a2 = (a + 1) + (a-1)*cos - beta
	case HighShelf:
		beta := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) + (a-1)*cos + beta)
		b1 = -2 * a * ((a - 1) + (a+1)*cos)
		b2 = a * ((a + 1) + (a-1)*cos - beta)
		a0 = (a + 1) - (a-1)*cos + beta
		a1 = 2 * ((a - 1) - (a+1)*cos)
		a2 = (a + 1) - (a-1)*cos - beta
	case Peaking:
		b0, b1, b2 = 1+alpha*a, -2*cos, 1-alpha*a
		a0, a1, a2 = 1+alpha/a, -2*cos, 1-alpha/a
	}

	inv := 1 / a0
	b.b0, b.b1, b.b2 = b0*inv, b1*inv, b2*inv
	b.a1, b.a2 = a1*inv, a2*inv
	b.lastFreq, b.lastGain = freq, gainDB
}

// Process filters a frame, re-designing once per frame from the smoothed
// frequency/gain targets.
func (b *Biquad) Process(buf []float32) {
	freq := b.freq.NextFrame(len(buf) / audio.Channels)
	gain := b.gain.NextFrame(len(buf) / audio.Channels)
	if freq != b.lastFreq || gain != b.lastGain {
		b.design(freq, gain)
	}

	for i := 0; i < len(buf); i += audio.Channels {
		for c := 0; c < audio.Channels; c++ {
			x0 := float64(buf[i+c])
			y0 := b.b0*x0 + b.b1*b.x1[c] + b.b2*b.x2[c] - b.a1*b.y1[c] - b.a2*b.y2[c]
			b.x2[c], b.x1[c] = b.x1[c], x0
			b.y2[c], b.y1[c] = b.y1[c], y0
			buf[i+c] = float32(y0)
		}
	}
}

// --- Delay ---

// Delay is a circular delay line with linear-interpolated reads, one buffer
// per channel.
type Delay struct {
	buf      [audio.Channels][]float32
	size     int
	writePos int
}

// NewDelay allocates a delay line holding up to maxSeconds of audio.
func NewDelay(maxSeconds float64) *Delay {
	size := int(maxSeconds*audio.SampleRate) + 1
	d := &Delay{size: size}
	for c := range d.buf {
		d.buf[c] = make([]float32, size)
	}
	return d
}

// Reset clears the delay buffers.
func (d *Delay) Reset() {
	for c := range d.buf {
		for i := range d.buf[c] {
			d.buf[c][i] = 0
		}
	}
	d.writePos = 0
}

// Write pushes one sample per channel and advances the write head.
func (d *Delay) Write(samples [audio.Channels]float32) {
	for c := range d.buf {
		d.buf[c][d.writePos] = samples[c]
	}
	d.writePos++
	if d.writePos >= d.size {
		d.writePos = 0
	}
}

// Read returns the sample delaySamples behind the write head, with linear
// interpolation for fractional delays.
func (d *Delay) Read(channel int, delaySamples float64) float32 {
	if delaySamples < 0 {
		delaySamples = 0
	}
	if delaySamples > float64(d.size-2) {
		delaySamples = float64(d.size - 2)
	}
	pos := float64(d.writePos) - delaySamples
	if pos < 0 {
		pos += float64(d.size)
	}
	idx := int(pos)
	frac := float32(pos - float64(idx))
	s1 := d.buf[channel][idx%d.size]
	s2 := d.buf[channel][(idx+1)%d.size]
	return s1*(1-frac) + s2*frac
}

// --- Noise ---

// Noise is the continuously-running scratch-noise bed: band-limited white
// noise behind a smoothed gain, muted by default.
type Noise struct {
	gain   *Smoother
	filter *Biquad
	state  uint32
}

func NewNoise() *Noise {
	return &Noise{
		gain:   NewSmoother(DefaultSmoothing, 0),
		filter: NewBiquad(Bandpass, 2500, 1.2, 0),
		state:  0x2545f491,
	}
}

// SetGain ramps the noise level (0 mutes).
func (n *Noise) SetGain(level float64) { n.gain.Set(level) }

// SetCenter moves the band-limit center frequency; the scratch gesture
// modulates it by velocity.
func (n *Noise) SetCenter(hz float64) { n.filter.SetFrequency(hz) }

func (n *Noise) next() float32 {
	// xorshift32, cheap and stateful
	n.state ^= n.state << 13
	n.state ^= n.state >> 17
	n.state ^= n.state << 5
	return float32(int32(n.state))/float32(math.MaxInt32)*0.5 - 0.25
}

// MixInto adds the noise bed to a frame. Skips all work while muted.
func (n *Noise) MixInto(buf []float32) {
	if n.gain.Target() == 0 && n.gain.Current() == 0 {
		return
	}
	tmp := make([]float32, len(buf))
	for i := 0; i < len(tmp); i += audio.Channels {
		g := float32(n.gain.Next())
		s := n.next() * g
		for c := 0; c < audio.Channels; c++ {
			tmp[i+c] = s
		}
	}
	n.filter.Process(tmp)
	for i := range buf {
		buf[i] += tmp[i]
	}
}

// --- Tap ---

// Tap captures a mono mix of whatever flows through it into a ring buffer,
// for waveform and spectrum snapshots. It sits pre-fader on each deck and
// post-gain on the master bus.
type Tap struct {
	mu   sync.Mutex
	buf  []float32
	pos  int
	size int
}

// SpectrumBands is the number of bands in an analyser snapshot.
const SpectrumBands = 16

func NewTap(bufSize int) *Tap {
	return &Tap{buf: make([]float32, bufSize), size: bufSize}
}

// Process passes audio through while capturing a mono mix.
func (t *Tap) Process(buf []float32) {
	t.mu.Lock()
	for i := 0; i < len(buf); i += audio.Channels {
		var sum float32
		for c := 0; c < audio.Channels; c++ {
			sum += buf[i+c]
		}
		t.buf[t.pos] = sum / audio.Channels
		t.pos = (t.pos + 1) % t.size
	}
	t.mu.Unlock()
}

// Samples returns the last n captured samples in chronological order.
func (t *Tap) Samples(n int) []float32 {
	if n > t.size {
		n = t.size
	}
	out := make([]float32, n)
	t.mu.Lock()
	start := (t.pos - n + t.size) % t.size
	for i := 0; i < n; i++ {
		out[i] = t.buf[(start+i)%t.size]
	}
	t.mu.Unlock()
	return out
}

// Spectrum returns a SpectrumBands-point band-energy snapshot computed by
// the Goertzel algorithm over the most recent capture window. Frequencies
// are log-spaced from 40Hz to 16kHz.
func (t *Tap) Spectrum() []float64 {
	window := t.Samples(1024)
	out := make([]float64, SpectrumBands)
	if len(window) == 0 {
		return out
	}
	const fLo, fHi = 40.0, 16000.0
	ratio := math.Pow(fHi/fLo, 1/float64(SpectrumBands-1))
	freq := fLo
	for b := 0; b < SpectrumBands; b++ {
		out[b] = goertzel(window, freq)
		freq *= ratio
	}
	return out
}

func goertzel(window []float32, freq float64) float64 {
	k := 2 * math.Cos(2*math.Pi*freq/audio.SampleRate)
	var s0, s1, s2 float64
	for _, x := range window {
		s0 = float64(x) + k*s1 - s2
		s2, s1 = s1, s0
	}
	power := s1*s1 + s2*s2 - k*s1*s2
	if power < 0 {
		power = 0
	}
	return math.Sqrt(power) / float64(len(window))
}
