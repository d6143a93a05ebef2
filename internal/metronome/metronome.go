// Package metronome is the click-track scheduler. It runs its own coarse
// look-ahead loop but places every click at an exact sample position on the
// render clock, so timing precision comes from the audio side rather than
// the timer.
package metronome

import (
	"math"
	"sync"
	"time"

	"github.com/spindeck/spindeck/internal/audio"
	"go.uber.org/zap"
)

// Clock exposes the render loop's absolute sample position.
type Clock interface {
	Now() int64
}

// Sink accepts a synthesized buffer to be mixed into the master bus starting
// at an absolute sample time. Once handed over the event is fire-and-forget.
type Sink interface {
	ScheduleSamples(at int64, buf []float32)
}

// Subdivision is the number of ticks per beat.
type Subdivision int

const (
	SubQuarter   Subdivision = 1
	SubEighth    Subdivision = 2
	SubTriplet   Subdivision = 3
	SubSixteenth Subdivision = 4
)

// Timbre selects the click sound.
type Timbre int

const (
	TimbreBeep Timbre = iota
	TimbreWood
	TimbreClick
)

const (
	lookaheadInterval = 25 * time.Millisecond
	lookaheadHorizon  = 100 * time.Millisecond

	// Tap-tempo window.
	maxTaps     = 5
	tapResetGap = 2 * time.Second
	minBPM      = 40
	maxBPM      = 240

	subdivisionLevel = 0.4
)

// Metronome schedules clicks ahead of the render clock.
type Metronome struct {
	mu    sync.Mutex
	log   *zap.Logger
	clock Clock
	sink  Sink

	running     bool
	stop        chan struct{}
	bpm         float64
	beatsPerBar int
	sub         Subdivision
	timbre      Timbre
	volume      float64

	nextTick  int64 // absolute sample time of the next subdivision tick
	tickIndex int   // subdivision index within the current beat
	beat      int   // beat within the measure

	onBeat func(beat int) // visual callback, fired at the click's audio time

	taps []time.Time
}

// New creates a stopped metronome at 120 BPM, 4/4, quarter notes.
func New(clock Clock, sink Sink, log *zap.Logger) *Metronome {
	return &Metronome{
		log:         log.Named("metronome"),
		clock:       clock,
		sink:        sink,
		bpm:         120,
		beatsPerBar: 4,
		sub:         SubQuarter,
		volume:      1,
	}
}

// OnBeat registers the visual beat callback. It fires when the click's
// audio-clock time arrives, not when the click is scheduled.
func (m *Metronome) OnBeat(fn func(beat int)) {
	m.mu.Lock()
	m.onBeat = fn
	m.mu.Unlock()
}

// Start begins the look-ahead loop. Idempotent.
func (m *Metronome) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.nextTick = m.clock.Now()
	m.tickIndex = 0
	m.beat = 0
	stop := m.stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(lookaheadInterval)
		defer ticker.Stop()
		m.scheduleDue(m.clock.Now())
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.scheduleDue(m.clock.Now())
			}
		}
	}()
}

// Stop halts the loop; already-scheduled clicks still fire.
func (m *Metronome) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stop)
	m.stop = nil
}

// Running reports whether the loop is active.
func (m *Metronome) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// scheduleDue synthesizes and hands off every tick falling inside the
// look-ahead horizon, advancing the beat counters.
func (m *Metronome) scheduleDue(now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	horizon := now + int64(lookaheadHorizon.Seconds()*audio.SampleRate)
	for m.nextTick < horizon {
		main := m.tickIndex == 0
		accent := main && m.beat == 0
		level := m.volume
		if !main {
			level *= subdivisionLevel
		}
		m.sink.ScheduleSamples(m.nextTick, Click(m.timbre, accent, level))

		if main && m.onBeat != nil {
			// Defer the visual update until the click actually sounds.
			beat := m.beat
			fn := m.onBeat
			delay := time.Duration(float64(m.nextTick-now) / audio.SampleRate * float64(time.Second))
			if delay < 0 {
				delay = 0
			}
			time.AfterFunc(delay, func() { fn(beat) })
		}

		interval := 60 / m.bpm / float64(m.sub) * audio.SampleRate
		m.nextTick += int64(math.Round(interval))
		m.tickIndex++
		if m.tickIndex >= int(m.sub) {
			m.tickIndex = 0
			m.beat = (m.beat + 1) % m.beatsPerBar
		}
	}
}

// SetBPM sets the tempo, clamped to the playable range.
func (m *Metronome) SetBPM(bpm float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bpm = clampBPM(bpm)
}

// BPM returns the tempo.
func (m *Metronome) BPM() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bpm
}

// SetTimeSignature sets beats per measure.
func (m *Metronome) SetTimeSignature(beats int) {
	if beats < 1 {
		beats = 1
	}
	m.mu.Lock()
	m.beatsPerBar = beats
	m.mu.Unlock()
}

// SetSubdivision sets ticks per beat.
func (m *Metronome) SetSubdivision(sub Subdivision) {
	if sub < SubQuarter || sub > SubSixteenth {
		sub = SubQuarter
	}
	m.mu.Lock()
	m.sub = sub
	m.tickIndex = 0
	m.mu.Unlock()
}

// SetTimbre selects the click sound.
func (m *Metronome) SetTimbre(t Timbre) {
	m.mu.Lock()
	m.timbre = t
	m.mu.Unlock()
}

// SetVolume sets the click level (0-1).
func (m *Metronome) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	m.mu.Lock()
	m.volume = v
	m.mu.Unlock()
}

// Tap records a tap-tempo hit and returns the resulting BPM. A rolling
// window of the last 5 taps is kept; a gap over 2 s starts a fresh window.
func (m *Metronome) Tap(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.taps); n > 0 && now.Sub(m.taps[n-1]) > tapResetGap {
		m.taps = nil
	}
	m.taps = append(m.taps, now)
	if len(m.taps) > maxTaps {
		m.taps = m.taps[1:]
	}
	if len(m.taps) < 2 {
		return m.bpm
	}
	mean := m.taps[len(m.taps)-1].Sub(m.taps[0]).Seconds() / float64(len(m.taps)-1)
	m.bpm = clampBPM(math.Round(60 / mean))
	return m.bpm
}

func clampBPM(bpm float64) float64 {
	if bpm < minBPM {
		return minBPM
	}
	if bpm > maxBPM {
		return maxBPM
	}
	return bpm
}
