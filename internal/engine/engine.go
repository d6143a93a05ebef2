// Package engine is the console's conductor: it owns the render loop that
// pulls audio through the signal graph at frame rate, the transport clock
// that advances simulated deck positions at UI rate, and the command surface
// the server and MIDI layer drive.
//
// The two clocks are deliberately separate. The render loop is the sample
// clock: it produces exactly one 20ms frame per tick and is the only thing
// that touches graph nodes' hot paths. The transport clock is wall-clock
// driven and only moves simulated positions; it never reads time back from
// the audio side.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spindeck/spindeck/internal/audio"
	"github.com/spindeck/spindeck/internal/autodj"
	"github.com/spindeck/spindeck/internal/beats"
	"github.com/spindeck/spindeck/internal/deck"
	"github.com/spindeck/spindeck/internal/fx"
	"github.com/spindeck/spindeck/internal/graph"
	"github.com/spindeck/spindeck/internal/metronome"
	"github.com/spindeck/spindeck/internal/mic"
	"github.com/spindeck/spindeck/internal/midi"
	"github.com/spindeck/spindeck/internal/mixer"
	"github.com/spindeck/spindeck/internal/store"
	"github.com/spindeck/spindeck/internal/stream"
	"go.uber.org/zap"
)

const (
	transportInterval = 16 * time.Millisecond // ~60Hz UI clock

	midiNamespace   = "midimap"
	presetNamespace = "fxpresets"
)

// Deps wires the engine to the components it conducts.
type Deps struct {
	Graph   *graph.Graph
	Decks   [graph.NumDecks]*deck.Deck
	Mixer   *mixer.Mixer
	FX      *fx.Chain
	Pads    *beats.Bank
	Store   *store.Store
	Session *autodj.Session
	Mic     *mic.Capture // nil when no input device is available
	Master  *stream.Broadcaster
	Cue     *stream.Broadcaster
	Log     *zap.Logger
}

// oneShot is a buffer scheduled at an absolute sample time: metronome
// clicks and beat-pad hits, mixed post-master.
type oneShot struct {
	at  int64 // frame position on the sample clock
	buf []float32
}

// Engine runs the render and transport loops and dispatches commands.
type Engine struct {
	log     *zap.Logger
	g       *graph.Graph
	decks   [graph.NumDecks]*deck.Deck
	mix     *mixer.Mixer
	fx      *fx.Chain
	pads    *beats.Bank
	st      *store.Store
	session *autodj.Session
	mic     *mic.Capture
	master  *stream.Broadcaster
	cue     *stream.Broadcaster

	mapping *midi.Mapping
	met     *metronome.Metronome

	clock atomic.Int64 // frames rendered since start

	mu        sync.Mutex
	shots     []oneShot
	masterVol float64 // knob 0-100, 100 = unity
	micLevel  float64 // talkover knob 0-100, 0 = muted
	fxFocus   fx.UnitKind

	subMu sync.Mutex
	subs  map[chan Snapshot]struct{}

	// reused render buffers, touched only by the render loop
	deckBuf   []float32
	micBuf    []float32
	mixBuf    []float32
	cueBuf    []float32
	phonesBuf []float32
	masterPCM []int16
	cuePCM    []int16
}

// New creates the engine, restores the persisted MIDI mapping and binds the
// metronome to the sample clock.
func New(d Deps) *Engine {
	e := &Engine{
		log:       d.Log.Named("engine"),
		g:         d.Graph,
		decks:     d.Decks,
		mix:       d.Mixer,
		fx:        d.FX,
		pads:      d.Pads,
		st:        d.Store,
		session:   d.Session,
		mic:       d.Mic,
		master:    d.Master,
		cue:       d.Cue,
		masterVol: 100,
		subs:      make(map[chan Snapshot]struct{}),
		deckBuf:   make([]float32, audio.FrameSamples),
		micBuf:    make([]float32, audio.FrameSamples),
		mixBuf:    make([]float32, audio.FrameSamples),
		cueBuf:    make([]float32, audio.FrameSamples),
		phonesBuf: make([]float32, audio.FrameSamples),
		masterPCM: make([]int16, audio.FrameSamples),
		cuePCM:    make([]int16, audio.FrameSamples),
	}

	e.mapping = midi.NewMapping(d.Log)
	var saved map[string]string
	if e.st.Load(midiNamespace, &saved) {
		e.mapping.Import(saved)
	}
	e.mapping.OnChange(func() {
		e.st.Save(midiNamespace, e.mapping.Export())
	})

	e.g.OnBuild(func() {
		e.mu.Lock()
		knob := e.masterVol
		e.mu.Unlock()
		e.g.Master.Set(knob / 100)
	})

	e.met = metronome.New(e, e, d.Log)
	return e
}

// Run starts both loops and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.renderLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		e.transportLoop(ctx)
	}()
	wg.Wait()
	e.met.Stop()
	// No render loop means no audio: late commands must degrade to no-ops
	// instead of scheduling into a graph nothing drains.
	e.g.MarkInert()
}

// --- sample clock ---

// Now returns the absolute frame position of the render clock.
func (e *Engine) Now() int64 { return e.clock.Load() }

// ScheduleSamples queues a buffer for mixing at an absolute frame position.
// Buffers scheduled entirely in the past are dropped. Scheduling is a
// command that needs audio, so it builds the graph; on an inert graph the
// buffer is discarded rather than queued forever.
func (e *Engine) ScheduleSamples(at int64, buf []float32) {
	if len(buf) == 0 {
		return
	}
	if !e.g.EnsureBuilt() {
		return
	}
	e.mu.Lock()
	e.shots = append(e.shots, oneShot{at: at, buf: buf})
	e.mu.Unlock()
}

// --- render loop ---

func (e *Engine) renderLoop(ctx context.Context) {
	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.renderFrame()
		}
	}
}

// renderFrame produces one 20ms frame: decks through their chains, summed
// into the FX entry, the master EQ section, scheduled one-shots, then the
// headphone blend. The clock advances even when the graph is unbuilt so
// sample-time consumers stay monotonic.
func (e *Engine) renderFrame() {
	defer e.clock.Add(audio.FrameSize)

	if !e.g.Built() {
		return
	}

	zero(e.mixBuf)
	for _, d := range e.decks {
		zero(e.deckBuf)
		d.RenderFrame(e.deckBuf)
		for i, s := range e.deckBuf {
			e.mixBuf[i] += s
		}
	}

	e.fx.Process(e.mixBuf)
	e.g.ProcessMasterSection(e.mixBuf)
	e.mixOneShots(e.mixBuf)
	e.mixMic(e.mixBuf)

	zero(e.cueBuf)
	for _, d := range e.decks {
		zero(e.deckBuf)
		d.CueFrame(e.deckBuf)
		for i, s := range e.deckBuf {
			e.cueBuf[i] += s
		}
	}
	e.g.BlendHeadphone(e.cueBuf, e.mixBuf, e.phonesBuf)

	audio.SamplesToInt16(e.mixBuf, e.masterPCM)
	audio.SamplesToInt16(e.phonesBuf, e.cuePCM)

	masterFrame := make([]int16, audio.FrameSamples)
	copy(masterFrame, e.masterPCM)
	e.master.Publish(masterFrame)

	cueFrame := make([]int16, audio.FrameSamples)
	copy(cueFrame, e.cuePCM)
	e.cue.Publish(cueFrame)
}

// mixOneShots adds every overlapping scheduled buffer into the frame and
// retires the ones fully consumed.
func (e *Engine) mixOneShots(buf []float32) {
	start := e.clock.Load()
	end := start + audio.FrameSize

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.shots[:0]
	for _, s := range e.shots {
		frames := int64(len(s.buf) / audio.Channels)
		if s.at+frames <= start {
			continue // entirely in the past
		}
		if s.at < end {
			from := s.at
			if from < start {
				from = start
			}
			to := s.at + frames
			if to > end {
				to = end
			}
			for f := from; f < to; f++ {
				dst := int(f-start) * audio.Channels
				src := int(f-s.at) * audio.Channels
				for c := 0; c < audio.Channels; c++ {
					buf[dst+c] += s.buf[src+c]
				}
			}
		}
		if s.at+frames > end {
			kept = append(kept, s)
		}
	}
	e.shots = kept
}

// mixMic adds the talkover input, post-master so deck EQ never colors it.
func (e *Engine) mixMic(buf []float32) {
	if e.mic == nil {
		return
	}
	e.mu.Lock()
	level := e.micLevel
	e.mu.Unlock()
	if level <= 0 {
		return
	}
	if !e.mic.ReadFrame(e.micBuf) {
		return
	}
	g := float32(level / 100)
	for i, s := range e.micBuf {
		buf[i] += s * g
	}
}

// --- transport clock ---

func (e *Engine) transportLoop(ctx context.Context) {
	ticker := time.NewTicker(transportInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			e.transportTick(dt)
		}
	}
}

// transportTick advances simulated deck time, lets the Auto-DJ observe the
// decks, and pushes a console snapshot.
func (e *Engine) transportTick(dt float64) {
	for _, d := range e.decks {
		res := d.Tick(dt)
		if res.Ended {
			e.log.Info("track ended", zap.String("deck", d.ID().String()))
		}
	}
	if e.session != nil {
		e.session.Observe()
	}
	e.publishSnapshot()
}

// --- snapshots ---

// MixerSnapshot is the mixer state pushed to the console.
type MixerSnapshot struct {
	Crossfader float64                 `json:"crossfader"`
	Volumes    [graph.NumDecks]float64 `json:"volumes"`
	CueDecks   [graph.NumDecks]bool    `json:"cueDecks"`
	Master     float64                 `json:"master"`
	Mic        float64                 `json:"mic"`
}

// FXSnapshot is one unit's state pushed to the console.
type FXSnapshot struct {
	Unit     string      `json:"unit"`
	Active   bool        `json:"active"`
	Settings fx.Settings `json:"settings"`
}

// MetronomeSnapshot is the click-track state pushed to the console.
type MetronomeSnapshot struct {
	Running bool    `json:"running"`
	BPM     float64 `json:"bpm"`
}

// Snapshot is the full console state pushed each transport tick.
type Snapshot struct {
	Decks     [graph.NumDecks]deck.Snapshot `json:"decks"`
	Mixer     MixerSnapshot                 `json:"mixer"`
	FX        []FXSnapshot                  `json:"fx"`
	AutoDJ    autodj.Snapshot               `json:"autodj"`
	Metronome MetronomeSnapshot             `json:"metronome"`
}

// Snapshot captures the whole console for the UI.
func (e *Engine) Snapshot() Snapshot {
	var snap Snapshot
	for i, d := range e.decks {
		s := d.Snapshot()
		if e.g.Built() {
			s.Spectrum = e.g.Decks[i].Tap.Spectrum()
		}
		snap.Decks[i] = s
	}
	snap.Mixer = MixerSnapshot{
		Crossfader: e.mix.Crossfader(),
		Master:     e.MasterVolume(),
		Mic:        e.MicLevel(),
	}
	for id := graph.DeckID(0); id < graph.NumDecks; id++ {
		snap.Mixer.Volumes[id] = e.mix.DeckVolume(id)
		snap.Mixer.CueDecks[id] = e.mix.Cue(id)
	}
	for k := fx.UnitKind(0); k < fx.NumUnits; k++ {
		snap.FX = append(snap.FX, FXSnapshot{
			Unit:     k.String(),
			Active:   e.fx.IsActive(k),
			Settings: e.fx.SettingsFor(k),
		})
	}
	if e.session != nil {
		snap.AutoDJ = e.session.Snapshot()
	}
	snap.Metronome = MetronomeSnapshot{
		Running: e.met.Running(),
		BPM:     e.met.BPM(),
	}
	return snap
}

// Subscribe registers a console snapshot channel; slow consumers have
// snapshots dropped, never queued.
func (e *Engine) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 1)
	e.subMu.Lock()
	e.subs[ch] = struct{}{}
	e.subMu.Unlock()
	return ch
}

// Unsubscribe removes a console snapshot channel.
func (e *Engine) Unsubscribe(ch chan Snapshot) {
	e.subMu.Lock()
	delete(e.subs, ch)
	e.subMu.Unlock()
}

func (e *Engine) publishSnapshot() {
	e.subMu.Lock()
	n := len(e.subs)
	e.subMu.Unlock()
	if n == 0 {
		return
	}
	snap := e.Snapshot()
	e.subMu.Lock()
	for ch := range e.subs {
		select {
		case ch <- snap:
		default:
			// stale snapshot still queued, skip this tick
		}
	}
	e.subMu.Unlock()
}

// --- component access for the server ---

// Deck returns one of the playback engines.
func (e *Engine) Deck(id graph.DeckID) *deck.Deck { return e.decks[id] }

// Mixer returns the mixer.
func (e *Engine) Mixer() *mixer.Mixer { return e.mix }

// FX returns the effect chain.
func (e *Engine) FX() *fx.Chain { return e.fx }

// Pads returns the beat pad bank.
func (e *Engine) Pads() *beats.Bank { return e.pads }

// Metronome returns the click track.
func (e *Engine) Metronome() *metronome.Metronome { return e.met }

// Mapping returns the MIDI binding table.
func (e *Engine) Mapping() *midi.Mapping { return e.mapping }

// AutoDJ returns the Auto-DJ session, nil when not configured.
func (e *Engine) AutoDJ() *autodj.Session { return e.session }

func zero(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}
