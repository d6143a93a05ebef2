// Package deck implements the two playback engines: track loading, the
// transport state machine, loops, cue points and scratch gestures.
package deck

import (
	"errors"
	"math"
	"sync"

	"github.com/spindeck/spindeck/internal/audio"
	"github.com/spindeck/spindeck/internal/graph"
	"github.com/spindeck/spindeck/internal/library"
	"go.uber.org/zap"
)

// Status is the deck transport state. Scratching carries its own
// "was playing" memory so invalid flag combinations cannot exist.
type Status int

const (
	StatusEmpty Status = iota
	StatusStopped
	StatusPlaying
	StatusScratching
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusPlaying:
		return "playing"
	case StatusScratching:
		return "scratching"
	default:
		return "empty"
	}
}

// Loop is a loop region. Active requires both bounds set and End > Start.
type Loop struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	HasStart bool    `json:"hasStart"`
	HasEnd   bool    `json:"hasEnd"`
	Active   bool    `json:"active"`
}

// Length returns the loop span in seconds, 0 when incomplete.
func (l Loop) Length() float64 {
	if !l.HasStart || !l.HasEnd || l.End <= l.Start {
		return 0
	}
	return l.End - l.Start
}

// View is the zoomed waveform window. Zoom >= 1 and
// WindowStart in [0, 1 - 1/Zoom].
type View struct {
	Zoom        float64 `json:"zoom"`
	WindowStart float64 `json:"windowStart"`
}

// MaxCues is the hot-cue pad count.
const MaxCues = 8

// ErrNoTrack is returned by transport operations on an empty deck.
var ErrNoTrack = errors.New("no track loaded")

// Decoder decodes an asset path into interleaved stereo samples. It is the
// external decoded-audio boundary.
type Decoder func(path string) ([]float32, error)

// Deck owns one playback chain's lifecycle.
type Deck struct {
	mu  sync.Mutex
	id  graph.DeckID
	g   *graph.Graph
	log *zap.Logger

	decode Decoder

	track    *library.Track
	samples  []float32
	analysis audio.Analysis
	epoch    uint64 // bumped on every load/eject; async results re-validate

	status   Status
	src      *source
	position float64 // simulated seconds, advanced by the transport clock
	duration float64
	rate     float64
	keyLock  bool
	preAmp   float64 // knob 0-100, 50 = unity

	loop Loop
	cues []float64 // sparse; negative = unset; trailing unset trimmed
	view View

	rotation float64 // platter angle, cosmetic

	scratch scratchState
}

// New creates an empty deck bound to its chain in the graph.
func New(id graph.DeckID, g *graph.Graph, decode Decoder, log *zap.Logger) *Deck {
	return &Deck{
		id:     id,
		g:      g,
		log:    log.With(zap.String("deck", id.String())),
		decode: decode,
		rate:   1,
		preAmp: 50,
		view:   View{Zoom: 1},
	}
}

// ID returns the deck's identity.
func (d *Deck) ID() graph.DeckID { return d.id }

// chain returns the deck's graph nodes, nil while the graph is unbuilt.
func (d *Deck) chain() *graph.DeckChain {
	if !d.g.Built() {
		return nil
	}
	return d.g.Decks[d.id]
}

// --- loading ---

// Load decodes a track and replaces the deck state wholesale, preserving
// the user-set pre-amp, rate and key-lock. Decoding is a suspension point:
// if the deck was loaded again (or ejected) while this decode ran, the
// stale result is dropped.
func (d *Deck) Load(track library.Track) error {
	d.mu.Lock()
	d.epoch++
	epoch := d.epoch
	d.mu.Unlock()

	samples, err := d.decode(track.Path)
	if err != nil {
		d.log.Warn("track load rejected", zap.String("track", track.Name), zap.Error(err))
		return err
	}
	analysis := audio.Analyze(samples, track.Name)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.epoch != epoch {
		d.log.Debug("stale decode dropped", zap.String("track", track.Name))
		return nil
	}

	d.stopSourceLocked()
	d.track = &track
	d.samples = samples
	d.analysis = analysis
	d.duration = audio.Seconds(len(samples) / audio.Channels)
	d.position = 0
	d.status = StatusStopped
	d.loop = Loop{}
	d.cues = nil
	d.view = View{Zoom: d.view.Zoom}
	d.scratch = scratchState{}
	d.applyPreAmpLocked()

	d.log.Info("track loaded",
		zap.String("track", track.Name),
		zap.Float64("duration", d.duration),
		zap.String("key", analysis.Key),
		zap.Float64("bpm", analysis.BPM))
	return nil
}

// Eject clears the deck back to empty, keeping user toggles. The Auto-DJ
// uses this to retire a deck after a transition.
func (d *Deck) Eject() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.epoch++
	d.stopSourceLocked()
	d.track = nil
	d.samples = nil
	d.analysis = audio.Analysis{}
	d.status = StatusEmpty
	d.position = 0
	d.duration = 0
	d.rate = 1
	d.loop = Loop{}
	d.cues = nil
	d.scratch = scratchState{}
	if c := d.chain(); c != nil {
		c.ResetTransition()
	}
}

// Track returns the loaded track, if any.
func (d *Deck) Track() (library.Track, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.track == nil {
		return library.Track{}, false
	}
	return *d.track, true
}

// Analysis returns the load-time analysis.
func (d *Deck) Analysis() audio.Analysis {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.analysis
}

// Loudness returns the RMS estimate used for auto-gain matching.
func (d *Deck) Loudness() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.analysis.Loudness
}

// --- transport ---

// Play starts playback from the current position with a fresh source.
func (d *Deck) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playLocked()
}

func (d *Deck) playLocked() error {
	if d.track == nil {
		return ErrNoTrack
	}
	if !d.g.EnsureBuilt() {
		return nil // audio inert: transport state still advances nothing
	}
	d.applyPreAmpLocked() // the graph may be younger than the knob
	d.stopSourceLocked()
	d.src = newSource(d.samples, d.position, d.rate)
	d.applyLoopToSourceLocked()
	d.status = StatusPlaying
	return nil
}

// Stop pauses playback, keeping the position.
func (d *Deck) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.track == nil {
		return ErrNoTrack
	}
	d.stopSourceLocked()
	d.status = StatusStopped
	return nil
}

// TogglePlay flips between playing and stopped.
func (d *Deck) TogglePlay() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.status {
	case StatusPlaying:
		d.stopSourceLocked()
		d.status = StatusStopped
		return nil
	case StatusStopped:
		return d.playLocked()
	case StatusEmpty:
		return ErrNoTrack
	default:
		return nil // a scratch gesture owns the transport
	}
}

// Seek jumps to a position. Simulated time is wall-clock-derived, so every
// seek forces a fresh source rather than trusting the old cursor.
func (d *Deck) Seek(seconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seekLocked(seconds)
}

func (d *Deck) seekLocked(seconds float64) error {
	if d.track == nil {
		return ErrNoTrack
	}
	d.position = clamp(seconds, 0, d.duration)
	if d.status == StatusPlaying {
		d.stopSourceLocked()
		d.src = newSource(d.samples, d.position, d.rate)
		d.applyLoopToSourceLocked()
	}
	return nil
}

// SetRate sets the playback-rate multiplier.
func (d *Deck) SetRate(rate float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rate <= 0 {
		rate = 0.01
	}
	d.rate = rate
	if d.src != nil {
		d.src.rate = rate
	}
}

// Rate returns the playback-rate multiplier.
func (d *Deck) Rate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

// SetKeyLock toggles pitch compensation.
func (d *Deck) SetKeyLock(on bool) {
	d.mu.Lock()
	d.keyLock = on
	d.mu.Unlock()
}

// KeyLock reports whether key-lock is enabled.
func (d *Deck) KeyLock() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keyLock
}

// DetuneCents returns the pitch compensation applied under key-lock:
// exactly -1200 * log2(rate), zero when key-lock is off or rate is 1.
func (d *Deck) DetuneCents() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.keyLock {
		return 0
	}
	return KeyLockDetune(d.rate)
}

// KeyLockDetune computes the inverse-log2 detune, in cents, that holds
// musical key constant while tempo changes.
func KeyLockDetune(rate float64) float64 {
	return -1200 * math.Log2(rate)
}

// SetPreAmp sets the pre-amp knob (0-100, 50 = unity, +/-12dB exponential).
func (d *Deck) SetPreAmp(knob float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.preAmp = clamp(knob, 0, 100)
	d.applyPreAmpLocked()
}

// PreAmp returns the pre-amp knob position.
func (d *Deck) PreAmp() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.preAmp
}

// PreAmpGain maps the knob exponentially onto +/-12dB around unity.
func PreAmpGain(knob float64) float64 {
	db := (clamp(knob, 0, 100) - 50) / 50 * 12
	return math.Pow(10, db/20)
}

func (d *Deck) applyPreAmpLocked() {
	if c := d.chain(); c != nil {
		c.PreAmp.Set(PreAmpGain(d.preAmp))
	}
}

func (d *Deck) stopSourceLocked() {
	if d.src != nil {
		d.src.stop()
		d.src = nil
	}
}

// --- loops ---

// SetLoopIn captures the loop start at the current position.
func (d *Deck) SetLoopIn() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loop.Start = d.position
	d.loop.HasStart = true
	// A new in-point invalidates an earlier end
	if d.loop.HasEnd && d.loop.End <= d.loop.Start {
		d.loop.HasEnd = false
		d.loop.Active = false
	}
	d.applyLoopToSourceLocked()
}

// SetLoopOut captures the loop end and activates the loop when valid.
func (d *Deck) SetLoopOut() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loop.HasStart || d.position <= d.loop.Start {
		return
	}
	d.loop.End = d.position
	d.loop.HasEnd = true
	d.loop.Active = true
	d.applyLoopToSourceLocked()
}

// AutoLoop sets a loop of n beats from the current position using the
// track's BPM, and activates it.
func (d *Deck) AutoLoop(beats float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.track == nil || d.analysis.BPM <= 0 || beats <= 0 {
		return
	}
	length := 60 / d.analysis.BPM * beats
	d.loop = Loop{
		Start:    d.position,
		End:      math.Min(d.position+length, d.duration),
		HasStart: true,
		HasEnd:   true,
		Active:   true,
	}
	d.applyLoopToSourceLocked()
}

// ToggleLoop flips loop activation; only valid with both bounds captured.
func (d *Deck) ToggleLoop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loop.Length() == 0 {
		return
	}
	d.loop.Active = !d.loop.Active
	d.applyLoopToSourceLocked()
}

// ClearLoop removes the loop region.
func (d *Deck) ClearLoop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loop = Loop{}
	d.applyLoopToSourceLocked()
}

// Loop returns the loop region.
func (d *Deck) Loop() Loop {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loop
}

// applyLoopToSourceLocked mutates the live source's loop flags directly.
func (d *Deck) applyLoopToSourceLocked() {
	if d.src == nil {
		return
	}
	d.src.setLoop(d.loop.Active && d.loop.Length() > 0, d.loop.Start, d.loop.End)
}

// --- cue points ---

// SetCue stores the current position on a pad.
func (d *Deck) SetCue(pad int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pad < 0 || pad >= MaxCues || d.track == nil {
		return
	}
	for len(d.cues) <= pad {
		d.cues = append(d.cues, -1)
	}
	d.cues[pad] = d.position
}

// JumpCue reseeks to a stored cue.
func (d *Deck) JumpCue(pad int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pad < 0 || pad >= len(d.cues) || d.cues[pad] < 0 {
		return nil
	}
	return d.seekLocked(d.cues[pad])
}

// DeleteCue clears a pad and trims trailing empty slots.
func (d *Deck) DeleteCue(pad int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pad < 0 || pad >= len(d.cues) {
		return
	}
	d.cues[pad] = -1
	for len(d.cues) > 0 && d.cues[len(d.cues)-1] < 0 {
		d.cues = d.cues[:len(d.cues)-1]
	}
}

// Cues returns a copy of the cue table; negative entries are unset pads.
func (d *Deck) Cues() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]float64, len(d.cues))
	copy(out, d.cues)
	return out
}

// --- view ---

// SetZoom sets the waveform zoom factor (>= 1), clamping the window.
func (d *Deck) SetZoom(zoom float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if zoom < 1 {
		zoom = 1
	}
	d.view.Zoom = zoom
	d.view.WindowStart = clamp(d.view.WindowStart, 0, 1-1/zoom)
}

// View returns the waveform view state.
func (d *Deck) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.view
}

// --- transport clock ---

// Tick is the transport clock entry point: finishes any pending
// scratch-resume, then advances simulated time.
func (d *Deck) Tick(dt float64) TickResult {
	d.resumeAfterScratch()
	return d.Advance(dt)
}

// TickResult reports what the transport clock did to the deck this frame.
type TickResult struct {
	LoopWrapped bool
	Ended       bool
}

// Advance moves simulated time forward by dt (wall-clock seconds). Called
// by the transport clock only. Loop wrap-around forces a reseek of the real
// source: simulated time is derived from wall-clock deltas, never read back
// from the audio side, so the source must be re-anchored rather than
// trusted.
func (d *Deck) Advance(dt float64) TickResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	var res TickResult
	if d.status == StatusScratching {
		return res
	}
	if d.status != StatusPlaying {
		return res
	}

	d.position += dt * d.rate
	d.rotation += dt * d.rate * 2 * math.Pi * (33.0 / 60) // 33 RPM, cosmetic

	if d.loop.Active && d.loop.Length() > 0 && d.position >= d.loop.End {
		span := d.loop.Length()
		d.position = d.loop.Start + mod(d.position-d.loop.End, span)
		// Re-anchor audio inside the loop window.
		d.stopSourceLocked()
		d.src = newSource(d.samples, d.position, d.rate)
		d.applyLoopToSourceLocked()
		res.LoopWrapped = true
	}

	if d.position >= d.duration && d.duration > 0 {
		d.position = d.duration
		d.stopSourceLocked()
		d.status = StatusStopped
		res.Ended = true
	}

	d.recenterViewLocked()
	return res
}

// recenterViewLocked keeps the playhead away from the zoomed window's edge.
func (d *Deck) recenterViewLocked() {
	if d.view.Zoom <= 1 || d.duration == 0 {
		return
	}
	width := 1 / d.view.Zoom
	rel := d.position / d.duration
	if rel > d.view.WindowStart+width*0.8 || rel < d.view.WindowStart {
		d.view.WindowStart = clamp(rel-width/2, 0, 1-width)
	}
}

// Rotation returns the cosmetic platter angle in radians.
func (d *Deck) Rotation() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rotation
}

// --- state for consumers ---

// Snapshot is the deck state pushed to the console each transport tick.
type Snapshot struct {
	Status   string    `json:"status"`
	TrackID  string    `json:"trackId,omitempty"`
	Name     string    `json:"name,omitempty"`
	Position float64   `json:"position"`
	Duration float64   `json:"duration"`
	Rate     float64   `json:"rate"`
	KeyLock  bool      `json:"keyLock"`
	Detune   float64   `json:"detune"`
	Loop     Loop      `json:"loop"`
	Cues     []float64 `json:"cues"`
	View     View      `json:"view"`
	Rotation float64   `json:"rotation"`
	Spectrum []float64 `json:"spectrum,omitempty"`
}

// Snapshot captures the deck for the UI.
func (d *Deck) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		Status:   d.status.String(),
		Position: d.position,
		Duration: d.duration,
		Rate:     d.rate,
		KeyLock:  d.keyLock,
		Loop:     d.loop,
		Cues:     append([]float64(nil), d.cues...),
		View:     d.view,
		Rotation: d.rotation,
	}
	if d.keyLock {
		s.Detune = KeyLockDetune(d.rate)
	}
	if d.track != nil {
		s.TrackID = d.track.ID
		s.Name = d.track.Name
	}
	return s
}

// Status returns the transport state.
func (d *Deck) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Position returns the simulated playhead in seconds.
func (d *Deck) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

// Duration returns the loaded track length in seconds.
func (d *Deck) Duration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duration
}

// Remaining returns seconds left at the current rate; the Auto-DJ's
// transition trigger watches this.
func (d *Deck) Remaining() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rate <= 0 {
		return d.duration - d.position
	}
	return (d.duration - d.position) / d.rate
}

// --- audio render ---

// RenderFrame writes the deck's next audio frame into buf: the active
// source (plus any scratch snippet) through the pre-amp, captured by the
// pre-fader tap, then the fader and the transition chain. The scratch
// noise bed is mixed in pre-fader.
func (d *Deck) RenderFrame(buf []float32) {
	c := d.chain()
	if c == nil {
		return
	}

	// Sources are mutated under the deck lock (rate, loop window, stop), so
	// the cursor advances under it too.
	d.mu.Lock()
	if d.src != nil {
		d.src.mixInto(buf, 1)
	}
	if d.scratch.snippet != nil {
		d.scratch.snippet.mixInto(buf, 1)
	}
	d.mu.Unlock()

	c.PreAmp.Process(buf)
	c.Noise.MixInto(buf)
	c.Tap.Process(buf)
	c.Fader.Process(buf)
	c.HighPass.Process(buf)
	c.LowPass.Process(buf)
	c.ShelfFade.Process(buf)
}

// CueFrame writes the deck's gated pre-fader signal for the headphone bus.
// It reads the tap's most recent capture so the cue path hears the deck
// regardless of fader position.
func (d *Deck) CueFrame(buf []float32) {
	c := d.chain()
	if c == nil {
		return
	}
	mono := c.Tap.Samples(len(buf) / audio.Channels)
	for i, s := range mono {
		for ch := 0; ch < audio.Channels; ch++ {
			buf[i*audio.Channels+ch] = s
		}
	}
	c.CueGate.Process(buf)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
