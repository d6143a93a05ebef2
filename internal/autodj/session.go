// Package autodj implements the automatic track sequencer: tiered selection
// over the library, harmonic/tempo/energy matching, and the timed transition
// automation that drives the decks and the mixer as actuators.
package autodj

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/spindeck/spindeck/internal/deck"
	"github.com/spindeck/spindeck/internal/graph"
	"github.com/spindeck/spindeck/internal/library"
	"github.com/spindeck/spindeck/internal/mixer"
	"go.uber.org/zap"
)

// State is the session's lifecycle phase. Next-pick selection runs in the
// background and is not a phase of its own; Transitioning is exclusive, at
// most one transition runs at a time.
type State int

const (
	StateDisabled State = iota
	StatePlaying
	StateTransitioning
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StateTransitioning:
		return "transitioning"
	default:
		return "disabled"
	}
}

// ErrExhausted is returned when no fallback tier can produce a track.
var ErrExhausted = errors.New("no playable track found")

const (
	stepInterval = 50 * time.Millisecond
	historyLimit = 100
)

// Session is one Auto-DJ run. It observes the transport clock through
// Observe and operates the decks, the graph's transition filters and the
// crossfader.
type Session struct {
	mu    sync.Mutex
	log   *zap.Logger
	lib   *library.Library
	g     *graph.Graph
	decks [graph.NumDecks]*deck.Deck
	mix   *mixer.Mixer
	rng   *rand.Rand

	state         State
	active        graph.DeckID
	settings      Settings
	next          *library.Track
	history       []string // track IDs, most recent first
	queues        [graph.NumDecks][]library.Track
	selecting     bool
	activeTrackID string
	cancel        chan struct{} // owned by the in-flight transition
}

// NewSession creates a disabled session over the two decks.
func NewSession(lib *library.Library, g *graph.Graph, decks [graph.NumDecks]*deck.Deck, mix *mixer.Mixer, log *zap.Logger) *Session {
	return &Session{
		log:      log.Named("autodj"),
		lib:      lib,
		g:        g,
		decks:    decks,
		mix:      mix,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		settings: DefaultSettings(),
	}
}

// Enable starts the session: if the active deck is empty it picks and loads
// a track, then plays and snaps the crossfader to the active side.
func (s *Session) Enable() error {
	s.mu.Lock()
	if s.state != StateDisabled {
		s.mu.Unlock()
		return nil
	}
	s.state = StatePlaying
	active := s.active
	s.mu.Unlock()

	d := s.decks[active]
	cur, ok := d.Track()
	if !ok {
		pick, found := s.pickNext(active, "")
		if !found {
			s.log.Warn("nothing to play, disabling")
			s.Disable()
			return ErrExhausted
		}
		if err := d.Load(pick); err != nil {
			s.Disable()
			return err
		}
		s.consumeQueue(active, pick.ID)
		cur = pick
	}
	if d.Status() != deck.StatusPlaying {
		if err := d.Play(); err != nil {
			s.Disable()
			return err
		}
	}
	s.mix.SnapCrossfader(faderSide(active))

	s.mu.Lock()
	s.activeTrackID = cur.ID
	s.mu.Unlock()
	s.selectNextAsync()

	s.log.Info("enabled", zap.String("deck", active.String()), zap.String("track", cur.Name))
	return nil
}

// Disable aborts any transition and stops the session.
func (s *Session) Disable() {
	s.Abort()
	s.mu.Lock()
	s.state = StateDisabled
	s.mu.Unlock()
	s.log.Info("disabled")
}

// Abort cancels a pending transition deterministically (clear-then-nil),
// neutralizes the transition filters, resets both decks' pitch and volume,
// zeroes the crossfader and clears the pick caches. Safe from any state.
func (s *Session) Abort() {
	s.mu.Lock()
	if s.cancel != nil {
		close(s.cancel)
		s.cancel = nil
	}
	s.next = nil
	s.activeTrackID = ""
	if s.state == StateTransitioning {
		s.state = StatePlaying
	}
	s.mu.Unlock()

	for id := graph.DeckID(0); id < graph.NumDecks; id++ {
		s.decks[id].SetRate(1)
		s.mix.SetDeckVolume(id, 100)
		if s.g.Built() {
			s.g.Decks[id].ResetTransition()
		}
	}
	s.mix.SetCrossfader(0)
}

// Observe is called once per transport tick. It invalidates the cached next
// pick when the active track changes identity, and arms a transition when
// the active deck is close enough to its end.
func (s *Session) Observe() {
	s.mu.Lock()
	if s.state != StatePlaying {
		s.mu.Unlock()
		return
	}
	active := s.active
	trigger := s.settings.Trigger
	s.mu.Unlock()

	d := s.decks[active]
	cur, ok := d.Track()
	if !ok {
		return
	}

	s.mu.Lock()
	if s.activeTrackID != cur.ID {
		s.activeTrackID = cur.ID
		s.next = nil
		s.mu.Unlock()
		s.selectNextAsync()
		return
	}
	s.mu.Unlock()

	if d.Status() == deck.StatusPlaying && d.Remaining() <= trigger {
		s.StartTransition()
	}
}

// StartTransition moves to the cached next pick, computing one on the spot
// when the cache is empty. Exhaustion disables the session.
func (s *Session) StartTransition() {
	s.mu.Lock()
	if s.state != StatePlaying {
		s.mu.Unlock()
		return
	}
	active := s.active
	pick := s.next
	s.mu.Unlock()

	out := s.decks[active]
	outTrack, ok := out.Track()
	if !ok {
		return
	}

	if pick == nil {
		p, found := s.pickNext(active.Other(), "")
		if !found {
			s.log.Warn("selection exhausted, disabling")
			s.Disable()
			return
		}
		pick = &p
	}

	s.mu.Lock()
	if s.state != StatePlaying {
		s.mu.Unlock()
		return
	}
	s.state = StateTransitioning
	cancel := make(chan struct{})
	s.cancel = cancel
	settings := s.settings
	s.mu.Unlock()

	go s.runTransition(active, outTrack, *pick, settings, cancel)
}

// Skip forces the transition to the cached pick right now instead of waiting
// for the trigger threshold.
func (s *Session) Skip() { s.StartTransition() }

// Repick recomputes the next pick, explicitly excluding the cached one.
func (s *Session) Repick() (library.Track, bool) {
	s.mu.Lock()
	exclude := ""
	if s.next != nil {
		exclude = s.next.ID
	}
	target := s.active.Other()
	s.next = nil
	s.mu.Unlock()

	pick, ok := s.pickNext(target, exclude)
	if !ok {
		return library.Track{}, false
	}
	s.mu.Lock()
	s.next = &pick
	s.mu.Unlock()
	return pick, true
}

// SetNext overrides the cached pick; the suggestion flow uses this.
func (s *Session) SetNext(t library.Track) {
	s.mu.Lock()
	s.next = &t
	s.mu.Unlock()
}

// NextPick returns the cached pick, if one has been computed.
func (s *Session) NextPick() (library.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		return library.Track{}, false
	}
	return *s.next, true
}

// Settings returns the current configuration.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the configuration and invalidates the cached pick,
// since the matching criteria may have changed.
func (s *Session) SetSettings(cfg Settings) {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultSettings().Duration
	}
	if cfg.Trigger <= 0 {
		cfg.Trigger = DefaultSettings().Trigger
	}
	s.mu.Lock()
	s.settings = cfg
	s.next = nil
	enabled := s.state != StateDisabled
	s.mu.Unlock()
	if enabled {
		s.selectNextAsync()
	}
}

// State returns the session phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveDeck returns the deck currently carrying the floor.
func (s *Session) ActiveDeck() graph.DeckID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// History returns the played track IDs, most recent first.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// --- per-deck queues ---

// Enqueue appends a track to a deck's queue; consulted when the track
// source is per-deck queues instead of the whole library.
func (s *Session) Enqueue(id graph.DeckID, t library.Track) {
	s.mu.Lock()
	s.queues[id] = append(s.queues[id], t)
	s.mu.Unlock()
}

// Queue returns a copy of a deck's queue.
func (s *Session) Queue(id graph.DeckID) []library.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]library.Track(nil), s.queues[id]...)
}

// ClearQueue empties a deck's queue.
func (s *Session) ClearQueue(id graph.DeckID) {
	s.mu.Lock()
	s.queues[id] = nil
	s.mu.Unlock()
}

// consumeQueue removes a track from a deck's queue once it is actually
// loaded; picks only peek so that a dropped pick is not lost.
func (s *Session) consumeQueue(id graph.DeckID, trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[id]
	for i, t := range q {
		if t.ID == trackID {
			s.queues[id] = append(q[:i:i], q[i+1:]...)
			return
		}
	}
}

// --- selection ---

// pickNext peeks the next track for the target deck from the configured
// source without consuming it.
func (s *Session) pickNext(target graph.DeckID, exclude string) (library.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings := s.settings
	var current *library.Track
	if t, ok := s.decks[s.active].Track(); ok {
		current = &t
	}

	if settings.Source == SourceQueue {
		for _, t := range s.queues[target] {
			if (exclude == "" || t.ID != exclude) && (current == nil || t.ID != current.ID) {
				return t, true
			}
		}
		return library.Track{}, false
	}
	return selectNext(s.lib.Tracks(), s.history, current, exclude, settings, s.rng)
}

// selectNextAsync computes the next pick in the background. The result is
// installed only if the active track has not changed in the meantime.
func (s *Session) selectNextAsync() {
	s.mu.Lock()
	if s.selecting || s.state == StateDisabled {
		s.mu.Unlock()
		return
	}
	s.selecting = true
	baseline := s.activeTrackID
	target := s.active.Other()
	s.mu.Unlock()

	go func() {
		pick, ok := s.pickNext(target, "")
		s.mu.Lock()
		s.selecting = false
		if ok && s.state != StateDisabled && s.activeTrackID == baseline {
			s.next = &pick
		}
		s.mu.Unlock()
	}()
}

// --- transition execution ---

func (s *Session) runTransition(outID graph.DeckID, outTrack, pick library.Track, settings Settings, cancel chan struct{}) {
	inID := outID.Other()
	out, in := s.decks[outID], s.decks[inID]

	style := settings.Style
	duration := settings.Duration
	if style == StyleAutomatic {
		var scale float64
		style, scale = effectiveStyle(outTrack, pick)
		duration *= scale
	}
	if duration < 1 {
		duration = 1
	}

	if err := in.Load(pick); err != nil {
		s.log.Warn("incoming load failed", zap.String("track", pick.Name), zap.Error(err))
		s.failTransition(cancel)
		return
	}
	s.consumeQueue(inID, pick.ID)

	// Loading blocks on the decoder; an abort may have landed meanwhile, and
	// the incoming deck must not start playing after one.
	select {
	case <-cancel:
		return
	default:
	}

	if settings.AutoGain {
		in.SetPreAmp(preAmpKnob(autoGainRatio(out.Loudness(), in.Loudness())))
	}
	if settings.BeatMatch {
		in.SetRate(beatMatchRate(out.Analysis().BPM, in.Analysis().BPM))
	}

	// Pre-roll: the bass swap rides a short locked loop out.
	if style == StyleBassSwap {
		out.AutoLoop(4)
	}

	s.applyStep(style, outID, inID, 0)
	if err := in.Play(); err != nil {
		s.log.Warn("incoming play failed", zap.Error(err))
		s.failTransition(cancel)
		return
	}

	s.log.Info("transition started",
		zap.String("style", style.String()),
		zap.Float64("duration", duration),
		zap.String("out", outTrack.Name),
		zap.String("in", pick.Name))

	if style == StyleHardCut {
		s.mix.SnapCrossfader(faderSide(inID))
		select {
		case <-cancel:
			return
		case <-time.After(hardCutSettleSeconds * time.Second):
		}
		s.finishTransition(outID, inID, outTrack, pick, cancel)
		return
	}

	ticker := time.NewTicker(stepInterval)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			p := time.Since(start).Seconds() / duration
			if p >= 1 {
				s.applyStep(style, outID, inID, 1)
				s.finishTransition(outID, inID, outTrack, pick, cancel)
				return
			}
			s.applyStep(style, outID, inID, p)
		}
	}
}

// applyStep pushes one automation frame; p runs 0 to 1 over the transition.
func (s *Session) applyStep(style Style, outID, inID graph.DeckID, p float64) {
	from, to := faderSide(outID), faderSide(inID)
	switch style {
	case StyleFadeInOut:
		// Independent volume fades; the crossfader is left alone.
		s.mix.SetDeckVolume(outID, (1-p)*100)
		s.mix.SetDeckVolume(inID, p*100)
		return
	case StyleHardCut:
		return
	default:
		s.mix.SetCrossfader(from + (to-from)*p)
	}

	if !s.g.Built() {
		return
	}
	switch style {
	case StyleBassSwap:
		outDB, inDB := bassSwapShelves(p)
		s.g.Decks[outID].ShelfFade.SetGainDB(outDB)
		s.g.Decks[inID].ShelfFade.SetGainDB(inDB)
	case StyleFilterFade:
		outHP, inLP := filterSweep(p)
		s.g.Decks[outID].HighPass.SetFrequency(outHP)
		s.g.Decks[inID].LowPass.SetFrequency(inLP)
	case StyleEQFade:
		s.g.Decks[outID].ShelfFade.SetGainDB(transitionShelfCutDB * p)
	}
}

// failTransition returns the session to Playing after a transition that
// never got off the ground, dropping the failed pick.
func (s *Session) failTransition(cancel chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != cancel {
		return
	}
	s.cancel = nil
	s.next = nil
	s.state = StatePlaying
}

// finishTransition retires the outgoing deck and flips the active side.
func (s *Session) finishTransition(outID, inID graph.DeckID, outTrack, pick library.Track, cancel chan struct{}) {
	s.mu.Lock()
	if s.cancel != cancel {
		s.mu.Unlock()
		return // aborted while the last frame was in flight
	}
	s.cancel = nil
	s.state = StatePlaying
	s.active = inID
	s.activeTrackID = pick.ID
	s.next = nil
	s.history = append([]string{outTrack.ID}, s.history...)
	if len(s.history) > historyLimit {
		s.history = s.history[:historyLimit]
	}
	s.mu.Unlock()

	out := s.decks[outID]
	out.Stop()
	out.Eject()
	if s.g.Built() {
		s.g.Decks[outID].ResetTransition()
		s.g.Decks[inID].ResetTransition()
	}
	s.decks[inID].SetRate(1)
	s.mix.SetDeckVolume(outID, 100)
	s.mix.SetDeckVolume(inID, 100)
	s.mix.SnapCrossfader(faderSide(inID))

	s.log.Info("transition complete",
		zap.String("deck", inID.String()),
		zap.String("track", pick.Name))
	s.selectNextAsync()
}

// Snapshot is the session state pushed to the console.
type Snapshot struct {
	State      string         `json:"state"`
	ActiveDeck string         `json:"activeDeck"`
	Next       *library.Track `json:"next,omitempty"`
	History    []string       `json:"history"`
	Settings   Settings       `json:"settings"`
}

// Snapshot captures the session for the UI.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:      s.state.String(),
		ActiveDeck: s.active.String(),
		History:    append([]string(nil), s.history...),
		Settings:   s.settings,
	}
	if s.next != nil {
		n := *s.next
		snap.Next = &n
	}
	return snap
}
