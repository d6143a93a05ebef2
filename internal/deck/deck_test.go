package deck

import (
	"errors"
	"math"
	"testing"

	"github.com/spindeck/spindeck/internal/audio"
	"github.com/spindeck/spindeck/internal/graph"
	"github.com/spindeck/spindeck/internal/library"
	"go.uber.org/zap"
)

// fakeDecoder returns a silent 20-second stereo buffer for any path.
func fakeDecoder(path string) ([]float32, error) {
	return make([]float32, 20*audio.SampleRate*audio.Channels), nil
}

func testDeck(t *testing.T) *Deck {
	t.Helper()
	g := graph.New(zap.NewNop())
	if !g.EnsureBuilt() {
		t.Fatal("graph build failed")
	}
	return New(graph.DeckA, g, fakeDecoder, zap.NewNop())
}

func loadedDeck(t *testing.T) *Deck {
	t.Helper()
	d := testDeck(t)
	if err := d.Load(library.Track{ID: "t1", Name: "test", Path: "test.mp3", BPM: 120}); err != nil {
		t.Fatal(err)
	}
	return d
}

// --- key-lock ---

func TestKeyLockDetuneFormula(t *testing.T) {
	tests := []struct {
		rate, want float64
	}{
		{1, 0},
		{2, -1200},
		{0.5, 1200},
		{1.06, -1200 * math.Log2(1.06)},
	}
	for _, tt := range tests {
		if got := KeyLockDetune(tt.rate); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("KeyLockDetune(%v) = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestDetuneOnlyUnderKeyLock(t *testing.T) {
	d := loadedDeck(t)
	d.SetRate(1.5)
	if got := d.DetuneCents(); got != 0 {
		t.Errorf("detune without key-lock = %v, want 0", got)
	}
	d.SetKeyLock(true)
	if got := d.DetuneCents(); math.Abs(got+1200*math.Log2(1.5)) > 1e-9 {
		t.Errorf("detune = %v", got)
	}
}

// --- pre-amp ---

func TestPreAmpGainCurve(t *testing.T) {
	if g := PreAmpGain(50); g != 1 {
		t.Errorf("knob 50 = %v, want unity", g)
	}
	if g := PreAmpGain(100); math.Abs(g-math.Pow(10, 12.0/20)) > 1e-9 {
		t.Errorf("knob 100 = %v, want +12dB", g)
	}
	if g := PreAmpGain(0); math.Abs(g-math.Pow(10, -12.0/20)) > 1e-9 {
		t.Errorf("knob 0 = %v, want -12dB", g)
	}
}

// --- loading ---

func TestLoadReplacesStatePreservingToggles(t *testing.T) {
	d := testDeck(t)
	d.SetKeyLock(true)
	d.SetPreAmp(70)

	if err := d.Load(library.Track{ID: "t1", Name: "one", Path: "a.mp3"}); err != nil {
		t.Fatal(err)
	}
	d.SetCue(0)
	d.AutoLoop(4)

	if err := d.Load(library.Track{ID: "t2", Name: "two", Path: "b.mp3"}); err != nil {
		t.Fatal(err)
	}
	if !d.KeyLock() {
		t.Error("key-lock lost on load")
	}
	if d.PreAmp() != 70 {
		t.Error("pre-amp lost on load")
	}
	if len(d.Cues()) != 0 {
		t.Error("cues survived a wholesale replace")
	}
	if d.Loop().Active {
		t.Error("loop survived a wholesale replace")
	}
	if d.Status() != StatusStopped {
		t.Errorf("status after load = %v, want stopped", d.Status())
	}
}

func TestLoadDecodeFailureLeavesDeckAlone(t *testing.T) {
	g := graph.New(zap.NewNop())
	g.EnsureBuilt()
	bad := New(graph.DeckA, g, func(string) ([]float32, error) {
		return nil, errors.New("corrupt")
	}, zap.NewNop())
	if err := bad.Load(library.Track{ID: "x", Name: "x", Path: "x.mp3"}); err == nil {
		t.Fatal("decode failure should surface as a rejected load")
	}
	if bad.Status() != StatusEmpty {
		t.Error("failed load changed deck state")
	}
}

func TestStaleDecodeDropped(t *testing.T) {
	g := graph.New(zap.NewNop())
	g.EnsureBuilt()

	entered := make(chan struct{})
	release := make(chan struct{})
	slow := func(path string) ([]float32, error) {
		if path == "slow.mp3" {
			close(entered)
			<-release
		}
		return make([]float32, audio.SampleRate*audio.Channels), nil
	}
	d := New(graph.DeckA, g, slow, zap.NewNop())

	done := make(chan error)
	go func() { done <- d.Load(library.Track{ID: "old", Name: "old", Path: "slow.mp3"}) }()
	<-entered

	// A newer load wins the deck while the first decode is suspended.
	if err := d.Load(library.Track{ID: "new", Name: "new", Path: "fast.mp3"}); err != nil {
		t.Fatal(err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	tr, ok := d.Track()
	if !ok || tr.ID != "new" {
		t.Errorf("deck holds %q, want the newer load", tr.ID)
	}
}

// --- transport ---

func TestTogglePlay(t *testing.T) {
	d := loadedDeck(t)
	if err := d.TogglePlay(); err != nil {
		t.Fatal(err)
	}
	if d.Status() != StatusPlaying {
		t.Fatalf("status = %v, want playing", d.Status())
	}
	if err := d.TogglePlay(); err != nil {
		t.Fatal(err)
	}
	if d.Status() != StatusStopped {
		t.Fatalf("status = %v, want stopped", d.Status())
	}
}

func TestPlayEmptyDeck(t *testing.T) {
	d := testDeck(t)
	if err := d.Play(); !errors.Is(err, ErrNoTrack) {
		t.Errorf("Play on empty deck = %v, want ErrNoTrack", err)
	}
}

func TestSeekClampsToTrack(t *testing.T) {
	d := loadedDeck(t)
	d.Seek(999)
	if got := d.Position(); got != d.Duration() {
		t.Errorf("seek past end landed at %v, want %v", got, d.Duration())
	}
	d.Seek(-5)
	if got := d.Position(); got != 0 {
		t.Errorf("seek before start landed at %v, want 0", got)
	}
}

// --- loop wrap ---

func TestLoopWrapReseeks(t *testing.T) {
	d := loadedDeck(t)
	d.Seek(10)
	d.SetLoopIn()
	d.Seek(14)
	d.SetLoopOut()
	if err := d.Play(); err != nil {
		t.Fatal(err)
	}

	d.Seek(14.5)
	// Advance simulated time past the loop end: 14.5 + 0.5 = 15,
	// which wraps to 10 + ((15-14) mod 4) = 11.
	res := d.Advance(0.5)
	if !res.LoopWrapped {
		t.Fatal("loop end crossing did not wrap")
	}
	if got := d.Position(); math.Abs(got-11) > 1e-9 {
		t.Errorf("wrapped position = %v, want 11", got)
	}
	if pos := d.Position(); pos < 10 || pos >= 14 {
		t.Errorf("position %v escaped the loop window", pos)
	}
}

func TestAdvanceStopsAtEnd(t *testing.T) {
	d := loadedDeck(t)
	d.Seek(19.9)
	d.Play()
	res := d.Advance(1)
	if !res.Ended {
		t.Fatal("reaching the end did not stop the deck")
	}
	if d.Position() != d.Duration() {
		t.Errorf("position = %v, want clamped to %v", d.Position(), d.Duration())
	}
	if d.Status() != StatusStopped {
		t.Errorf("status = %v, want stopped", d.Status())
	}
}

func TestAutoLoopLength(t *testing.T) {
	d := loadedDeck(t)
	d.Seek(5)
	d.AutoLoop(4)
	l := d.Loop()
	if !l.Active {
		t.Fatal("auto-loop not active")
	}
	wantLen := 60 / d.Analysis().BPM * 4
	if math.Abs(l.Length()-wantLen) > 1e-9 {
		t.Errorf("loop length = %v, want %v", l.Length(), wantLen)
	}
}

func TestLoopOutBeforeInIgnored(t *testing.T) {
	d := loadedDeck(t)
	d.Seek(10)
	d.SetLoopIn()
	d.Seek(8)
	d.SetLoopOut()
	if d.Loop().Active {
		t.Error("loop activated with end before start")
	}
}

// --- cues ---

func TestCueSetJumpDelete(t *testing.T) {
	d := loadedDeck(t)
	d.Seek(3)
	d.SetCue(2)
	d.Seek(7)
	d.SetCue(4)

	if got := len(d.Cues()); got != 5 {
		t.Fatalf("cue table length = %d, want 5", got)
	}

	d.Seek(0)
	d.JumpCue(2)
	if got := d.Position(); got != 3 {
		t.Errorf("jump landed at %v, want 3", got)
	}

	// Deleting the last pad trims trailing empties back past pad 2.
	d.DeleteCue(4)
	if got := len(d.Cues()); got != 3 {
		t.Errorf("cue table length after trim = %d, want 3", got)
	}
}

func TestJumpUnsetCueIsNoop(t *testing.T) {
	d := loadedDeck(t)
	d.Seek(5)
	if err := d.JumpCue(7); err != nil {
		t.Fatal(err)
	}
	if d.Position() != 5 {
		t.Error("jumping an unset cue moved the playhead")
	}
}

// --- scratch ---

func TestScratchRestoresPlayback(t *testing.T) {
	d := loadedDeck(t)
	d.Play()
	d.ScratchStart()
	if d.Status() != StatusScratching {
		t.Fatalf("status = %v, want scratching", d.Status())
	}
	d.ScratchMove(0.2, 1.5)
	d.ScratchEnd()
	if d.Status() != StatusStopped {
		t.Fatalf("status right after gesture = %v, want stopped until next tick", d.Status())
	}
	d.Tick(0)
	if d.Status() != StatusPlaying {
		t.Errorf("status after tick = %v, want playing restored", d.Status())
	}
}

func TestScratchFromStoppedStaysStopped(t *testing.T) {
	d := loadedDeck(t)
	d.ScratchStart()
	d.ScratchMove(0.1, 1)
	d.ScratchEnd()
	d.Tick(0)
	if d.Status() != StatusStopped {
		t.Errorf("status = %v, want stopped", d.Status())
	}
}

func TestScratchClampsPosition(t *testing.T) {
	d := loadedDeck(t)
	d.Seek(1)
	d.ScratchStart()
	d.ScratchMove(-10, 2)
	if d.Position() != 0 {
		t.Errorf("scratch position = %v, want clamped to 0", d.Position())
	}
}

// --- view ---

func TestViewWindowClamped(t *testing.T) {
	d := loadedDeck(t)
	d.SetZoom(4)
	v := d.View()
	if v.WindowStart < 0 || v.WindowStart > 1-1/v.Zoom {
		t.Errorf("window start %v outside [0, %v]", v.WindowStart, 1-1/v.Zoom)
	}
	d.SetZoom(0.5)
	if d.View().Zoom != 1 {
		t.Error("zoom below 1 not clamped")
	}
}

func TestViewRecentersNearEdge(t *testing.T) {
	d := loadedDeck(t)
	d.SetZoom(4)
	d.Seek(15) // 75% into a 20s track, outside the initial quarter window
	d.Play()
	d.Advance(0.016)
	v := d.View()
	rel := d.Position() / d.Duration()
	if rel < v.WindowStart || rel > v.WindowStart+1/v.Zoom {
		t.Errorf("playhead %v outside window [%v, %v]", rel, v.WindowStart, v.WindowStart+1/v.Zoom)
	}
}

// --- eject ---

func TestEjectResets(t *testing.T) {
	d := loadedDeck(t)
	d.Play()
	d.SetRate(1.2)
	d.Eject()
	if d.Status() != StatusEmpty {
		t.Errorf("status = %v, want empty", d.Status())
	}
	if d.Rate() != 1 {
		t.Errorf("rate = %v, want reset to 1", d.Rate())
	}
	if _, ok := d.Track(); ok {
		t.Error("track still present after eject")
	}
}

// --- render / control interleaving ---

func TestRenderFrameWhileControlsChange(t *testing.T) {
	d := loadedDeck(t)
	if err := d.Play(); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			d.SetRate(1 + float64(i%16)/100)
			d.Seek(float64(i % 10))
			d.SetLoopIn()
			d.ClearLoop()
		}
	}()
	buf := make([]float32, audio.FrameSamples)
	for i := 0; i < 500; i++ {
		d.RenderFrame(buf)
	}
	<-done
	if got := d.Rate(); got < 1 || got > 1.16 {
		t.Errorf("rate after interleaved pushes = %v", got)
	}
}
