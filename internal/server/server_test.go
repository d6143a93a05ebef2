package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spindeck/spindeck/internal/audio"
	"github.com/spindeck/spindeck/internal/beats"
	"github.com/spindeck/spindeck/internal/deck"
	"github.com/spindeck/spindeck/internal/engine"
	"github.com/spindeck/spindeck/internal/fx"
	"github.com/spindeck/spindeck/internal/graph"
	"github.com/spindeck/spindeck/internal/library"
	"github.com/spindeck/spindeck/internal/mixer"
	"github.com/spindeck/spindeck/internal/store"
	"github.com/spindeck/spindeck/internal/stream"
	"go.uber.org/zap"
)

func fakeDecoder(path string) ([]float32, error) {
	return make([]float32, 30*audio.SampleRate*audio.Channels), nil
}

type fixture struct {
	srv *Server
	eng *engine.Engine
	lib *library.Library
	ts  *httptest.Server
}

func newFixture(t *testing.T, trackNames ...string) *fixture {
	t.Helper()
	log := zap.NewNop()

	libDir := t.TempDir()
	for _, name := range trackNames {
		path := filepath.Join(libDir, name+".mp3")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	lib, err := library.Open(libDir, log)
	if err != nil {
		t.Fatal(err)
	}

	g := graph.New(log)
	if !g.EnsureBuilt() {
		t.Fatal("graph build failed")
	}
	st, err := store.Open(t.TempDir(), log)
	if err != nil {
		t.Fatal(err)
	}
	var decks [graph.NumDecks]*deck.Deck
	for id := graph.DeckID(0); id < graph.NumDecks; id++ {
		decks[id] = deck.New(id, g, fakeDecoder, log)
	}
	eng := engine.New(engine.Deps{
		Graph:  g,
		Decks:  decks,
		Mixer:  mixer.New(g),
		FX:     fx.NewChain(),
		Pads:   beats.NewBank(st, log),
		Store:  st,
		Master: stream.NewBroadcaster("master"),
		Cue:    stream.NewBroadcaster("cue"),
		Log:    log,
	})

	srv := New(eng, lib, nil, Streams{}, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: srv, eng: eng, lib: lib, ts: ts}
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func (f *fixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	resp, err := http.Post(f.ts.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

// --- REST ---

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, "one", "two")
	resp := f.get(t, "/api/status")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
	var body struct {
		Tracks int `json:"tracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Tracks != 2 {
		t.Errorf("tracks = %d, want 2", body.Tracks)
	}
}

func TestLibraryEndpoint(t *testing.T) {
	f := newFixture(t, "alpha", "beta")
	resp := f.get(t, "/api/library")
	defer resp.Body.Close()
	var tracks []library.Track
	if err := json.NewDecoder(resp.Body).Decode(&tracks); err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 2 {
		t.Fatalf("library returned %d tracks, want 2", len(tracks))
	}
	for _, tr := range tracks {
		if tr.ID == "" || tr.Name == "" {
			t.Errorf("track missing identity: %+v", tr)
		}
	}
}

func TestAutoDJEndpointsWithoutSession(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/autodj/enable", "/autodj/disable", "/autodj/skip"} {
		resp := f.post(t, "/api"+path, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, resp.StatusCode)
		}
	}
}

func TestSuggestEndpointsWithoutClient(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/api/suggest/next", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("suggest status = %d, want 503", resp.StatusCode)
	}
}

func TestFXPresetEndpoints(t *testing.T) {
	f := newFixture(t)
	f.eng.FX().SetActive(fx.UnitDelay, true)

	resp := f.post(t, "/api/fx/presets", map[string]string{"name": "club"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d", resp.StatusCode)
	}

	resp = f.get(t, "/api/fx/presets")
	var names []string
	json.NewDecoder(resp.Body).Decode(&names)
	resp.Body.Close()
	if len(names) != 1 || names[0] != "club" {
		t.Fatalf("preset names = %v, want [club]", names)
	}

	resp = f.post(t, "/api/fx/presets/nope", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("apply unknown status = %d, want 404", resp.StatusCode)
	}

	f.eng.FX().SetActive(fx.UnitDelay, false)
	resp = f.post(t, "/api/fx/presets/club", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("apply status = %d", resp.StatusCode)
	}
	if !f.eng.FX().IsActive(fx.UnitDelay) {
		t.Error("preset apply did not restore the chain")
	}

	req, _ := http.NewRequest(http.MethodDelete, f.ts.URL+"/api/fx/presets/club", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := f.eng.FXPresetNames(); len(got) != 0 {
		t.Errorf("presets after delete = %v, want none", got)
	}
}

func TestPresetNameRequired(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/api/fx/presets", map[string]string{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty name status = %d, want 400", resp.StatusCode)
	}
}

func TestMIDIBindingsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp := f.get(t, "/api/midi")
	defer resp.Body.Close()
	var body struct {
		Controls []string          `json:"controls"`
		Bindings map[string]string `json:"bindings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Controls) == 0 {
		t.Error("control catalogue empty")
	}
	if len(body.Bindings) != 0 {
		t.Errorf("fresh mapping has bindings: %v", body.Bindings)
	}
}

func TestPadEndpoints(t *testing.T) {
	f := newFixture(t)
	resp := f.get(t, "/api/pads")
	var kit map[string][]beats.Pad
	json.NewDecoder(resp.Body).Decode(&kit)
	resp.Body.Close()
	if len(kit) != len(beats.Categories) {
		t.Errorf("kit has %d categories, want %d", len(kit), len(beats.Categories))
	}

	resp = f.get(t, "/api/pads/sounds")
	var sounds []string
	json.NewDecoder(resp.Body).Decode(&sounds)
	resp.Body.Close()
	if len(sounds) == 0 {
		t.Error("no pad sounds listed")
	}
}

// --- websocket console ---

func dialConsole(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/console"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestConsoleDispatchesMixerCommand(t *testing.T) {
	f := newFixture(t)
	conn := dialConsole(t, f)

	err := conn.WriteJSON(map[string]any{"action": "mixer.crossfader", "value": 0.75})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool {
		return f.eng.Mixer().Crossfader() == 0.75
	})
}

func TestConsoleLoadsDeckAsync(t *testing.T) {
	f := newFixture(t, "warehouse")
	conn := dialConsole(t, f)

	trackID := f.lib.Tracks()[0].ID
	err := conn.WriteJSON(map[string]any{"action": "deck.load", "deck": "a", "trackId": trackID})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool {
		_, ok := f.eng.Deck(graph.DeckA).Track()
		return ok
	})
}

func TestConsoleStreamsSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.eng.Run(ctx)

	conn := dialConsole(t, f)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snap engine.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("no snapshot received: %v", err)
	}
	if snap.Metronome.BPM != 120 {
		t.Errorf("snapshot metronome bpm = %v, want 120", snap.Metronome.BPM)
	}
}

func TestConsoleIgnoresUnknownActions(t *testing.T) {
	f := newFixture(t)
	conn := dialConsole(t, f)
	if err := conn.WriteJSON(map[string]any{"action": "nonsense"}); err != nil {
		t.Fatal(err)
	}
	// Connection must survive garbage.
	if err := conn.WriteJSON(map[string]any{"action": "mixer.master", "value": 40.0}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool {
		return f.eng.MasterVolume() == 40
	})
}
