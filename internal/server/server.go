// Package server exposes the console over HTTP: a small REST API for the
// library, Auto-DJ and suggestions, the monitor stream endpoints, and a
// websocket console channel carrying control commands in and transport
// snapshots out.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/spindeck/spindeck/internal/autodj"
	"github.com/spindeck/spindeck/internal/beats"
	"github.com/spindeck/spindeck/internal/deck"
	"github.com/spindeck/spindeck/internal/engine"
	"github.com/spindeck/spindeck/internal/graph"
	"github.com/spindeck/spindeck/internal/library"
	"github.com/spindeck/spindeck/internal/midi"
	"github.com/spindeck/spindeck/internal/suggest"
	"go.uber.org/zap"
)

// Streams carries the monitor bus handlers mounted under the server.
type Streams struct {
	MasterOffer http.Handler // WebRTC SDP negotiation, master bus
	MasterMP3   http.Handler // chunked MP3 fallback, master bus
	CueOffer    http.Handler // WebRTC, headphone bus
	CueMP3      http.Handler // chunked MP3, headphone bus
}

// Server routes console traffic onto the engine.
type Server struct {
	log      *zap.Logger
	eng      *engine.Engine
	lib      *library.Library
	sugg     *suggest.Client
	router   *mux.Router
	upgrader websocket.Upgrader
}

// New creates the server and registers all routes. sugg may be nil when no
// suggestion backend is configured.
func New(eng *engine.Engine, lib *library.Library, sugg *suggest.Client, streams Streams, log *zap.Logger) *Server {
	s := &Server{
		log:    log.Named("server"),
		eng:    eng,
		lib:    lib,
		sugg:   sugg,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			// The console is same-origin in production and file:// in dev.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.routes(streams)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(streams Streams) {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/library", s.handleLibrary).Methods(http.MethodGet)

	api.HandleFunc("/autodj", s.handleAutoDJStatus).Methods(http.MethodGet)
	api.HandleFunc("/autodj/enable", s.handleAutoDJEnable).Methods(http.MethodPost)
	api.HandleFunc("/autodj/disable", s.handleAutoDJDisable).Methods(http.MethodPost)
	api.HandleFunc("/autodj/skip", s.handleAutoDJSkip).Methods(http.MethodPost)
	api.HandleFunc("/autodj/repick", s.handleAutoDJRepick).Methods(http.MethodPost)
	api.HandleFunc("/autodj/settings", s.handleAutoDJSettings).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/autodj/queue/{deck}", s.handleAutoDJQueue).Methods(http.MethodGet, http.MethodPost, http.MethodDelete)

	api.HandleFunc("/suggest/next", s.handleSuggestNext).Methods(http.MethodPost)
	api.HandleFunc("/suggest/hype", s.handleSuggestHype).Methods(http.MethodPost)

	api.HandleFunc("/fx/presets", s.handlePresets).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/fx/presets/{name}", s.handlePreset).Methods(http.MethodPost, http.MethodDelete)

	api.HandleFunc("/midi", s.handleMIDIBindings).Methods(http.MethodGet)

	api.HandleFunc("/pads", s.handlePads).Methods(http.MethodGet)
	api.HandleFunc("/pads/sounds", s.handlePadSounds).Methods(http.MethodGet)

	s.router.HandleFunc("/console", s.handleConsole)

	if streams.MasterOffer != nil {
		s.router.Handle("/offer", streams.MasterOffer)
	}
	if streams.MasterMP3 != nil {
		s.router.Handle("/stream", streams.MasterMP3)
	}
	if streams.CueOffer != nil {
		s.router.Handle("/cue/offer", streams.CueOffer)
	}
	if streams.CueMP3 != nil {
		s.router.Handle("/cue/stream", streams.CueMP3)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// --- status and library ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"console": s.eng.Snapshot(),
		"tracks":  s.lib.Len(),
	})
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.lib.Tracks())
}

// --- Auto-DJ ---

func (s *Server) handleAutoDJStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := s.autoDJ(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleAutoDJEnable(w http.ResponseWriter, r *http.Request) {
	session, ok := s.autoDJ(w)
	if !ok {
		return
	}
	if err := session.Enable(); err != nil {
		if errors.Is(err, autodj.ErrExhausted) {
			writeError(w, http.StatusConflict, "library has no playable tracks")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleAutoDJDisable(w http.ResponseWriter, r *http.Request) {
	session, ok := s.autoDJ(w)
	if !ok {
		return
	}
	session.Disable()
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleAutoDJSkip(w http.ResponseWriter, r *http.Request) {
	session, ok := s.autoDJ(w)
	if !ok {
		return
	}
	session.Skip()
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleAutoDJRepick(w http.ResponseWriter, r *http.Request) {
	session, ok := s.autoDJ(w)
	if !ok {
		return
	}
	pick, ok := session.Repick()
	if !ok {
		writeError(w, http.StatusConflict, "no alternative track available")
		return
	}
	writeJSON(w, http.StatusOK, pick)
}

func (s *Server) handleAutoDJSettings(w http.ResponseWriter, r *http.Request) {
	session, ok := s.autoDJ(w)
	if !ok {
		return
	}
	if r.Method == http.MethodPost {
		var cfg autodj.Settings
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid settings")
			return
		}
		session.SetSettings(cfg)
	}
	writeJSON(w, http.StatusOK, session.Settings())
}

func (s *Server) handleAutoDJQueue(w http.ResponseWriter, r *http.Request) {
	session, ok := s.autoDJ(w)
	if !ok {
		return
	}
	id, ok := parseDeck(mux.Vars(r)["deck"])
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown deck")
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req struct {
			TrackID string `json:"trackId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		track, found := s.lib.Get(req.TrackID)
		if !found {
			writeError(w, http.StatusNotFound, "unknown track")
			return
		}
		session.Enqueue(id, track)
	case http.MethodDelete:
		session.ClearQueue(id)
	}
	writeJSON(w, http.StatusOK, session.Queue(id))
}

func (s *Server) autoDJ(w http.ResponseWriter) (*autodj.Session, bool) {
	session := s.eng.AutoDJ()
	if session == nil {
		writeError(w, http.StatusServiceUnavailable, "auto-dj not configured")
		return nil, false
	}
	return session, true
}

// --- suggestions ---

// currentTrack picks the track the suggestion prompt describes: a playing
// deck first, then any loaded deck.
func (s *Server) currentTrack() (library.Track, bool) {
	for id := graph.DeckID(0); id < graph.NumDecks; id++ {
		d := s.eng.Deck(id)
		if t, ok := d.Track(); ok && d.Status() == deck.StatusPlaying {
			return t, true
		}
	}
	for id := graph.DeckID(0); id < graph.NumDecks; id++ {
		if t, ok := s.eng.Deck(id).Track(); ok {
			return t, true
		}
	}
	return library.Track{}, false
}

func (s *Server) handleSuggestNext(w http.ResponseWriter, r *http.Request) {
	if s.sugg == nil {
		writeError(w, http.StatusServiceUnavailable, "suggestions not configured")
		return
	}
	current, ok := s.currentTrack()
	if !ok {
		writeError(w, http.StatusConflict, "no track loaded")
		return
	}
	candidates := make([]library.Track, 0, s.lib.Len())
	for _, t := range s.lib.Tracks() {
		if t.ID != current.ID {
			candidates = append(candidates, t)
		}
	}
	pick, err := s.sugg.SuggestTrack(r.Context(), current, candidates)
	if err != nil {
		s.suggestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pick)
}

func (s *Server) handleSuggestHype(w http.ResponseWriter, r *http.Request) {
	if s.sugg == nil {
		writeError(w, http.StatusServiceUnavailable, "suggestions not configured")
		return
	}
	current, ok := s.currentTrack()
	if !ok {
		writeError(w, http.StatusConflict, "no track loaded")
		return
	}
	phrase, err := s.sugg.HypePhrase(r.Context(), current)
	if err != nil {
		s.suggestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phrase": phrase})
}

func (s *Server) suggestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, suggest.ErrNotFound):
		writeError(w, http.StatusNotFound, "no suggestion matched the library")
	case errors.Is(err, suggest.ErrParse):
		writeError(w, http.StatusBadGateway, "model returned an unusable answer")
	default:
		writeError(w, http.StatusBadGateway, "suggestion backend unreachable")
	}
}

// --- FX presets ---

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			writeError(w, http.StatusBadRequest, "preset name required")
			return
		}
		s.eng.SaveFXPreset(req.Name)
	}
	writeJSON(w, http.StatusOK, s.eng.FXPresetNames())
}

func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	switch r.Method {
	case http.MethodPost:
		if err := s.eng.ApplyFXPreset(name); err != nil {
			writeError(w, http.StatusNotFound, "unknown preset")
			return
		}
	case http.MethodDelete:
		s.eng.DeleteFXPreset(name)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- MIDI ---

func (s *Server) handleMIDIBindings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"controls": midi.Catalogue(),
		"bindings": s.eng.Mapping().Export(),
	})
}

// --- beat pads ---

func (s *Server) handlePads(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Pads().Kit())
}

func (s *Server) handlePadSounds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, beats.Sounds())
}

// --- helpers ---

func parseDeck(name string) (graph.DeckID, bool) {
	switch strings.ToLower(name) {
	case "a":
		return graph.DeckA, true
	case "b":
		return graph.DeckB, true
	default:
		return 0, false
	}
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	log.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
