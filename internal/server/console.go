package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/spindeck/spindeck/internal/beats"
	"github.com/spindeck/spindeck/internal/fx"
	"github.com/spindeck/spindeck/internal/metronome"
	"github.com/spindeck/spindeck/internal/midi"
	"github.com/spindeck/spindeck/internal/mixer"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// command is one console control message. Fields are a union across all
// actions; each action reads the ones it needs.
type command struct {
	Action   string       `json:"action"`
	Deck     string       `json:"deck,omitempty"`
	TrackID  string       `json:"trackId,omitempty"`
	Value    float64      `json:"value,omitempty"`
	On       bool         `json:"on,omitempty"`
	Pad      int          `json:"pad,omitempty"`
	Band     int          `json:"band,omitempty"`
	Unit     string       `json:"unit,omitempty"`
	Name     string       `json:"name,omitempty"`
	Category string       `json:"category,omitempty"`
	Sound    string       `json:"sound,omitempty"`
	Label    string       `json:"label,omitempty"`
	Control  string       `json:"control,omitempty"`
	Data     []byte       `json:"data,omitempty"` // raw MIDI bytes from Web MIDI
	Delta    float64      `json:"delta,omitempty"`
	Velocity float64      `json:"velocity,omitempty"`
	Settings *fx.Settings `json:"settings,omitempty"`
}

// handleConsole upgrades to a websocket, streams console snapshots out and
// dispatches control commands in. One goroutine per direction; either side
// failing tears the connection down.
func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("console upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.log.Info("console connected", zap.String("remote", r.RemoteAddr))
	defer s.log.Info("console disconnected", zap.String("remote", r.RemoteAddr))

	snapshots := s.eng.Subscribe()
	defer s.eng.Unsubscribe(snapshots)

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-quit:
				return
			case snap := <-snapshots:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(snap); err != nil {
					return
				}
			}
		}
	}()

	for {
		var cmd command
		if err := conn.ReadJSON(&cmd); err != nil {
			break
		}
		s.dispatch(cmd)
	}
	close(quit)
	conn.Close()
	<-done
}

func (s *Server) dispatch(cmd command) {
	switch {
	case strings.HasPrefix(cmd.Action, "deck."):
		s.dispatchDeck(cmd)
	case strings.HasPrefix(cmd.Action, "mixer."):
		s.dispatchMixer(cmd)
	case strings.HasPrefix(cmd.Action, "fx."):
		s.dispatchFX(cmd)
	case strings.HasPrefix(cmd.Action, "pads."):
		s.dispatchPads(cmd)
	case strings.HasPrefix(cmd.Action, "metronome."):
		s.dispatchMetronome(cmd)
	case strings.HasPrefix(cmd.Action, "midi."):
		s.dispatchMIDI(cmd)
	case strings.HasPrefix(cmd.Action, "autodj."):
		s.dispatchAutoDJ(cmd)
	default:
		s.log.Debug("unknown console action", zap.String("action", cmd.Action))
	}
}

func (s *Server) dispatchDeck(cmd command) {
	id, ok := parseDeck(cmd.Deck)
	if !ok {
		return
	}
	d := s.eng.Deck(id)
	switch cmd.Action {
	case "deck.load":
		track, found := s.lib.Get(cmd.TrackID)
		if !found {
			s.log.Warn("load of unknown track", zap.String("trackId", cmd.TrackID))
			return
		}
		// Decoding blocks; never stall the command reader on it.
		go func() {
			if err := d.Load(track); err == nil {
				s.lib.UpdateAnalysis(track.ID, d.Analysis())
			}
		}()
	case "deck.eject":
		d.Eject()
	case "deck.play":
		d.Play()
	case "deck.stop":
		d.Stop()
	case "deck.toggle":
		d.TogglePlay()
	case "deck.seek":
		d.Seek(cmd.Value)
	case "deck.rate":
		d.SetRate(cmd.Value)
	case "deck.keylock":
		d.SetKeyLock(cmd.On)
	case "deck.preamp":
		d.SetPreAmp(cmd.Value)
	case "deck.zoom":
		d.SetZoom(cmd.Value)
	case "deck.loop.in":
		d.SetLoopIn()
	case "deck.loop.out":
		d.SetLoopOut()
	case "deck.loop.auto":
		d.AutoLoop(cmd.Value)
	case "deck.loop.toggle":
		d.ToggleLoop()
	case "deck.loop.clear":
		d.ClearLoop()
	case "deck.cue.set":
		d.SetCue(cmd.Pad)
	case "deck.cue.jump":
		d.JumpCue(cmd.Pad)
	case "deck.cue.delete":
		d.DeleteCue(cmd.Pad)
	case "deck.scratch.start":
		d.ScratchStart()
	case "deck.scratch.move":
		d.ScratchMove(cmd.Delta, cmd.Velocity)
	case "deck.scratch.end":
		d.ScratchEnd()
	}
}

func (s *Server) dispatchMixer(cmd command) {
	m := s.eng.Mixer()
	switch cmd.Action {
	case "mixer.crossfader":
		m.SetCrossfader(cmd.Value)
	case "mixer.curve":
		if law, ok := parseCurve(cmd.Name); ok {
			m.SetCurve(law)
		}
	case "mixer.volume":
		if id, ok := parseDeck(cmd.Deck); ok {
			m.SetDeckVolume(id, cmd.Value)
		}
	case "mixer.eq":
		if band, ok := parseSweepBand(cmd.Name); ok {
			m.SetSweepEQ(band, cmd.Value)
		}
	case "mixer.graphic":
		m.SetGraphicBand(cmd.Band, cmd.Value)
	case "mixer.bassboost":
		m.SetBassBoost(cmd.Value)
	case "mixer.cue":
		if id, ok := parseDeck(cmd.Deck); ok {
			m.SetCue(id, cmd.On)
		}
	case "mixer.headphone.mix":
		m.SetHeadphoneMix(cmd.Value)
	case "mixer.headphone.volume":
		m.SetHeadphoneVolume(cmd.Value)
	case "mixer.master":
		s.eng.SetMasterVolume(cmd.Value)
	case "mixer.mic":
		s.eng.SetMicLevel(cmd.Value)
	}
}

func (s *Server) dispatchFX(cmd command) {
	chain := s.eng.FX()
	kind, known := fx.KindFromString(cmd.Unit)
	switch cmd.Action {
	case "fx.toggle":
		if known {
			chain.Toggle(kind)
		}
	case "fx.apply":
		if known && cmd.Settings != nil {
			chain.Apply(kind, *cmd.Settings)
		}
	case "fx.focus":
		if known {
			s.eng.FocusFX(kind)
		}
	case "fx.preset.save":
		s.eng.SaveFXPreset(cmd.Name)
	case "fx.preset.apply":
		s.eng.ApplyFXPreset(cmd.Name)
	case "fx.preset.delete":
		s.eng.DeleteFXPreset(cmd.Name)
	}
}

func (s *Server) dispatchPads(cmd command) {
	bank := s.eng.Pads()
	switch cmd.Action {
	case "pads.trigger":
		s.eng.TriggerPad(cmd.Category, cmd.Pad)
	case "pads.set":
		bank.SetPad(cmd.Category, cmd.Pad, beats.Pad{
			Label: cmd.Label,
			Sound: cmd.Sound,
			Gain:  cmd.Value,
		})
	case "pads.clear":
		bank.ClearPad(cmd.Category, cmd.Pad)
	}
}

func (s *Server) dispatchMetronome(cmd command) {
	m := s.eng.Metronome()
	switch cmd.Action {
	case "metronome.start":
		m.Start()
	case "metronome.stop":
		m.Stop()
	case "metronome.bpm":
		m.SetBPM(cmd.Value)
	case "metronome.timesig":
		m.SetTimeSignature(int(cmd.Value))
	case "metronome.subdivision":
		m.SetSubdivision(metronome.Subdivision(cmd.Value))
	case "metronome.timbre":
		m.SetTimbre(metronome.Timbre(cmd.Value))
	case "metronome.volume":
		m.SetVolume(cmd.Value / 100) // console knobs are 0-100
	case "metronome.tap":
		m.Tap(time.Now())
	}
}

func (s *Server) dispatchMIDI(cmd command) {
	mapping := s.eng.Mapping()
	switch cmd.Action {
	case "midi.message":
		if len(cmd.Data) == 3 {
			s.eng.HandleMIDI(cmd.Data[0], cmd.Data[1], cmd.Data[2])
		}
	case "midi.learn":
		c := midi.Control(cmd.Control)
		if c.Valid() {
			mapping.BeginLearn(c)
		}
	case "midi.learn.cancel":
		mapping.CancelLearn()
	case "midi.unbind":
		mapping.Unbind(midi.Control(cmd.Control))
	}
}

func (s *Server) dispatchAutoDJ(cmd command) {
	session := s.eng.AutoDJ()
	if session == nil {
		return
	}
	switch cmd.Action {
	case "autodj.enable":
		if err := session.Enable(); err != nil {
			s.log.Warn("auto-dj enable failed", zap.Error(err))
		}
	case "autodj.disable":
		session.Disable()
	case "autodj.skip":
		session.Skip()
	case "autodj.repick":
		session.Repick()
	}
}

func parseCurve(name string) (mixer.CurveLaw, bool) {
	switch name {
	case "linear":
		return mixer.CurveLinear, true
	case "constant-power":
		return mixer.CurveConstantPower, true
	case "fast-cut":
		return mixer.CurveFastCut, true
	default:
		return 0, false
	}
}

func parseSweepBand(name string) (mixer.SweepBand, bool) {
	switch name {
	case "low":
		return mixer.BandLow, true
	case "mid":
		return mixer.BandMid, true
	case "high":
		return mixer.BandHigh, true
	default:
		return 0, false
	}
}
