package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spindeck/spindeck/internal/audio"
	"github.com/spindeck/spindeck/internal/autodj"
	"github.com/spindeck/spindeck/internal/beats"
	"github.com/spindeck/spindeck/internal/config"
	"github.com/spindeck/spindeck/internal/deck"
	"github.com/spindeck/spindeck/internal/engine"
	"github.com/spindeck/spindeck/internal/fx"
	"github.com/spindeck/spindeck/internal/graph"
	"github.com/spindeck/spindeck/internal/library"
	"github.com/spindeck/spindeck/internal/logger"
	"github.com/spindeck/spindeck/internal/mic"
	"github.com/spindeck/spindeck/internal/mixer"
	"github.com/spindeck/spindeck/internal/server"
	"github.com/spindeck/spindeck/internal/store"
	"github.com/spindeck/spindeck/internal/stream"
	"github.com/spindeck/spindeck/internal/suggest"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		FilePath:   cfg.LogFile,
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 14,
	})
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("spindeck starting", zap.Int("port", cfg.Port))

	lib, err := library.Open(cfg.LibraryDir, log)
	if err != nil {
		log.Fatal("library open failed", zap.String("dir", cfg.LibraryDir), zap.Error(err))
	}
	go func() {
		if err := lib.Watch(ctx); err != nil {
			log.Warn("library watch unavailable", zap.Error(err))
		}
	}()

	st, err := store.Open(cfg.StateDir, log)
	if err != nil {
		log.Fatal("state store open failed", zap.String("dir", cfg.StateDir), zap.Error(err))
	}

	g := graph.New(log)
	mix := mixer.New(g)
	var decks [graph.NumDecks]*deck.Deck
	for id := graph.DeckID(0); id < graph.NumDecks; id++ {
		decks[id] = deck.New(id, g, audio.DecodeFile, log)
	}

	session := autodj.NewSession(lib, g, decks, mix, log)
	settings := session.Settings()
	settings.Duration = cfg.TransitionSeconds
	settings.Trigger = cfg.TriggerSeconds
	session.SetSettings(settings)

	master := stream.NewBroadcaster("master")
	cue := stream.NewBroadcaster("cue")

	var micIn *mic.Capture
	if cfg.MicDevice != "" {
		micIn, err = mic.Open(cfg.MicDevice, log)
		if err != nil {
			log.Warn("microphone unavailable, talkover disabled",
				zap.String("device", cfg.MicDevice), zap.Error(err))
			micIn = nil
		} else {
			defer micIn.Close()
		}
	}

	eng := engine.New(engine.Deps{
		Graph:   g,
		Decks:   decks,
		Mixer:   mix,
		FX:      fx.NewChain(),
		Pads:    beats.NewBank(st, log),
		Store:   st,
		Session: session,
		Mic:     micIn,
		Master:  master,
		Cue:     cue,
		Log:     log,
	})
	go eng.Run(ctx)

	var sugg *suggest.Client
	if cfg.SuggestURL != "" {
		sugg = suggest.NewClient(cfg.SuggestURL, cfg.SuggestModel, log)
		pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
		if sugg.Available(pingCtx) {
			log.Info("suggestion backend connected", zap.String("model", sugg.Model()))
		} else {
			log.Warn("suggestion backend not reachable, keeping it configured",
				zap.String("url", cfg.SuggestURL))
		}
		pingCancel()
	} else {
		log.Info("suggestions disabled (set SPINDECK_SUGGEST_URL to enable)")
	}

	streams := server.Streams{
		MasterOffer: stream.NewWebRTCHandler(master, cfg.OpusBitrate, log),
		MasterMP3:   stream.NewHTTPHandler(master, cfg.MP3BitrateKb, log),
		CueOffer:    stream.NewWebRTCHandler(cue, cfg.OpusBitrate, log),
		CueMP3:      stream.NewHTTPHandler(cue, cfg.MP3BitrateKb, log),
	}

	srv := server.New(eng, lib, sugg, streams, log)

	addr := fmt.Sprintf(":%d", cfg.Port)
	if err := server.ListenAndServe(ctx, addr, srv.Handler(), log); err != nil {
		log.Fatal("http server error", zap.Error(err))
	}
	log.Info("spindeck stopped")
}
