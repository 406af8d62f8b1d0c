package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/llehouerou/wavebot/internal/cache"
	"github.com/llehouerou/wavebot/internal/collections"
	"github.com/llehouerou/wavebot/internal/config"
	"github.com/llehouerou/wavebot/internal/console"
	"github.com/llehouerou/wavebot/internal/control"
	"github.com/llehouerou/wavebot/internal/library"
	"github.com/llehouerou/wavebot/internal/logging"
	"github.com/llehouerou/wavebot/internal/playback"
	"github.com/llehouerou/wavebot/internal/player"
	"github.com/llehouerou/wavebot/internal/queue"
	"github.com/llehouerou/wavebot/internal/resolver"
	"github.com/llehouerou/wavebot/internal/source"
	"github.com/llehouerou/wavebot/internal/state"
	"github.com/llehouerou/wavebot/internal/stderr"
	"github.com/llehouerou/wavebot/internal/voice"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, logFile, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logFile.Close()

	stateMgr, err := state.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer stateMgr.Close()

	lib := library.New(stateMgr.DB(), log)
	colls := collections.New(stateMgr.DB(), log)
	queues := queue.NewStore(stateMgr, colls, log)
	res := resolver.New(queues, lib, colls, log)

	// Local files first; the catalog hands out fresh URLs for the rest.
	providers := source.Chain{source.NewLibrary(lib)}
	var catalog control.Catalog
	if cfg.HasSourceConfig() {
		client := source.NewHTTPClient(cfg.Source.BaseURL, cfg.Source.APIKey, cfg.Source.Timeout)
		providers = append(providers, client)
		catalog = client
	}

	trackCache, err := cache.New(providers, cache.Options{
		Dir:           cfg.Cache.Dir,
		MaxAttempts:   cfg.Cache.MaxAttempts,
		MaxAge:        cfg.Cache.MaxAge,
		SweepInterval: cfg.Cache.SweepInterval,
	}, log)
	if err != nil {
		return err
	}

	var stderrLines <-chan string
	if capture, err := stderr.Start(); err != nil {
		log.Warn().Err(err).Msg("stderr capture unavailable")
	} else {
		defer capture.Stop()
		stderrLines = capture.Lines()
	}

	gateway, err := player.NewGateway(player.DefaultSampleRate, log)
	if err != nil {
		return fmt.Errorf("init audio output: %w", err)
	}
	sessions := voice.NewManager(gateway, cfg.Voice.ReadyTimeout, nil, log)
	idle := voice.NewIdleWatcher(sessions, cfg.Voice.IdleGrace, nil, log)

	proc := playback.New(queues, res, trackCache, sessions, log)
	defer proc.Close()

	// Whatever ends a session, the cycle stops and the queue goes with it.
	sessions.OnTeardown(proc.Invalidate)
	sessions.OnTeardown(func(channelID string) {
		if err := queues.Clear(context.Background(), channelID); err != nil {
			log.Error().Err(err).Str("channel", channelID).Msg("clear queue after teardown")
		}
	})

	router := control.New(queues, proc, lib, catalog, colls, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go trackCache.Run(ctx)

	m := console.New(console.Deps{
		Controller: router,
		Library:    lib,
		Idle:       idle,
		Cache:      trackCache,
		Events:     proc.Subscribe(),
		Stderr:     stderrLines,
		Owner:      cfg.Owner,
		Channel:    cfg.Channel,
	})

	log.Info().Str("channel", cfg.Channel).Msg("wavebot started")
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()

	sessions.TeardownAll()
	return err
}
