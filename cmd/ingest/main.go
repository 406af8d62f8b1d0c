// Command ingest adds tracks to the bot's library: audio files found under
// the given directories (or the configured library sources), and track ids
// looked up in the remote catalog with -fetch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/config"
	"github.com/llehouerou/wavebot/internal/library"
	"github.com/llehouerou/wavebot/internal/logging"
	"github.com/llehouerou/wavebot/internal/source"
	"github.com/llehouerou/wavebot/internal/state"
)

func main() {
	fetch := flag.String("fetch", "", "comma separated catalog track ids to add")
	flag.Parse()

	if err := run(flag.Args(), *fetch); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}
}

func run(dirs []string, fetch string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.NewWriter(os.Stderr, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m, err := state.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer m.Close()
	lib := library.New(m.DB(), log)

	if fetch != "" {
		if !cfg.HasSourceConfig() {
			return fmt.Errorf("-fetch needs source.base_url in the config")
		}
		client := source.NewHTTPClient(cfg.Source.BaseURL, cfg.Source.APIKey, cfg.Source.Timeout)
		tracks, err := client.Tracks(ctx, strings.Split(fetch, ","))
		if err != nil {
			return err
		}
		n, err := lib.Ingest(ctx, tracks)
		if err != nil {
			return err
		}
		log.Info().Int("fetched", len(tracks)).Int("inserted", n).Msg("catalog tracks added")
	}

	if len(dirs) == 0 {
		dirs = cfg.LibrarySources
	}
	if len(dirs) == 0 {
		if fetch != "" {
			return nil
		}
		return fmt.Errorf("no directories given and no library_sources configured")
	}

	progress := make(chan library.ScanProgress, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logProgress(log, progress)
	}()

	stats, err := lib.Scan(ctx, dirs, progress)
	<-done
	if err != nil {
		return err
	}
	fmt.Printf("found %d files, added %d tracks, %d unreadable\n", stats.Found, stats.Inserted, stats.Failed)
	return nil
}

func logProgress(log zerolog.Logger, progress <-chan library.ScanProgress) {
	last := ""
	for p := range progress {
		if p.Phase != last || p.Current%100 == 0 {
			log.Debug().Str("phase", p.Phase).Int("current", p.Current).Int("total", p.Total).Msg("scan progress")
			last = p.Phase
		}
	}
}
