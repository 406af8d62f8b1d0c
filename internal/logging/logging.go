// Package logging builds the process logger. The console owns the
// terminal, so logs always go to a file.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/config"
)

// DefaultFile returns the xdg state file used when no log file is configured.
func DefaultFile() (string, error) {
	return xdg.StateFile(filepath.Join("wavebot", "wavebot.log"))
}

// New opens the log file and returns a logger writing to it. The returned
// closer closes the file.
func New(cfg config.LogConfig) (zerolog.Logger, io.Closer, error) {
	path := cfg.File
	if path == "" {
		p, err := DefaultFile()
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Nop(), nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return NewWriter(f, cfg), f, nil
}

// NewWriter returns a logger writing to w.
func NewWriter(w io.Writer, cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := w
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.DateTime}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
