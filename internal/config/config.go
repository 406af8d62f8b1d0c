package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const appName = "wavebot"

// Config is the bot configuration.
type Config struct {
	Database       string   `koanf:"database"`        // sqlite file, empty means the xdg data dir
	LibrarySources []string `koanf:"library_sources"` // paths scanned by the ingest command
	Owner          string   `koanf:"owner"`           // owner of playlists created from the console
	Channel        string   `koanf:"channel"`         // channel the console controls at startup

	Cache  CacheConfig  `koanf:"cache"`
	Source SourceConfig `koanf:"source"`
	Voice  VoiceConfig  `koanf:"voice"`
	Log    LogConfig    `koanf:"log"`
}

// CacheConfig holds the track cache settings.
type CacheConfig struct {
	Dir           string        `koanf:"dir"`
	MaxAge        time.Duration `koanf:"max_age"`        // e.g. "2h"
	SweepInterval time.Duration `koanf:"sweep_interval"` // e.g. "1h"
	MaxAttempts   int           `koanf:"max_attempts"`
}

// SourceConfig holds the remote track catalog settings.
type SourceConfig struct {
	BaseURL string        `koanf:"base_url"` // e.g. "https://catalog.example.com/api"
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// VoiceConfig holds voice session timings.
type VoiceConfig struct {
	ReadyTimeout time.Duration `koanf:"ready_timeout"`
	IdleGrace    time.Duration `koanf:"idle_grace"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `koanf:"level"` // zerolog level name
	File  string `koanf:"file"`  // empty means the xdg state dir
	JSON  bool   `koanf:"json"`
}

// Default returns the configuration used for keys absent from every file.
func Default() Config {
	return Config{
		Owner:   "console",
		Channel: "console",
		Cache: CacheConfig{
			Dir:           filepath.Join(xdg.CacheHome, appName, "tracks"),
			MaxAge:        2 * time.Hour,
			SweepInterval: time.Hour,
			MaxAttempts:   10,
		},
		Source: SourceConfig{
			Timeout: 30 * time.Second,
		},
		Voice: VoiceConfig{
			ReadyTimeout: 15 * time.Second,
			IdleGrace:    3 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the user config file, then ./config.toml, over the defaults.
func Load() (*Config, error) {
	return load(getConfigPaths())
}

func load(paths []string) (*Config, error) {
	k := koanf.New(".")

	// Later files override earlier ones.
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Database = expandPath(cfg.Database)
	cfg.Cache.Dir = expandPath(cfg.Cache.Dir)
	cfg.Log.File = expandPath(cfg.Log.File)
	for i, src := range cfg.LibrarySources {
		cfg.LibrarySources[i] = expandPath(src)
	}

	cfg.Source.BaseURL = strings.TrimSuffix(cfg.Source.BaseURL, "/")

	return &cfg, nil
}

func getConfigPaths() []string {
	return []string{
		// 1. $XDG_CONFIG_HOME/wavebot/config.toml
		filepath.Join(xdg.ConfigHome, appName, "config.toml"),
		// 2. ./config.toml (pwd, highest priority)
		"config.toml",
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// HasSourceConfig returns true if a remote catalog is configured.
func (c *Config) HasSourceConfig() bool {
	return c.Source.BaseURL != ""
}
