// Package config loads officedesk settings from a TOML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/JamesPrial/officedesk/internal/pathutil"
)

// Config holds everything the officedesk binaries need to start.
type Config struct {
	// DataDir is where relative storage paths and the default fallback
	// database live.
	DataDir string

	// Backend is "file", "sqlite" or "postgres". Empty lets the storage
	// factory decide from the other fields.
	Backend      string
	DocumentPath string
	SQLitePath   string
	PostgresDSN  string

	// Concurrency is "last-write-wins" (default) or "strict".
	Concurrency string

	// PollInterval is how often the sync controller reloads the document.
	PollInterval time.Duration

	// Watch additionally reloads when the document file changes on disk.
	Watch bool

	// Listen is the address of the notification server.
	Listen string

	// LogFile enables a rotating log file in addition to stderr.
	LogFile string

	// HandlePath overrides where the granted storage handle is kept.
	HandlePath string

	// Actor is the user name recorded in task history by the CLI tools.
	Actor string
}

const (
	defaultConfigPath   = "~/.config/officedesk/config.toml"
	defaultDataDir      = "~/.local/share/officedesk"
	defaultListen       = "127.0.0.1:7420"
	defaultPollInterval = 3 * time.Second
	defaultConcurrency  = "last-write-wins"
)

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return defaultConfigPath
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		DataDir:      mustExpand(defaultDataDir),
		Concurrency:  defaultConcurrency,
		PollInterval: defaultPollInterval,
		Listen:       defaultListen,
	}
}

// Load reads the config file at path (DefaultPath when empty) and applies
// environment overrides. A missing file yields the defaults.
//
// Environment variables:
//   - OFFICEDESK_DATA_DIR
//   - OFFICEDESK_BACKEND
//   - OFFICEDESK_DOCUMENT
//   - OFFICEDESK_SQLITE_PATH
//   - OFFICEDESK_POSTGRES_DSN
//   - OFFICEDESK_CONCURRENCY
//   - OFFICEDESK_ACTOR
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultConfigPath
	}
	resolved, err := pathutil.Expand(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
		applyEnv(&cfg)
		return cfg, cfg.validate()
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		DataDir      string `toml:"data_dir"`
		Backend      string `toml:"backend"`
		Document     string `toml:"document"`
		SQLitePath   string `toml:"sqlite_path"`
		PostgresDSN  string `toml:"postgres_dsn"`
		Concurrency  string `toml:"concurrency"`
		PollInterval string `toml:"poll_interval"`
		Watch        bool   `toml:"watch"`
		Listen       string `toml:"listen"`
		LogFile      string `toml:"log_file"`
		HandlePath   string `toml:"handle_path"`
		Actor        string `toml:"actor"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.DataDir); v != "" {
		cfg.DataDir = mustExpand(v)
	}
	cfg.Backend = strings.TrimSpace(raw.Backend)
	cfg.DocumentPath = strings.TrimSpace(raw.Document)
	cfg.SQLitePath = strings.TrimSpace(raw.SQLitePath)
	cfg.PostgresDSN = strings.TrimSpace(raw.PostgresDSN)
	if v := strings.TrimSpace(raw.Concurrency); v != "" {
		cfg.Concurrency = v
	}
	if v := strings.TrimSpace(raw.PollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse poll_interval: %w", err)
		}
		cfg.PollInterval = d
	}
	cfg.Watch = raw.Watch
	if v := strings.TrimSpace(raw.Listen); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(raw.LogFile); v != "" {
		cfg.LogFile = mustExpand(v)
	}
	cfg.HandlePath = strings.TrimSpace(raw.HandlePath)
	cfg.Actor = strings.TrimSpace(raw.Actor)

	applyEnv(&cfg)
	return cfg, cfg.validate()
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		key    string
		target *string
	}{
		{"OFFICEDESK_DATA_DIR", &cfg.DataDir},
		{"OFFICEDESK_BACKEND", &cfg.Backend},
		{"OFFICEDESK_DOCUMENT", &cfg.DocumentPath},
		{"OFFICEDESK_SQLITE_PATH", &cfg.SQLitePath},
		{"OFFICEDESK_POSTGRES_DSN", &cfg.PostgresDSN},
		{"OFFICEDESK_CONCURRENCY", &cfg.Concurrency},
		{"OFFICEDESK_ACTOR", &cfg.Actor},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			*o.target = v
		}
	}
	cfg.DataDir = mustExpand(cfg.DataDir)
}

func (c Config) validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	switch c.Concurrency {
	case "last-write-wins", "strict":
	default:
		return fmt.Errorf("concurrency must be \"last-write-wins\" or \"strict\", got %q", c.Concurrency)
	}
	return nil
}

func mustExpand(path string) string {
	expanded, err := pathutil.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}
