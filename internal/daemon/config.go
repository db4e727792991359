// Package daemon holds the daemon configuration, stored as TOML at
// ~/.ebbtide/config.toml by default.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the full daemon configuration.
type Config struct {
	API     APIConfig     `toml:"api"`
	Store   StoreConfig   `toml:"store"`
	Timer   TimerConfig   `toml:"timer"`
	History HistoryConfig `toml:"history"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StoreConfig selects and locates the document store backend.
type StoreConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "memory"
	Path   string `toml:"path"`   // data directory for the sqlite driver
}

// TimerConfig sets the stage durations.
type TimerConfig struct {
	FocusSeconds int `toml:"focus_seconds"`
	RelaxSeconds int `toml:"relax_seconds"`
}

// HistoryConfig sets the interval retention.
type HistoryConfig struct {
	RetentionDays int `toml:"retention_days"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7428,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   defaultDataDir(),
		},
		Timer: TimerConfig{
			FocusSeconds: 25 * 60,
			RelaxSeconds: 5 * 60,
		},
		History: HistoryConfig{
			RetentionDays: 2,
		},
	}
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.toml")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ebbtide"
	}
	return filepath.Join(home, ".ebbtide")
}

// Load reads the config at path, overlaying values onto the defaults. A
// missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as TOML, creating the parent directory if needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
