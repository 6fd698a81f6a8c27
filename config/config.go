// Package config loads the server configuration from YAML or JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Data    DataConfig    `json:"data" yaml:"data"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Feed    FeedConfig    `json:"feed" yaml:"feed"`
	Order   OrderConfig   `json:"order" yaml:"order"`
	Mode    string        `json:"mode" yaml:"mode"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// DataConfig locates the on-disk collections: account and instrument
// registries, runtime settings, and the instrument catalog dump.
type DataConfig struct {
	Dir         string `json:"dir" yaml:"dir"`
	Instruments string `json:"instruments" yaml:"instruments"`
}

type JournalConfig struct {
	Path string `json:"path" yaml:"path"`
}

// FeedConfig points at the broker's websocket price stream. The stream
// authenticates with the primary account's credentials.
type FeedConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// OrderConfig points at the order worker that relays live orders upstream.
type OrderConfig struct {
	WorkerURL   string `json:"worker_url" yaml:"worker_url"`
	InternalKey string `json:"internal_key" yaml:"internal_key"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":3000"},
		Data: DataConfig{
			Dir:         "./data",
			Instruments: "./data/instruments.csv",
		},
		Journal: JournalConfig{Path: "./data/trades.db"},
		Feed: FeedConfig{
			Enabled:  true,
			Endpoint: "wss://ws.kite.trade",
		},
		Mode: "SIMULATED",
	}
}

// LoadFromFile loads configuration from path, trying YAML first and falling
// back to JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for the mistakes worth failing fast on.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	if c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required")
	}
	switch strings.ToUpper(c.Mode) {
	case "SIMULATED", "LIVE":
		c.Mode = strings.ToUpper(c.Mode)
	default:
		return fmt.Errorf("mode must be SIMULATED or LIVE, got %q", c.Mode)
	}
	if c.Feed.Enabled && c.Feed.Endpoint == "" {
		return fmt.Errorf("feed.endpoint is required when the feed is enabled")
	}
	if c.Mode == "LIVE" && c.Order.WorkerURL == "" {
		return fmt.Errorf("order.worker_url is required in LIVE mode")
	}
	return nil
}

// Paths into the data directory.

func (c *Config) AccountsPath() string { return filepath.Join(c.Data.Dir, "accounts.json") }

func (c *Config) SelectionPath() string {
	return filepath.Join(c.Data.Dir, "selected_instruments.json")
}

func (c *Config) SettingsPath() string { return filepath.Join(c.Data.Dir, "settings.json") }
