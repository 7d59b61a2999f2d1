// Package config loads server settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Duration decodes values like "30s" or "1m" from YAML and from the
// environment.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config holds the server settings. Environment variables override
// values from the YAML file.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listenAddr" env:"LISTEN_ADDR"`

	// RedisAddr enables Redis-backed history when non-empty.
	RedisAddr string `yaml:"redisAddr" env:"REDIS_ADDR"`

	// HistoryLimit is the number of messages retained per conversation.
	HistoryLimit int `yaml:"historyLimit" env:"HISTORY_LIMIT"`

	// BackfillRateLimit is the number of backfill requests allowed per
	// client IP per window.
	BackfillRateLimit  int      `yaml:"backfillRateLimit" env:"BACKFILL_RATE_LIMIT"`
	BackfillRateWindow Duration `yaml:"backfillRateWindow" env:"BACKFILL_RATE_WINDOW"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		ListenAddr:         ":8080",
		HistoryLimit:       500,
		BackfillRateLimit:  120,
		BackfillRateWindow: Duration(time.Minute),
	}
}

// Load reads the YAML file at path (skipped when path is empty or the
// file does not exist) and then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to env overrides.
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}

	if cfg.ListenAddr == "" {
		return Config{}, fmt.Errorf("config: listen address is required")
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("config: history limit must be positive")
	}
	return cfg, nil
}
