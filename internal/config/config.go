package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, ErrConfig(fmt.Sprintf("load .env: %v", err))
	}
	cfg, err := parse(env.Options{})
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, ErrConfig(fmt.Sprintf("create DATA_DIR: %v", err))
	}
	return cfg, nil
}

// Load parses configuration from environ only.
func Load(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, ErrConfig(err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.CommandPrefix = strings.TrimSpace(c.CommandPrefix)
	switch {
	case c.CommandPrefix == "":
		return ErrConfig("COMMAND_PREFIX must not be empty")
	case c.SearchWorkers < 1:
		return ErrConfig("SEARCH_WORKERS must be at least 1")
	case c.QueueDisplayLimit < 1:
		return ErrConfig("QUEUE_DISPLAY_LIMIT must be at least 1")
	case c.CommandRate <= 0:
		return ErrConfig("COMMAND_RATE must be positive")
	case c.CommandBurst < 1:
		return ErrConfig("COMMAND_BURST must be at least 1")
	case (c.SpotifyClientID == "") != (c.SpotifyClientSecret == ""):
		return ErrConfig("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set together")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return ErrConfig(fmt.Sprintf("LOG_FORMAT %q: want text or json", c.LogFormat))
	}
	return nil
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, ErrConfig(fmt.Sprintf("LOG_LEVEL %q: %v", c.LogLevel, err))
	}
	return lvl, nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return "config: " + string(e) }
