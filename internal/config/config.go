// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/samvaadcop/orchestrator/internal/provider/bhashini"
	"github.com/samvaadcop/orchestrator/internal/provider/polly"
)

// Config is the full server configuration.
type Config struct {
	Env           string
	Addr          string
	SnowflakeNode int64
	ProbeInterval time.Duration

	MaxRetries int
	RetryDelay time.Duration

	// TTSProvider selects the synthesis backend: "bhashini" (default) or
	// "polly" for deployments with Polly voice coverage.
	TTSProvider string

	Bhashini bhashini.Config
	Polly    polly.Config
}

// Load reads configuration. A .env file is honored when present and ignored
// otherwise.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:           defaultString(os.Getenv("SAMVAAD_ENV"), "development"),
		Addr:          defaultString(os.Getenv("SAMVAAD_ADDR"), ":8080"),
		TTSProvider:   defaultString(os.Getenv("SAMVAAD_TTS_PROVIDER"), "bhashini"),
		SnowflakeNode: 1,
		ProbeInterval: 15 * time.Second,
		MaxRetries:    1,
		RetryDelay:    time.Second,
		Bhashini:      bhashini.ConfigFromEnv(),
		Polly:         polly.ConfigFromEnv(),
	}

	if v := os.Getenv("SAMVAAD_SNOWFLAKE_NODE"); v != "" {
		node, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse SAMVAAD_SNOWFLAKE_NODE: %w", err)
		}
		cfg.SnowflakeNode = node
	}
	if v := os.Getenv("SAMVAAD_PROBE_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse SAMVAAD_PROBE_INTERVAL: %w", err)
		}
		cfg.ProbeInterval = interval
	}
	if v := os.Getenv("SAMVAAD_MAX_RETRIES"); v != "" {
		retries, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse SAMVAAD_MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = retries
	}
	if v := os.Getenv("SAMVAAD_RETRY_DELAY"); v != "" {
		delay, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse SAMVAAD_RETRY_DELAY: %w", err)
		}
		cfg.RetryDelay = delay
	}

	switch cfg.TTSProvider {
	case "bhashini", "polly":
	default:
		return Config{}, fmt.Errorf("unknown SAMVAAD_TTS_PROVIDER %q", cfg.TTSProvider)
	}
	return cfg, nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction reports whether the server runs in production mode.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func defaultString(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
