// Package config provides application configuration loading from environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultListenAddr      = ":8080"
	DefaultRuleCacheTTL    = 5 * time.Minute
	DefaultConfigCacheTTL  = 10 * time.Minute
	DefaultSweepInterval   = 5 * time.Minute
	DefaultSweepTimeout    = 2 * time.Minute
	DefaultBulkConcurrency = 4
)

// Config holds all configuration for the application.
type Config struct {
	DatabaseURL      string
	ListenAddr       string
	LogLevel         string
	LogJSON          bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RuleCacheTTL     time.Duration
	ConfigCacheTTL   time.Duration
	SweepEnabled     bool
	SweepInterval    time.Duration
	SweepTimeout     time.Duration
	BulkConcurrency  int
	TelemetryEnabled bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		ListenAddr:       DefaultListenAddr,
		LogLevel:         os.Getenv("LOG_LEVEL"),
		LogJSON:          os.Getenv("LOG_JSON") == "true",
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RuleCacheTTL:     DefaultRuleCacheTTL,
		ConfigCacheTTL:   DefaultConfigCacheTTL,
		SweepEnabled:     os.Getenv("ESCALATION_SWEEP_DISABLED") != "true",
		SweepInterval:    DefaultSweepInterval,
		SweepTimeout:     DefaultSweepTimeout,
		BulkConcurrency:  DefaultBulkConcurrency,
		TelemetryEnabled: os.Getenv("TELEMETRY_ENABLED") == "true",
	}

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}

	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil && db >= 0 {
			cfg.RedisDB = db
		}
	}

	cfg.RuleCacheTTL = durationFromEnv("RULE_CACHE_TTL", cfg.RuleCacheTTL)
	cfg.ConfigCacheTTL = durationFromEnv("CONFIG_CACHE_TTL", cfg.ConfigCacheTTL)
	cfg.SweepInterval = durationFromEnv("ESCALATION_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.SweepTimeout = durationFromEnv("ESCALATION_SWEEP_TIMEOUT", cfg.SweepTimeout)

	if concStr := os.Getenv("BULK_CONCURRENCY"); concStr != "" {
		if c, err := strconv.Atoi(concStr); err == nil && c > 0 {
			cfg.BulkConcurrency = c
		}
	}

	// Validate required configuration.
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// durationFromEnv parses a duration env var, keeping the fallback on absence
// or parse failure.
func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
