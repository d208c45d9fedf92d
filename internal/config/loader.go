package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables that steer loading itself.
const (
	envPrefix     = "TAPSENSE_"
	envConfigFile = "TAPSENSE_CONFIG"
	envDotEnvFile = "TAPSENSE_DOTENV"
	defaultDotEnv = ".env"
)

// Bounds on sampling parameters.
const (
	minBatchSize  = 1
	maxBatchSize  = 200
	minSampleRate = 5
	maxSampleRate = 120
)

// Load builds a Config by layering defaults, optional dotenv, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. .env file (or TAPSENSE_DOTENV) exported into the process environment
//  3. file (YAML) if TAPSENSE_CONFIG is set
//  4. env (prefix TAPSENSE_)
func Load(_ context.Context) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// TAPSENSE_BATCH_SIZE -> batch_size; underscores are kept to match koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv exports a dotenv file into the environment without overriding
// variables that are already set. A missing default file is not an error.
func loadDotEnv() error {
	path := os.Getenv(envDotEnvFile)
	explicit := path != ""
	if !explicit {
		path = defaultDotEnv
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %s: %w", ErrDotEnv, path, err)
	}
	return nil
}

// Validate checks invariants the rest of the process relies on.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Strategy != StrategyBatch && c.Strategy != StrategyRelease:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	case c.BatchSize < minBatchSize || c.BatchSize > maxBatchSize:
		return fmt.Errorf("%w: batch_size must be within [%d, %d]", ErrInvalidConfig, minBatchSize, maxBatchSize)
	case c.SampleRateHz < minSampleRate || c.SampleRateHz > maxSampleRate:
		return fmt.Errorf("%w: sample_rate_hz must be within [%d, %d]", ErrInvalidConfig, minSampleRate, maxSampleRate)
	case c.TickRateHz <= 0:
		return fmt.Errorf("%w: tick_rate_hz must be positive", ErrInvalidConfig)
	case c.StoreBackend != BackendMemory && c.StoreBackend != BackendRemote:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	case c.StoreRoot == "":
		return fmt.Errorf("%w: store_root must not be empty", ErrInvalidConfig)
	}
	return nil
}
