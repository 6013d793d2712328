// Package config holds runtime configuration for the apply pipeline.
// Defaults are safe; a yaml file and a small set of environment variables
// can override them.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig tunes the batch orchestrator and application engine.
type EngineConfig struct {
	// Dedup enables per-target content-hash deduplication.
	Dedup bool `yaml:"dedup"`

	// BatchIdempotency enables the batch-hash seen-set that skips
	// re-application of an identical batch.
	BatchIdempotency bool `yaml:"batch_idempotency"`

	// MaxSeenBatches caps the batch-hash seen-set. Oldest entries are
	// evicted first; zero means unbounded.
	MaxSeenBatches int `yaml:"max_seen_batches"`
}

// LoggingConfig tunes the zap logger built in cmd.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Dedup:            true,
			BatchIdempotency: true,
			MaxSeenBatches:   4096,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a yaml config file over the defaults, then applies environment
// overrides. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers UICP_* environment variables over the loaded values.
func (c *Config) applyEnv() {
	if v := os.Getenv("UICP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("UICP_ENGINE_DEDUP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Engine.Dedup = b
		}
	}
	if v := os.Getenv("UICP_BATCH_IDEMPOTENCY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Engine.BatchIdempotency = b
		}
	}
}
