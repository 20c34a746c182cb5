package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// DataDir is where the backlog database lives. Empty means
	// DefaultDataDir().
	DataDir string `json:"dataDir" yaml:"dataDir"`
	// Fsync is the durability policy: "always", "interval" or "never".
	Fsync string `json:"fsync" yaml:"fsync"`

	// DefaultLeaseMs applies to claims that do not request a lease length.
	DefaultLeaseMs int64 `json:"defaultLeaseMs" yaml:"defaultLeaseMs"`
	// SweepIntervalMs is how often the reaper looks for expired leases.
	SweepIntervalMs int64 `json:"sweepIntervalMs" yaml:"sweepIntervalMs"`
	// ResolveIntervalMs is how often blocked items are re-checked against
	// their dependencies.
	ResolveIntervalMs int64 `json:"resolveIntervalMs" yaml:"resolveIntervalMs"`

	// ClaimMaxAttempts bounds proposal retries after conflicts.
	ClaimMaxAttempts int `json:"claimMaxAttempts" yaml:"claimMaxAttempts"`
	// BackoffBaseMs is the first retry delay; it doubles per attempt up to
	// BackoffCapMs.
	BackoffBaseMs int64 `json:"backoffBaseMs" yaml:"backoffBaseMs"`
	BackoffCapMs  int64 `json:"backoffCapMs" yaml:"backoffCapMs"`

	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFormat string `json:"logFormat" yaml:"logFormat"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Fsync:             "always",
		DefaultLeaseMs:    30_000,
		SweepIntervalMs:   10_000,
		ResolveIntervalMs: 5_000,
		ClaimMaxAttempts:  4,
		BackoffBaseMs:     2_000,
		BackoffCapMs:      30_000,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate rejects configurations that would stall or livelock workers.
func (c Config) Validate() error {
	switch c.Fsync {
	case "", "always", "interval", "never":
	default:
		return fmt.Errorf("config: unknown fsync mode %q", c.Fsync)
	}
	if c.DefaultLeaseMs <= 0 {
		return fmt.Errorf("config: defaultLeaseMs must be positive, got %d", c.DefaultLeaseMs)
	}
	if c.SweepIntervalMs <= 0 {
		return fmt.Errorf("config: sweepIntervalMs must be positive, got %d", c.SweepIntervalMs)
	}
	if c.ResolveIntervalMs <= 0 {
		return fmt.Errorf("config: resolveIntervalMs must be positive, got %d", c.ResolveIntervalMs)
	}
	if c.ClaimMaxAttempts < 1 {
		return fmt.Errorf("config: claimMaxAttempts must be at least 1, got %d", c.ClaimMaxAttempts)
	}
	if c.BackoffBaseMs <= 0 {
		return fmt.Errorf("config: backoffBaseMs must be positive, got %d", c.BackoffBaseMs)
	}
	if c.BackoffCapMs < c.BackoffBaseMs {
		return fmt.Errorf("config: backoffCapMs %d below backoffBaseMs %d", c.BackoffCapMs, c.BackoffBaseMs)
	}
	return nil
}
