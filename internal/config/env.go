package config

import (
	"os"
	"strconv"
)

// FromEnv overlays CLAIMD_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("CLAIMD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CLAIMD_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	setInt64(&cfg.DefaultLeaseMs, "CLAIMD_DEFAULT_LEASE_MS")
	setInt64(&cfg.SweepIntervalMs, "CLAIMD_SWEEP_INTERVAL_MS")
	setInt64(&cfg.ResolveIntervalMs, "CLAIMD_RESOLVE_INTERVAL_MS")
	if v := os.Getenv("CLAIMD_CLAIM_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ClaimMaxAttempts = n
		}
	}
	setInt64(&cfg.BackoffBaseMs, "CLAIMD_BACKOFF_BASE_MS")
	setInt64(&cfg.BackoffCapMs, "CLAIMD_BACKOFF_CAP_MS")
	if v := os.Getenv("CLAIMD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CLAIMD_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
