// Package config provides loading and environment overlay for claimd
// configuration. It exposes a Default() baseline, file loading from JSON or
// YAML, and a CLAIMD_* environment overlay applied last.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/claimd.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
