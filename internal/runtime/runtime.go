package runtime

import (
	"context"
	"errors"
	"time"

	cfgpkg "github.com/vmatresu/claimd/internal/config"
	"github.com/vmatresu/claimd/internal/coordinator"
	"github.com/vmatresu/claimd/internal/reaper"
	"github.com/vmatresu/claimd/internal/resolver"
	"github.com/vmatresu/claimd/internal/store/pebblestore"
	"github.com/vmatresu/claimd/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
}

// Runtime wires storage, config and the claim protocol for one instance.
type Runtime struct {
	store  *pebblestore.Store
	config cfgpkg.Config
	logger log.Logger
	coord  *coordinator.Coordinator
}

// Open validates the config, opens the backlog store and builds the
// coordinator.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = cfgpkg.DefaultDataDir()
	}

	st, err := pebblestore.Open(pebblestore.Options{
		DataDir: dataDir,
		Fsync:   fsyncMode(cfg.Fsync),
	})
	if err != nil {
		return nil, err
	}

	coord := coordinator.New(coordinator.Options{
		Store:       st,
		Logger:      logger,
		MaxAttempts: cfg.ClaimMaxAttempts,
		BackoffBase: time.Duration(cfg.BackoffBaseMs) * time.Millisecond,
		BackoffCap:  time.Duration(cfg.BackoffCapMs) * time.Millisecond,
	})

	logger.Debug("runtime opened", log.F("data_dir", dataDir), log.F("fsync", cfg.Fsync))
	return &Runtime{store: st, config: cfg, logger: logger, coord: coord}, nil
}

func fsyncMode(s string) pebblestore.FsyncMode {
	switch s {
	case "interval":
		return pebblestore.FsyncModeInterval
	case "never":
		return pebblestore.FsyncModeNever
	default:
		return pebblestore.FsyncModeAlways
	}
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// CheckHealth performs a simple storage round trip.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	_, err := r.store.Snapshot(ctx)
	return err
}

// Store exposes the backlog store.
func (r *Runtime) Store() *pebblestore.Store { return r.store }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the runtime logger.
func (r *Runtime) Logger() log.Logger { return r.logger }

// Coordinator returns the claim coordinator.
func (r *Runtime) Coordinator() *coordinator.Coordinator { return r.coord }

// Sweeper builds a lease sweeper over the runtime store.
func (r *Runtime) Sweeper() *reaper.Sweeper {
	return reaper.NewSweeper(r.store, r.logger)
}

// Resolver builds a dependency resolver over the runtime store.
func (r *Runtime) Resolver() *resolver.Resolver {
	return resolver.New(r.store, r.logger)
}
