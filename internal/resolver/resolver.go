// Package resolver promotes blocked items whose dependencies have all
// completed. Dependencies are ids of other backlog items; an id that matches
// nothing keeps the item blocked rather than silently unblocking it, since a
// missing dependency usually means the graph was entered wrong.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vmatresu/claimd/internal/backlog"
	"github.com/vmatresu/claimd/internal/store"
	"github.com/vmatresu/claimd/pkg/log"
)

// Resolver promotes unblocked items to ready.
type Resolver struct {
	store store.Store
	log   log.Logger
}

// New creates a Resolver.
func New(s store.Store, logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Resolver{store: s, log: logger}
}

// Resolve scans blocked items once and promotes every item whose
// dependencies are all completed. It returns how many items were promoted.
// Per-item conflicts are skipped and picked up on the next pass.
func (r *Resolver) Resolve(ctx context.Context) (int, error) {
	snap, err := r.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	// deterministic pass order keeps logs and tests stable
	var blocked []string
	for itemID, v := range snap {
		if v.Item.Status == backlog.StatusBlocked {
			blocked = append(blocked, itemID)
		}
	}
	sort.Strings(blocked)

	promoted := 0
	for _, itemID := range blocked {
		v := snap[itemID]
		if !r.depsSatisfied(snap, v.Item) {
			continue
		}

		upd := v.Item.Clone()
		upd.Status = backlog.StatusReady

		var b store.Batch
		b.Update(itemID, v.Rev, upd)
		err := r.store.Propose(ctx, b)
		if store.IsConflict(err) {
			r.log.Debug("resolve skipped item, state moved", log.F("item", itemID))
			continue
		}
		if err != nil {
			return promoted, fmt.Errorf("resolve %s: %w", itemID, err)
		}
		promoted++
		r.log.Info("item unblocked", log.F("item", itemID), log.F("deps", len(v.Item.Deps)))
	}
	return promoted, nil
}

// depsSatisfied reports whether every dependency of it is completed. Blocked
// items with no dependencies are promoted, with a warning, since nothing can
// ever unblock them otherwise.
func (r *Resolver) depsSatisfied(snap map[string]store.Versioned, it *backlog.Item) bool {
	if len(it.Deps) == 0 {
		r.log.Warn("blocked item has no dependencies, promoting", log.F("item", it.ID))
		return true
	}
	for _, dep := range it.Deps {
		dv, ok := snap[dep]
		if !ok {
			r.log.Warn("dependency not found, item stays blocked",
				log.F("item", it.ID), log.F("dep", dep))
			return false
		}
		if dv.Item.Status != backlog.StatusCompleted {
			return false
		}
	}
	return true
}

// Runner resolves on a fixed interval until stopped.
type Runner struct {
	resolver *Resolver
	interval time.Duration
	logger   log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a periodic runner around res. A zero interval defaults
// to 5s.
func NewRunner(res *Resolver, interval time.Duration, logger log.Logger) *Runner {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{resolver: res, interval: interval, logger: logger, ctx: ctx, cancel: cancel}
}

// Start begins the resolve loop.
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop gracefully stops the loop.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("resolver started", log.F("interval", r.interval.String()))
	for {
		select {
		case <-r.ctx.Done():
			r.logger.Info("resolver stopped")
			return
		case <-ticker.C:
			if _, err := r.resolver.Resolve(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("resolve failed", log.Err(err))
			}
		}
	}
}
