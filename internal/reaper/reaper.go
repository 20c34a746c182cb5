// Package reaper returns items whose claimant stopped heartbeating to the
// ready pool. A lease is expired once now - heartbeat exceeds the lease
// length; the sweep releases each expired claim with a conditional proposal,
// so a claimant that renews concurrently keeps the item.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vmatresu/claimd/internal/backlog"
	"github.com/vmatresu/claimd/internal/store"
	"github.com/vmatresu/claimd/pkg/id"
	"github.com/vmatresu/claimd/pkg/log"
)

// Sweeper releases expired claims.
type Sweeper struct {
	store store.Store
	log   log.Logger

	// overridable in tests
	nowMs func() int64
}

// NewSweeper creates a Sweeper.
func NewSweeper(s store.Store, logger log.Logger) *Sweeper {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Sweeper{store: s, log: logger, nowMs: id.NowMs}
}

// Sweep releases every claim whose lease has expired and reports how many
// items went back to ready. Per-item conflicts are skipped: a conflict means
// the claimant renewed or finished in the meantime, which is the outcome the
// sweep exists to protect.
func (sw *Sweeper) Sweep(ctx context.Context) (int, error) {
	return sw.sweep(ctx, 0)
}

// SweepOlderThan also releases claims idle longer than idleMs, even when
// their own lease has not lapsed yet. Operator override for claims stuck
// behind an over-long lease.
func (sw *Sweeper) SweepOlderThan(ctx context.Context, idleMs int64) (int, error) {
	return sw.sweep(ctx, idleMs)
}

func (sw *Sweeper) sweep(ctx context.Context, idleMs int64) (int, error) {
	now := sw.nowMs()

	ids, err := sw.candidates(ctx, now, idleMs)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, itemID := range ids {
		v, err := sw.store.Get(ctx, itemID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return released, err
		}
		if !lapsed(v.Item, now, idleMs) {
			continue
		}

		claimant := v.Item.Claimant
		upd := v.Item.Clone()
		upd.Release()

		var b store.Batch
		b.Update(itemID, v.Rev, upd)
		err = sw.store.Propose(ctx, b)
		if store.IsConflict(err) {
			sw.log.Debug("sweep skipped item, state moved", log.F("item", itemID))
			continue
		}
		if err != nil {
			return released, fmt.Errorf("sweep %s: %w", itemID, err)
		}
		released++
		sw.log.Warn("reclaimed expired lease",
			log.F("item", itemID),
			log.F("claimant", claimant),
			log.F("idle_ms", now-v.Item.HeartbeatMs))
	}
	return released, nil
}

// candidates returns the ids worth re-checking. The lease index only knows
// per-item expiries, so an idle override falls back to a full scan.
func (sw *Sweeper) candidates(ctx context.Context, nowMs, idleMs int64) ([]string, error) {
	if idleMs <= 0 {
		if li, ok := sw.store.(store.LeaseIndex); ok {
			return li.ExpiredLeaseIDs(ctx, nowMs)
		}
	}
	snap, err := sw.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for itemID, v := range snap {
		if lapsed(v.Item, nowMs, idleMs) {
			ids = append(ids, itemID)
		}
	}
	return ids, nil
}

func lapsed(it *backlog.Item, nowMs, idleMs int64) bool {
	if it.LeaseExpired(nowMs) {
		return true
	}
	return idleMs > 0 && it.Status == backlog.StatusClaimed && nowMs-it.HeartbeatMs > idleMs
}

// Runner sweeps on a fixed interval until stopped.
type Runner struct {
	sweeper  *Sweeper
	interval time.Duration
	logger   log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a periodic runner around sw. A zero interval defaults
// to 10s.
func NewRunner(sw *Sweeper, interval time.Duration, logger log.Logger) *Runner {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{sweeper: sw, interval: interval, logger: logger, ctx: ctx, cancel: cancel}
}

// Start begins the sweep loop.
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

	r.logger.Info("reaper started", log.F("interval", r.interval.String()))
	for {
		select {
		case <-r.ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			if _, err := r.sweeper.Sweep(r.ctx); err != nil && r.ctx.Err() == nil {
				r.logger.Error("sweep failed", log.Err(err))
			}
		}
	}
}
