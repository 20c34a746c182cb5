package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vmatresu/claimd/internal/backlog"
	"github.com/vmatresu/claimd/internal/store"
	"github.com/vmatresu/claimd/pkg/id"
	"github.com/vmatresu/claimd/pkg/log"
)

var (
	// ErrNoWork: no ready item passed the worker's filter.
	ErrNoWork = errors.New("coordinator: no claimable work")
	// ErrNotOwner: the item is not currently held by this worker.
	ErrNotOwner = errors.New("coordinator: item not held by this worker")
	// ErrTerminal: the item is completed and cannot change again.
	ErrTerminal = errors.New("coordinator: item already completed")
)

// Options configures a Coordinator.
type Options struct {
	Store  store.Store
	Logger log.Logger

	// MaxAttempts bounds how many proposals one operation makes before
	// giving up with a conflict error. Zero means 4.
	MaxAttempts int
	// BackoffBase is the delay before the second attempt; it doubles per
	// attempt up to BackoffCap. Zero means 2s / 30s.
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Coordinator drives the claim protocol against a Store.
type Coordinator struct {
	store store.Store
	log   log.Logger
	gen   *id.Generator

	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration

	// overridable in tests
	nowMs func() int64
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 30 * time.Second
	}
	return &Coordinator{
		store:       opts.Store,
		log:         logger,
		gen:         id.NewGenerator(),
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		backoffCap:  opts.BackoffCap,
		nowMs:       id.NowMs,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff returns the delay before the given attempt: the base before the
// second, doubling thereafter up to the cap.
func (c *Coordinator) backoff(attempt int) time.Duration {
	d := c.backoffBase << (attempt - 2)
	if d > c.backoffCap || d <= 0 {
		d = c.backoffCap
	}
	return d
}

// AddRequest describes a new backlog item.
type AddRequest struct {
	ID       string
	Kind     string
	Title    string
	Priority int32
	Deps     []string
	Headers  map[string]string
}

// Add inserts a new item. Items with dependencies start blocked, everything
// else starts ready. An empty ID gets the creation stamp as its ID.
func (c *Coordinator) Add(ctx context.Context, req AddRequest) (*backlog.Item, error) {
	stamp := c.gen.Next().String()
	itemID := req.ID
	if itemID == "" {
		itemID = stamp
	}
	status := backlog.StatusReady
	if len(req.Deps) > 0 {
		status = backlog.StatusBlocked
	}
	it := &backlog.Item{
		ID:          itemID,
		Kind:        req.Kind,
		Title:       req.Title,
		Headers:     req.Headers,
		Status:      status,
		Priority:    req.Priority,
		Deps:        req.Deps,
		Stamp:       stamp,
		CreatedAtMs: c.nowMs(),
	}
	if err := it.Validate(); err != nil {
		return nil, err
	}
	var b store.Batch
	b.Create(it)
	if err := c.store.Propose(ctx, b); err != nil {
		return nil, err
	}
	c.log.Info("item added",
		log.F("item", it.ID),
		log.F("status", string(it.Status)),
		log.F("priority", it.Priority))
	return it.Clone(), nil
}

// Claim takes ownership of the best ready item passing the filter. On a lost
// race it re-observes and retries with exponential backoff; when every ready
// item is gone it returns ErrNoWork, and when attempts run out it returns a
// conflict error.
func (c *Coordinator) Claim(ctx context.Context, workerID string, f Filter, leaseMs int64) (*backlog.Item, error) {
	if workerID == "" {
		return nil, errors.New("coordinator: worker id required")
	}
	if leaseMs <= 0 {
		return nil, fmt.Errorf("coordinator: lease must be positive, got %d", leaseMs)
	}
	cf, err := newCELFilter(f.Expr)
	if err != nil {
		return nil, fmt.Errorf("coordinator: filter: %w", err)
	}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
		}

		cand, err := c.selectReady(ctx, f, cf)
		if err != nil {
			return nil, err
		}

		now := c.nowMs()
		claimed := cand.Item.Clone()
		claimed.Status = backlog.StatusClaimed
		claimed.Claimant = workerID
		claimed.ClaimedAtMs = now
		claimed.HeartbeatMs = now
		claimed.LeaseMs = leaseMs

		var b store.Batch
		b.Update(claimed.ID, cand.Rev, claimed)
		err = c.store.Propose(ctx, b)
		if err == nil {
			c.log.Info("item claimed",
				log.F("item", claimed.ID),
				log.F("worker", workerID),
				log.F("lease_ms", leaseMs),
				log.F("attempt", attempt))
			return claimed, nil
		}
		if !store.IsConflict(err) {
			return nil, err
		}
		c.log.Debug("claim lost race",
			log.F("item", claimed.ID),
			log.F("worker", workerID),
			log.F("attempt", attempt))
	}
	return nil, fmt.Errorf("coordinator: claim gave up after %d attempts: %w", c.maxAttempts, store.ErrConflict)
}

// selectReady returns the best ready item passing the filter: highest
// priority first, then oldest stamp, then lowest id.
func (c *Coordinator) selectReady(ctx context.Context, f Filter, cf celFilter) (store.Versioned, error) {
	now := c.nowMs()

	if ri, ok := c.store.(store.ReadyIndex); ok {
		ids, err := ri.ReadyIDs(ctx, 0)
		if err != nil {
			return store.Versioned{}, err
		}
		for _, itemID := range ids {
			v, err := c.store.Get(ctx, itemID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return store.Versioned{}, err
			}
			if v.Item.Status != backlog.StatusReady {
				continue
			}
			if f.matches(cf, v.Item, now) {
				return v, nil
			}
		}
		return store.Versioned{}, ErrNoWork
	}

	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		return store.Versioned{}, err
	}
	var ready []store.Versioned
	for _, v := range snap {
		if v.Item.Status == backlog.StatusReady && f.matches(cf, v.Item, now) {
			ready = append(ready, v)
		}
	}
	if len(ready) == 0 {
		return store.Versioned{}, ErrNoWork
	}
	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i].Item, ready[j].Item
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Stamp != b.Stamp {
			return a.Stamp < b.Stamp
		}
		return a.ID < b.ID
	})
	return ready[0], nil
}

// Renew refreshes the heartbeat on a held item and returns the new expiry
// in ms. A positive leaseMs also replaces the lease length. Retries once
// after a lost race; the re-read decides whether the worker still owns the
// item.
func (c *Coordinator) Renew(ctx context.Context, itemID, workerID string, leaseMs int64) (int64, error) {
	var expiresMs int64
	err := c.mutateOwned(ctx, itemID, workerID, func(it *backlog.Item) {
		it.HeartbeatMs = c.nowMs()
		if leaseMs > 0 {
			it.LeaseMs = leaseMs
		}
		expiresMs = it.HeartbeatMs + it.LeaseMs
	}, "renewed")
	if err != nil {
		return 0, err
	}
	return expiresMs, nil
}

// Complete marks a held item done. Completion is terminal: a repeat
// complete fails with ErrTerminal even for the worker that completed it.
func (c *Coordinator) Complete(ctx context.Context, itemID, workerID, ref string) error {
	return c.mutateOwned(ctx, itemID, workerID, func(it *backlog.Item) {
		it.Status = backlog.StatusCompleted
		it.Completion = &backlog.Completion{
			WorkerID:      workerID,
			CompletedAtMs: c.nowMs(),
			Ref:           ref,
		}
		it.Claimant = ""
		it.ClaimedAtMs = 0
		it.HeartbeatMs = 0
	}, "completed")
}

// Release gives up a held item without completing it. The item returns to
// ready and keeps its place in claim order.
func (c *Coordinator) Release(ctx context.Context, itemID, workerID string) error {
	return c.mutateOwned(ctx, itemID, workerID, func(it *backlog.Item) {
		it.Release()
	}, "released")
}

// mutateOwned applies mutate to an item this worker holds and proposes the
// result, retrying once on conflict.
func (c *Coordinator) mutateOwned(ctx context.Context, itemID, workerID string, mutate func(*backlog.Item), verb string) error {
	for attempt := 1; attempt <= 2; attempt++ {
		v, err := c.store.Get(ctx, itemID)
		if err != nil {
			return err
		}
		it := v.Item
		if it.Status == backlog.StatusCompleted {
			return fmt.Errorf("%s %s: %w", verb, itemID, ErrTerminal)
		}
		if it.Status != backlog.StatusClaimed || it.Claimant != workerID {
			return fmt.Errorf("%s %s: held by %q: %w", verb, itemID, it.Claimant, ErrNotOwner)
		}

		upd := it.Clone()
		mutate(upd)
		if err := upd.Validate(); err != nil {
			return err
		}
		var b store.Batch
		b.Update(itemID, v.Rev, upd)
		err = c.store.Propose(ctx, b)
		if err == nil {
			c.log.Info("item "+verb, log.F("item", itemID), log.F("worker", workerID))
			return nil
		}
		if !store.IsConflict(err) {
			return err
		}
	}
	return fmt.Errorf("coordinator: %s %s: lost race twice: %w", verb, itemID, store.ErrConflict)
}
