// Package worker runs the claim-side of the protocol: take an item, keep
// its lease alive while a handler works on it, then complete or release it.
// The heartbeat runs at half the lease length, so one missed beat still
// leaves slack before the reaper takes the item back.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vmatresu/claimd/internal/backlog"
	"github.com/vmatresu/claimd/internal/coordinator"
	"github.com/vmatresu/claimd/pkg/log"
)

// Handler processes one claimed item. The context is cancelled if the
// worker loses ownership mid-flight; handlers should stop promptly and
// discard partial output. Ref is an optional pointer to the produced result
// recorded on completion.
type Handler interface {
	Handle(ctx context.Context, it *backlog.Item) (ref string, err error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, it *backlog.Item) (string, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, it *backlog.Item) (string, error) {
	return f(ctx, it)
}

// ErrOwnershipLost: the lease was taken from under the handler, usually
// because heartbeats stopped landing for longer than the lease.
var ErrOwnershipLost = errors.New("worker: ownership lost while handling item")

// Options configures a Worker.
type Options struct {
	Coordinator *coordinator.Coordinator
	Handler     Handler
	Logger      log.Logger

	// ID identifies this worker as claimant. Empty generates
	// "worker-<uuid>".
	ID string
	// Filter narrows which items the worker claims.
	Filter coordinator.Filter
	// LeaseMs is the lease requested on each claim. Zero means 30s.
	LeaseMs int64
	// HeartbeatEvery overrides the renew cadence. Zero means LeaseMs/2.
	HeartbeatEvery time.Duration
}

// Worker claims and processes items until stopped or the backlog drains.
type Worker struct {
	coord   *coordinator.Coordinator
	handler Handler
	log     log.Logger

	id        string
	filter    coordinator.Filter
	leaseMs   int64
	heartbeat time.Duration
}

// New creates a Worker.
func New(opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	workerID := opts.ID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()
	}
	if opts.LeaseMs <= 0 {
		opts.LeaseMs = 30_000
	}
	hb := opts.HeartbeatEvery
	if hb <= 0 {
		hb = time.Duration(opts.LeaseMs/2) * time.Millisecond
	}
	return &Worker{
		coord:     opts.Coordinator,
		handler:   opts.Handler,
		log:       logger.With(log.F("worker", workerID)),
		id:        workerID,
		filter:    opts.Filter,
		leaseMs:   opts.LeaseMs,
		heartbeat: hb,
	}
}

// ID returns the worker's claimant id.
func (w *Worker) ID() string { return w.id }

// RunOnce claims one item and processes it to completion or release.
// coordinator.ErrNoWork passes through when nothing is claimable.
func (w *Worker) RunOnce(ctx context.Context) error {
	it, err := w.coord.Claim(ctx, w.id, w.filter, w.leaseMs)
	if err != nil {
		return err
	}
	return w.process(ctx, it)
}

// Run processes items until the context ends or the backlog has no work
// left. Handler failures release the item and stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		err := w.RunOnce(ctx)
		switch {
		case errors.Is(err, coordinator.ErrNoWork):
			w.log.Info("backlog drained")
			return nil
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			return err
		}
	}
}

func (w *Worker) process(ctx context.Context, it *backlog.Item) error {
	handleCtx, cancelHandle := context.WithCancel(ctx)
	defer cancelHandle()

	var lost atomic.Bool
	hbDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.heartbeatLoop(handleCtx, it.ID, &lost, cancelHandle, hbDone)
	}()

	ref, handleErr := w.handler.Handle(handleCtx, it)

	close(hbDone)
	wg.Wait()

	if lost.Load() {
		w.log.Error("abandoning item, claim no longer ours", log.F("item", it.ID))
		return fmt.Errorf("handle %s: %w", it.ID, ErrOwnershipLost)
	}
	if handleErr != nil {
		w.log.Warn("handler failed, releasing item", log.F("item", it.ID), log.Err(handleErr))
		if relErr := w.coord.Release(ctx, it.ID, w.id); relErr != nil {
			w.log.Error("release failed", log.F("item", it.ID), log.Err(relErr))
		}
		return fmt.Errorf("handle %s: %w", it.ID, handleErr)
	}
	if err := w.coord.Complete(ctx, it.ID, w.id, ref); err != nil {
		return fmt.Errorf("complete %s: %w", it.ID, err)
	}
	w.log.Info("item done", log.F("item", it.ID), log.F("ref", ref))
	return nil
}

// heartbeatLoop renews the lease until the handler finishes. Losing
// ownership flips lost and cancels the handler context.
func (w *Worker) heartbeatLoop(ctx context.Context, itemID string, lost *atomic.Bool, cancelHandle context.CancelFunc, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := w.coord.Renew(ctx, itemID, w.id, 0)
			if err == nil {
				continue
			}
			if errors.Is(err, coordinator.ErrNotOwner) || errors.Is(err, coordinator.ErrTerminal) {
				lost.Store(true)
				cancelHandle()
				return
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("heartbeat failed", log.F("item", itemID), log.Err(err))
		}
	}
}
