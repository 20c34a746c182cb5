package reaper

import (
	"context"
	"testing"

	"github.com/vmatresu/claimd/internal/backlog"
	"github.com/vmatresu/claimd/internal/store"
	"github.com/vmatresu/claimd/internal/store/memory"
)

func TestSweepReleasesOnlyExpired(t *testing.T) {
	s := memory.New()
	s.Seed(
		&backlog.Item{ID: "stale", Status: backlog.StatusClaimed, Claimant: "w1",
			HeartbeatMs: 1000, LeaseMs: 500, Priority: 2},
		&backlog.Item{ID: "fresh", Status: backlog.StatusClaimed, Claimant: "w2",
			HeartbeatMs: 1400, LeaseMs: 500},
		&backlog.Item{ID: "idle", Status: backlog.StatusReady},
	)
	sw := NewSweeper(s, nil)
	sw.nowMs = func() int64 { return 1600 }

	released, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if released != 1 {
		t.Fatalf("want 1 released, got %d", released)
	}

	ctx := context.Background()
	stale, _ := s.Get(ctx, "stale")
	if stale.Item.Status != backlog.StatusReady || stale.Item.Claimant != "" {
		t.Fatalf("stale not released: %+v", stale.Item)
	}
	if stale.Item.Priority != 2 {
		t.Fatalf("release lost metadata: %+v", stale.Item)
	}
	fresh, _ := s.Get(ctx, "fresh")
	if fresh.Item.Status != backlog.StatusClaimed || fresh.Item.Claimant != "w2" {
		t.Fatalf("fresh claim disturbed: %+v", fresh.Item)
	}
}

func TestSweepBoundaryIsStrict(t *testing.T) {
	s := memory.New()
	s.Seed(&backlog.Item{ID: "edge", Status: backlog.StatusClaimed, Claimant: "w1",
		HeartbeatMs: 1000, LeaseMs: 500})
	sw := NewSweeper(s, nil)

	// exactly heartbeat+lease: still live
	sw.nowMs = func() int64 { return 1500 }
	if released, _ := sw.Sweep(context.Background()); released != 0 {
		t.Fatalf("released at boundary")
	}

	sw.nowMs = func() int64 { return 1501 }
	if released, _ := sw.Sweep(context.Background()); released != 1 {
		t.Fatalf("not released past boundary")
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	s := memory.New()
	s.Seed(&backlog.Item{ID: "stale", Status: backlog.StatusClaimed, Claimant: "w1",
		HeartbeatMs: 0, LeaseMs: 1})
	sw := NewSweeper(s, nil)
	sw.nowMs = func() int64 { return 1000 }

	if released, _ := sw.Sweep(context.Background()); released != 1 {
		t.Fatalf("first sweep")
	}
	if released, _ := sw.Sweep(context.Background()); released != 0 {
		t.Fatalf("second sweep must be a no-op")
	}
}

func TestSweepOlderThanOverridesLease(t *testing.T) {
	s := memory.New()
	s.Seed(
		&backlog.Item{ID: "long-lease", Status: backlog.StatusClaimed, Claimant: "w1",
			HeartbeatMs: 1000, LeaseMs: 60_000},
		&backlog.Item{ID: "recent", Status: backlog.StatusClaimed, Claimant: "w2",
			HeartbeatMs: 1900, LeaseMs: 60_000},
	)
	sw := NewSweeper(s, nil)
	sw.nowMs = func() int64 { return 2000 }

	// neither lease lapsed
	if released, _ := sw.Sweep(context.Background()); released != 0 {
		t.Fatalf("plain sweep released inside lease")
	}

	// idle 1000ms > 500ms override; recent is idle only 100ms
	released, err := sw.SweepOlderThan(context.Background(), 500)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if released != 1 {
		t.Fatalf("want 1 released, got %d", released)
	}
	ctx := context.Background()
	long, _ := s.Get(ctx, "long-lease")
	if long.Item.Status != backlog.StatusReady {
		t.Fatalf("override did not release: %+v", long.Item)
	}
	recent, _ := s.Get(ctx, "recent")
	if recent.Item.Claimant != "w2" {
		t.Fatalf("recent claim disturbed: %+v", recent.Item)
	}
}

func TestSweepSkipsItemsThatMovedUnderIt(t *testing.T) {
	s := memory.New()
	s.Seed(&backlog.Item{ID: "stale", Status: backlog.StatusClaimed, Claimant: "w1",
		HeartbeatMs: 0, LeaseMs: 1})
	sw := NewSweeper(s, nil)
	sw.nowMs = func() int64 { return 1000 }

	// the claimant renews between the sweep's read and its proposal
	s.ProposeHook = func(store.Batch) error { return store.ErrConflict }

	released, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if released != 0 {
		t.Fatalf("conflicted release must not count")
	}
	cur, _ := s.Get(context.Background(), "stale")
	if cur.Item.Claimant != "w1" {
		t.Fatalf("claim clobbered: %+v", cur.Item)
	}
}
