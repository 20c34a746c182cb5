package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/vmatresu/claimd/internal/backlog"
	"github.com/vmatresu/claimd/internal/store"
)

func TestProposeCreateAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	var b store.Batch
	b.Create(&backlog.Item{ID: "a", Status: backlog.StatusReady})
	if err := s.Propose(ctx, b); err != nil {
		t.Fatalf("propose: %v", err)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Rev != 1 || got.Item.Status != backlog.StatusReady {
		t.Fatalf("unexpected: rev=%d item=%+v", got.Rev, got.Item)
	}

	// create again must conflict
	var b2 store.Batch
	b2.Create(&backlog.Item{ID: "a", Status: backlog.StatusReady})
	if err := s.Propose(ctx, b2); !store.IsConflict(err) {
		t.Fatalf("want conflict on duplicate create, got %v", err)
	}
}

func TestProposeStaleRevRejected(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Seed(&backlog.Item{ID: "a", Status: backlog.StatusReady})

	v, _ := s.Get(ctx, "a")

	// first proposer wins
	upd := v.Item.Clone()
	upd.Status = backlog.StatusClaimed
	upd.Claimant = "w1"
	var b1 store.Batch
	b1.Update("a", v.Rev, upd)
	if err := s.Propose(ctx, b1); err != nil {
		t.Fatalf("first propose: %v", err)
	}

	// second proposer with the stale rev loses
	upd2 := v.Item.Clone()
	upd2.Status = backlog.StatusClaimed
	upd2.Claimant = "w2"
	var b2 store.Batch
	b2.Update("a", v.Rev, upd2)
	err := s.Propose(ctx, b2)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}

	// state reflects only the winner
	cur, _ := s.Get(ctx, "a")
	if cur.Item.Claimant != "w1" || cur.Rev != v.Rev+1 {
		t.Fatalf("state corrupted: %+v rev=%d", cur.Item, cur.Rev)
	}
}

func TestProposeAtomicAcrossOps(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Seed(&backlog.Item{ID: "a", Status: backlog.StatusReady})

	va, _ := s.Get(ctx, "a")
	upd := va.Item.Clone()
	upd.Status = backlog.StatusClaimed
	upd.Claimant = "w1"

	var b store.Batch
	b.Update("a", va.Rev, upd)
	b.Update("missing", 7, &backlog.Item{ID: "missing", Status: backlog.StatusReady})
	if err := s.Propose(ctx, b); !store.IsConflict(err) {
		t.Fatalf("want conflict, got %v", err)
	}

	// "a" must be untouched
	cur, _ := s.Get(ctx, "a")
	if cur.Item.Status != backlog.StatusReady {
		t.Fatalf("batch partially applied: %+v", cur.Item)
	}
}

func TestProposeHookInjectsRejection(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Seed(&backlog.Item{ID: "a", Status: backlog.StatusReady})

	rejections := 2
	s.ProposeHook = func(store.Batch) error {
		if rejections > 0 {
			rejections--
			return store.ErrConflict
		}
		return nil
	}

	v, _ := s.Get(ctx, "a")
	upd := v.Item.Clone()
	upd.Status = backlog.StatusClaimed
	upd.Claimant = "w1"
	var b store.Batch
	b.Update("a", v.Rev, upd)

	for i := 0; i < 2; i++ {
		if err := s.Propose(ctx, b); !store.IsConflict(err) {
			t.Fatalf("attempt %d: want injected conflict, got %v", i, err)
		}
	}
	if err := s.Propose(ctx, b); err != nil {
		t.Fatalf("after hook drained: %v", err)
	}
}

func TestSnapshotIsolatedFromMutation(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Seed(&backlog.Item{ID: "a", Status: backlog.StatusReady, Priority: 1})

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap["a"].Item.Priority = 99

	cur, _ := s.Get(ctx, "a")
	if cur.Item.Priority != 1 {
		t.Fatalf("snapshot aliased live state")
	}
}
