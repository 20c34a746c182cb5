package resolver

import (
	"context"
	"testing"

	"github.com/vmatresu/claimd/internal/backlog"
	"github.com/vmatresu/claimd/internal/store"
	"github.com/vmatresu/claimd/internal/store/memory"
)

func done(id string) *backlog.Item {
	return &backlog.Item{ID: id, Status: backlog.StatusCompleted,
		Completion: &backlog.Completion{WorkerID: "w0", CompletedAtMs: 1}}
}

func TestResolvePromotesWhenAllDepsCompleted(t *testing.T) {
	s := memory.New()
	s.Seed(
		done("dep-a"),
		done("dep-b"),
		&backlog.Item{ID: "gated", Status: backlog.StatusBlocked, Deps: []string{"dep-a", "dep-b"}},
	)
	r := New(s, nil)

	promoted, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if promoted != 1 {
		t.Fatalf("want 1 promoted, got %d", promoted)
	}
	v, _ := s.Get(context.Background(), "gated")
	if v.Item.Status != backlog.StatusReady {
		t.Fatalf("not promoted: %+v", v.Item)
	}
}

func TestResolveHoldsWhileAnyDepPending(t *testing.T) {
	s := memory.New()
	s.Seed(
		done("dep-a"),
		&backlog.Item{ID: "dep-b", Status: backlog.StatusClaimed, Claimant: "w1",
			HeartbeatMs: 1, LeaseMs: 1000},
		&backlog.Item{ID: "gated", Status: backlog.StatusBlocked, Deps: []string{"dep-a", "dep-b"}},
	)
	r := New(s, nil)

	promoted, _ := r.Resolve(context.Background())
	if promoted != 0 {
		t.Fatalf("promoted with pending dep")
	}
	v, _ := s.Get(context.Background(), "gated")
	if v.Item.Status != backlog.StatusBlocked {
		t.Fatalf("status changed: %+v", v.Item)
	}
}

func TestResolveUnknownDepStaysBlocked(t *testing.T) {
	s := memory.New()
	s.Seed(&backlog.Item{ID: "gated", Status: backlog.StatusBlocked, Deps: []string{"ghost"}})
	r := New(s, nil)

	promoted, _ := r.Resolve(context.Background())
	if promoted != 0 {
		t.Fatalf("promoted despite unknown dep")
	}
}

func TestResolveEmptyDepsPromotesWithWarning(t *testing.T) {
	s := memory.New()
	s.Seed(&backlog.Item{ID: "odd", Status: backlog.StatusBlocked})
	r := New(s, nil)

	promoted, _ := r.Resolve(context.Background())
	if promoted != 1 {
		t.Fatalf("dependency-free blocked item must be promoted")
	}
}

func TestResolveChainNeedsOnePassPerHop(t *testing.T) {
	s := memory.New()
	s.Seed(
		done("a"),
		&backlog.Item{ID: "b", Status: backlog.StatusBlocked, Deps: []string{"a"}},
		&backlog.Item{ID: "c", Status: backlog.StatusBlocked, Deps: []string{"b"}},
	)
	r := New(s, nil)
	ctx := context.Background()

	promoted, _ := r.Resolve(ctx)
	if promoted != 1 {
		t.Fatalf("first pass: want 1, got %d", promoted)
	}
	// b is ready, not completed, so c stays gated
	v, _ := s.Get(ctx, "c")
	if v.Item.Status != backlog.StatusBlocked {
		t.Fatalf("c unblocked before b completed")
	}
}

func TestResolveSkipsConflictedItems(t *testing.T) {
	s := memory.New()
	s.Seed(
		done("a"),
		&backlog.Item{ID: "gated", Status: backlog.StatusBlocked, Deps: []string{"a"}},
	)
	r := New(s, nil)
	s.ProposeHook = func(store.Batch) error { return store.ErrConflict }

	promoted, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if promoted != 0 {
		t.Fatalf("conflicted promotion must not count")
	}
}
