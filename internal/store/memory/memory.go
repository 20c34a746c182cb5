// Package memory provides an in-process Store used by tests. Its
// conditional-accept behavior matches the durable store, and proposals can
// be intercepted to simulate lost races and infrastructure failures
// deterministically.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vmatresu/claimd/internal/backlog"
	"github.com/vmatresu/claimd/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu    sync.Mutex
	items map[string]entry

	// ProposeHook, when set, runs under the store lock before each proposal
	// is validated. Returning a non-nil error rejects the batch with that
	// error. Used to inject conflicts and outages in tests.
	ProposeHook func(b store.Batch) error

	proposals int
}

type entry struct {
	item *backlog.Item
	rev  store.Rev
}

// New creates an empty Store.
func New() *Store {
	return &Store{items: make(map[string]entry)}
}

// Seed inserts items without conflict checking. Test setup only.
func (s *Store) Seed(items ...*backlog.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.items[it.ID] = entry{item: it.Clone(), rev: 1}
	}
}

// Snapshot implements store.Store.
func (s *Store) Snapshot(ctx context.Context) (map[string]Versioned, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Versioned, len(s.items))
	for id, e := range s.items {
		out[id] = Versioned{Item: e.item.Clone(), Rev: e.rev}
	}
	return out, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (Versioned, error) {
	if err := ctx.Err(); err != nil {
		return Versioned{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return Versioned{}, fmt.Errorf("get %s: %w", id, store.ErrNotFound)
	}
	return Versioned{Item: e.item.Clone(), Rev: e.rev}, nil
}

// Propose implements store.Store. The whole batch is validated before any
// op is applied, so rejection never leaves partial state.
func (s *Store) Propose(ctx context.Context, b store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ProposeHook != nil {
		if err := s.ProposeHook(b); err != nil {
			return err
		}
	}

	for _, op := range b.Ops {
		cur, exists := s.items[op.ID]
		if op.BaseRev == 0 {
			if exists {
				return fmt.Errorf("propose %s: %w", op.ID, store.ErrExists)
			}
			continue
		}
		if !exists || cur.rev != op.BaseRev {
			return fmt.Errorf("propose %s: %w", op.ID, store.ErrConflict)
		}
	}

	for _, op := range b.Ops {
		if op.Item == nil {
			delete(s.items, op.ID)
			continue
		}
		s.items[op.ID] = entry{item: op.Item.Clone(), rev: store.Rev(uint64(op.BaseRev) + 1)}
	}
	s.proposals++
	return nil
}

// Proposals returns how many batches have been accepted.
func (s *Store) Proposals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proposals
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Versioned aliases store.Versioned for brevity in test helpers.
type Versioned = store.Versioned
