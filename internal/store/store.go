// Package store abstracts the backlog's shared mutable state behind a
// snapshot/propose interface. Propose is the append-log primitive: a batch
// of item mutations is accepted atomically iff every touched item is still
// at the revision the proposer observed, otherwise the whole batch is
// rejected with ErrConflict and the proposer must re-observe. This
// conditional accept is the sole concurrency-control mechanism; there is no
// separate lock service.
package store

import (
	"context"
	"errors"

	"github.com/vmatresu/claimd/internal/backlog"
)

// Rev is a per-item revision number. Zero means "the item does not exist".
type Rev uint64

// Versioned pairs an item with the revision it was read at.
type Versioned struct {
	Item *backlog.Item
	Rev  Rev
}

// Op is one conditional mutation inside a batch.
//
// BaseRev == 0 asserts the item must not exist (create). A nil Item deletes
// the entry; otherwise the entry is replaced.
type Op struct {
	ID      string
	BaseRev Rev
	Item    *backlog.Item
}

// Batch is a set of Ops applied atomically: all accepted or all rejected.
type Batch struct {
	Ops []Op
}

// Update appends a conditional replace.
func (b *Batch) Update(id string, base Rev, it *backlog.Item) {
	b.Ops = append(b.Ops, Op{ID: id, BaseRev: base, Item: it})
}

// Create appends an expect-absent insert.
func (b *Batch) Create(it *backlog.Item) {
	b.Ops = append(b.Ops, Op{ID: it.ID, BaseRev: 0, Item: it})
}

// Delete appends a conditional removal.
func (b *Batch) Delete(id string, base Rev) {
	b.Ops = append(b.Ops, Op{ID: id, BaseRev: base})
}

// Store is the backlog persistence surface.
type Store interface {
	// Snapshot returns a point-in-time view of every item keyed by id. The
	// view may be stale by the time a proposal lands; Propose re-validates.
	Snapshot(ctx context.Context) (map[string]Versioned, error)

	// Get returns one item with its revision, or ErrNotFound.
	Get(ctx context.Context, id string) (Versioned, error)

	// Propose applies the batch atomically. ErrConflict when any op's
	// BaseRev no longer matches (including create-vs-exists, ErrExists is a
	// conflict subtype); the batch is then not applied at all.
	Propose(ctx context.Context, b Batch) error

	Close() error
}

// ReadyIndex is an optional fast path for stores that keep a claim-order
// index over ready items. IDs come back highest priority first, ties broken
// by creation stamp. Callers fall back to Snapshot when the store does not
// implement it.
type ReadyIndex interface {
	ReadyIDs(ctx context.Context, limit int) ([]string, error)
}

// LeaseIndex is an optional fast path for stores that index claimed items by
// lease expiry. IDs whose lease expired strictly before nowMs come back in
// expiry order.
type LeaseIndex interface {
	ExpiredLeaseIDs(ctx context.Context, nowMs int64) ([]string, error)
}

// Sentinel errors shared by all store implementations.
var (
	// ErrConflict: another proposer's batch was accepted first; re-observe
	// and retry.
	ErrConflict = errors.New("store: proposal conflicts with accepted state")
	ErrNotFound = errors.New("store: item not found")
	// ErrExists wraps ErrConflict semantics for expect-absent creates.
	ErrExists = errors.New("store: item already exists")
)

// IsConflict reports whether err represents a lost proposal race.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrExists)
}
