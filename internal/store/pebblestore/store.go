package pebblestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/vmatresu/claimd/internal/backlog"
	"github.com/vmatresu/claimd/internal/store"
)

// Store is the durable store.Store implementation.
type Store struct {
	db *db

	// commitMu serializes validate+commit so a proposal's revision checks
	// cannot be invalidated between the read and the batch commit.
	commitMu sync.Mutex
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.ReadyIndex = (*Store)(nil)
	_ store.LeaseIndex = (*Store)(nil)
)

// Open creates or opens a backlog store at opts.DataDir.
func Open(opts Options) (*Store, error) {
	d, err := openDB(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: d}, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.close()
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, itemID string) (store.Versioned, error) {
	if err := ctx.Err(); err != nil {
		return store.Versioned{}, err
	}
	raw, err := s.db.get(itemKey(itemID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return store.Versioned{}, fmt.Errorf("get %s: %w", itemID, store.ErrNotFound)
		}
		return store.Versioned{}, fmt.Errorf("get %s: %w", itemID, err)
	}
	rev, it, err := backlog.DecodeRecord(raw)
	if err != nil {
		return store.Versioned{}, fmt.Errorf("get %s: %w", itemID, err)
	}
	return store.Versioned{Item: it, Rev: store.Rev(rev)}, nil
}

// Snapshot implements store.Store using a Pebble snapshot so the view is
// consistent even while proposals land.
func (s *Store) Snapshot(ctx context.Context) (map[string]store.Versioned, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.db.inner.NewSnapshot()
	defer snap.Close()

	lower, upper := keyRange(prefixItem)
	iter, err := snap.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer iter.Close()

	out := make(map[string]store.Versioned)
	for iter.First(); iter.Valid(); iter.Next() {
		rev, it, err := backlog.DecodeRecord(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", itemIDFromKey(iter.Key()), err)
		}
		out[it.ID] = store.Versioned{Item: it, Rev: store.Rev(rev)}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return out, nil
}

// Propose implements store.Store. Every op's BaseRev is validated against
// the current record under commitMu, then item records and index entries
// are written in one Pebble batch.
func (s *Store) Propose(ctx context.Context, b store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	// Validate first so rejection leaves nothing behind.
	current := make(map[string]*backlog.Item, len(b.Ops))
	for _, op := range b.Ops {
		raw, err := s.db.get(itemKey(op.ID))
		switch {
		case errors.Is(err, pebble.ErrNotFound):
			if op.BaseRev != 0 {
				return fmt.Errorf("propose %s: %w", op.ID, store.ErrConflict)
			}
		case err != nil:
			return fmt.Errorf("propose %s: %w", op.ID, err)
		default:
			rev, cur, derr := backlog.DecodeRecord(raw)
			if derr != nil {
				return fmt.Errorf("propose %s: %w", op.ID, derr)
			}
			if op.BaseRev == 0 {
				return fmt.Errorf("propose %s: %w", op.ID, store.ErrExists)
			}
			if store.Rev(rev) != op.BaseRev {
				return fmt.Errorf("propose %s: %w", op.ID, store.ErrConflict)
			}
			current[op.ID] = cur
		}
	}

	batch := s.db.inner.NewBatch()
	defer batch.Close()

	for _, op := range b.Ops {
		if old := current[op.ID]; old != nil {
			if err := clearIndexes(batch, old); err != nil {
				return err
			}
		}
		if op.Item == nil {
			if err := batch.Delete(itemKey(op.ID), nil); err != nil {
				return fmt.Errorf("propose %s: %w", op.ID, err)
			}
			continue
		}
		rec, err := backlog.EncodeRecord(uint64(op.BaseRev)+1, op.Item)
		if err != nil {
			return fmt.Errorf("propose %s: %w", op.ID, err)
		}
		if err := batch.Set(itemKey(op.ID), rec, nil); err != nil {
			return fmt.Errorf("propose %s: %w", op.ID, err)
		}
		if err := writeIndexes(batch, op.Item); err != nil {
			return err
		}
	}

	seq, err := s.seqLocked()
	if err != nil {
		return err
	}
	var sb [8]byte
	binary.BigEndian.PutUint64(sb[:], seq+1)
	if err := batch.Set([]byte(keyMetaSeq), sb[:], nil); err != nil {
		return fmt.Errorf("propose: %w", err)
	}

	if err := s.db.commit(batch); err != nil {
		return fmt.Errorf("propose: commit: %w", err)
	}
	return nil
}

func clearIndexes(batch *pebble.Batch, it *backlog.Item) error {
	switch it.Status {
	case backlog.StatusReady:
		if err := batch.Delete(readyIdxKey(it.Priority, it.Stamp, it.ID), nil); err != nil {
			return fmt.Errorf("index %s: %w", it.ID, err)
		}
	case backlog.StatusClaimed:
		if err := batch.Delete(leaseIdxKey(it.HeartbeatMs+it.LeaseMs, it.ID), nil); err != nil {
			return fmt.Errorf("index %s: %w", it.ID, err)
		}
	}
	return nil
}

func writeIndexes(batch *pebble.Batch, it *backlog.Item) error {
	switch it.Status {
	case backlog.StatusReady:
		if err := batch.Set(readyIdxKey(it.Priority, it.Stamp, it.ID), nil, nil); err != nil {
			return fmt.Errorf("index %s: %w", it.ID, err)
		}
	case backlog.StatusClaimed:
		if err := batch.Set(leaseIdxKey(it.HeartbeatMs+it.LeaseMs, it.ID), nil, nil); err != nil {
			return fmt.Errorf("index %s: %w", it.ID, err)
		}
	}
	return nil
}

// ReadyIDs implements store.ReadyIndex. A limit <= 0 means no limit.
func (s *Store) ReadyIDs(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lower, upper := keyRange(prefixReadyIdx)
	iter, err := s.db.inner.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("ready scan: %w", err)
	}
	defer iter.Close()

	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		ids = append(ids, readyIdxItemID(iter.Key()))
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("ready scan: %w", err)
	}
	return ids, nil
}

// ExpiredLeaseIDs implements store.LeaseIndex: claimed items whose lease
// expired strictly before nowMs, in expiry order.
func (s *Store) ExpiredLeaseIDs(ctx context.Context, nowMs int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lower := []byte(prefixLeaseIdx)
	upper := make([]byte, len(prefixLeaseIdx)+8)
	copy(upper, prefixLeaseIdx)
	binary.BigEndian.PutUint64(upper[len(prefixLeaseIdx):], uint64(nowMs))

	iter, err := s.db.inner.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("lease scan: %w", err)
	}
	defer iter.Close()

	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		ids = append(ids, leaseIdxItemID(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("lease scan: %w", err)
	}
	return ids, nil
}

// Seq returns the number of accepted proposals over the store's lifetime.
func (s *Store) Seq() (uint64, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return s.seqLocked()
}

func (s *Store) seqLocked() (uint64, error) {
	raw, err := s.db.get([]byte(keyMetaSeq))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("seq: %w", err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("seq: malformed value (%d bytes)", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}
