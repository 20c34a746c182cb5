package pebblestore

import (
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
)

// FsyncMode defines WAL durability behavior for committed batches.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways requests a WAL fsync on each committed batch.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble coalesce WAL syncs for commits landing
	// within the configured interval.
	FsyncModeInterval
	// FsyncModeNever never forces a sync from the application. Pebble may
	// still sync on its own schedule.
	FsyncModeNever
)

// Options configures the Pebble wrapper.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Fsync determines when to sync the WAL. Claims are correctness-bearing
	// state, so the default is FsyncModeAlways.
	Fsync FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning. If nil, defaults are used.
	PebbleOptions *pebble.Options
}

// db wraps a Pebble instance with the configured fsync policy.
type db struct {
	inner     *pebble.DB
	writeSync bool
}

func openDB(opts Options) (*db, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblestore: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}

	switch opts.Fsync {
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return opts.FsyncInterval }
	case FsyncModeNever:
	default:
		// Unspecified behaves like Always: a lost claim acknowledgment can
		// put two workers on the same item.
		opts.Fsync = FsyncModeAlways
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	return &db{inner: inner, writeSync: opts.Fsync == FsyncModeAlways}, nil
}

func (d *db) close() error {
	if d == nil || d.inner == nil {
		return nil
	}
	return d.inner.Close()
}

// get copies the value for key, or returns pebble.ErrNotFound.
func (d *db) get(key []byte) ([]byte, error) {
	val, closer, err := d.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (d *db) commit(b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebblestore: nil batch")
	}
	syncMode := pebble.NoSync
	if d.writeSync {
		syncMode = pebble.Sync
	}
	return b.Commit(syncMode)
}
