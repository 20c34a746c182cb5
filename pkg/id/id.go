// Package id produces lexicographically sortable creation stamps.
//
// A Stamp encodes [8 bytes ms_timestamp][8 bytes sequence] big-endian, so
// byte-wise (and hex string) comparison orders stamps by creation time with
// a per-process sequence breaking same-millisecond ties.
package id

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"
)

// Stamp is a 128-bit sortable creation identifier.
type Stamp [16]byte

// Bytes returns the raw 16-byte representation.
func (s Stamp) Bytes() []byte { b := make([]byte, 16); copy(b, s[:]); return b }

// String returns the lower-case hex encoding.
func (s Stamp) String() string { return hex.EncodeToString(s[:]) }

// TimeMs returns the embedded millisecond timestamp.
func (s Stamp) TimeMs() int64 { return int64(binary.BigEndian.Uint64(s[0:8])) }

// Compare returns -1, 0, or 1 by byte-wise comparison.
func (s Stamp) Compare(other Stamp) int {
	for i := 0; i < 16; i++ {
		if s[i] < other[i] {
			return -1
		}
		if s[i] > other[i] {
			return 1
		}
	}
	return 0
}

// Parse decodes a hex-encoded Stamp.
func Parse(v string) (Stamp, error) {
	var s Stamp
	b, err := hex.DecodeString(v)
	if err != nil {
		return s, fmt.Errorf("parse stamp: %w", err)
	}
	if len(b) != 16 {
		return s, fmt.Errorf("parse stamp: want 16 bytes, got %d", len(b))
	}
	copy(s[:], b)
	return s, nil
}

// NowMs returns current time in milliseconds since the Unix epoch.
// Overridable in tests.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Generator produces monotonically increasing Stamps per process.
type Generator struct {
	mu     sync.Mutex
	lastMs int64
	seq    uint64
}

// NewGenerator creates a Generator.
func NewGenerator() *Generator { return &Generator{} }

// Next returns a new Stamp. A clock running backwards reuses the last
// observed millisecond; sequence overflow within one millisecond waits for
// the next tick.
func (g *Generator) Next() Stamp {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	if ms == g.lastMs {
		if g.seq == math.MaxUint64 {
			for {
				ms = NowMs()
				if ms > g.lastMs {
					break
				}
				time.Sleep(time.Millisecond / 8)
			}
			g.seq = 0
		} else {
			g.seq++
		}
	} else {
		g.seq = 0
	}
	g.lastMs = ms

	var s Stamp
	binary.BigEndian.PutUint64(s[0:8], uint64(ms))
	binary.BigEndian.PutUint64(s[8:16], g.seq)
	return s
}
