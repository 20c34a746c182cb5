package pebblestore

import (
	"encoding/binary"

	"github.com/vmatresu/claimd/pkg/id"
)

// Key layout:
//
//	bl/item/{id}                                  item record
//	bl/idx/ready/{prio}{stamp}{id}                claim-order index
//	bl/idx/lease/{expires_ms}{id}                 lease-expiry index
//	bl/meta/seq                                   accepted-batch counter
const (
	prefixItem     = "bl/item/"
	prefixReadyIdx = "bl/idx/ready/"
	prefixLeaseIdx = "bl/idx/lease/"
	keyMetaSeq     = "bl/meta/seq"
)

func itemKey(itemID string) []byte {
	return append([]byte(prefixItem), itemID...)
}

func itemIDFromKey(key []byte) string {
	return string(key[len(prefixItem):])
}

// readyIdxKey orders ready items for claiming: priority is encoded so the
// ascending scan yields the highest priority first, then the creation stamp
// breaks ties oldest-first. The id tail keeps keys unique when stamps
// collide or are absent.
func readyIdxKey(priority int32, stamp string, itemID string) []byte {
	var st [16]byte
	if s, err := id.Parse(stamp); err == nil {
		st = s
	}
	key := make([]byte, 0, len(prefixReadyIdx)+4+16+len(itemID))
	key = append(key, prefixReadyIdx...)
	// Flip the sign bit so negative priorities sort after non-negative
	// ones, then invert so bigger priorities get smaller keys.
	var pb [4]byte
	binary.BigEndian.PutUint32(pb[:], ^(uint32(priority) ^ 0x80000000))
	key = append(key, pb[:]...)
	key = append(key, st[:]...)
	key = append(key, itemID...)
	return key
}

func readyIdxItemID(key []byte) string {
	return string(key[len(prefixReadyIdx)+4+16:])
}

// leaseIdxKey orders claimed items by lease expiry so the reaper can scan
// only the expired range.
func leaseIdxKey(expiresMs int64, itemID string) []byte {
	key := make([]byte, 0, len(prefixLeaseIdx)+8+len(itemID))
	key = append(key, prefixLeaseIdx...)
	var eb [8]byte
	binary.BigEndian.PutUint64(eb[:], uint64(expiresMs))
	key = append(key, eb[:]...)
	key = append(key, itemID...)
	return key
}

func leaseIdxItemID(key []byte) string {
	return string(key[len(prefixLeaseIdx)+8:])
}

// keyRange returns the [start, end) bounds for scanning a prefix. The end
// bound is the prefix's immediate successor, so keys whose first byte after
// the prefix is 0xFF still fall inside the range.
func keyRange(prefix string) ([]byte, []byte) {
	start := []byte(prefix)
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xFF {
			end[i]++
			return start, end[:i+1]
		}
	}
	return start, nil
}
