package backlog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
)

// Item record: version(1B) | rev(8B BE) | item JSON | crc32c(json)

const recordVersion = 1

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeRecord serializes an item together with its store revision.
func EncodeRecord(rev uint64, it *Item) ([]byte, error) {
	body, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("encode item %s: %w", it.ID, err)
	}
	out := make([]byte, 0, 1+8+len(body)+4)
	out = append(out, recordVersion)
	var rb [8]byte
	binary.BigEndian.PutUint64(rb[:], rev)
	out = append(out, rb[:]...)
	out = append(out, body...)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], crc32.Checksum(body, castagnoli))
	out = append(out, cb[:]...)
	return out, nil
}

// DecodeRecord parses a record produced by EncodeRecord.
func DecodeRecord(b []byte) (uint64, *Item, error) {
	if len(b) < 1+8+4 {
		return 0, nil, fmt.Errorf("decode record: truncated (%d bytes)", len(b))
	}
	if b[0] != recordVersion {
		return 0, nil, fmt.Errorf("decode record: unknown version %d", b[0])
	}
	rev := binary.BigEndian.Uint64(b[1:9])
	body := b[9 : len(b)-4]
	want := binary.BigEndian.Uint32(b[len(b)-4:])
	if got := crc32.Checksum(body, castagnoli); got != want {
		return 0, nil, fmt.Errorf("decode record: checksum mismatch")
	}
	var it Item
	if err := json.Unmarshal(body, &it); err != nil {
		return 0, nil, fmt.Errorf("decode record: %w", err)
	}
	return rev, &it, nil
}
