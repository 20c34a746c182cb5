package backlog

import "testing"

func TestRecordRoundTrip(t *testing.T) {
	it := &Item{
		ID:       "task-1",
		Kind:     "build",
		Status:   StatusClaimed,
		Priority: 7,
		Deps:     []string{"task-0"},
		Stamp:    "00000000000000010000000000000000",
		Claimant: "w1", ClaimedAtMs: 1000, HeartbeatMs: 1500,
		LeaseMs: 30_000,
		Headers: map[string]string{"branch": "main"},
	}
	b, err := EncodeRecord(9, it)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rev, got, err := DecodeRecord(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rev != 9 {
		t.Fatalf("rev: want 9, got %d", rev)
	}
	if got.ID != it.ID || got.Claimant != it.Claimant || got.Headers["branch"] != "main" {
		t.Fatalf("item mismatch: %+v", got)
	}
}

func TestRecordDetectsCorruption(t *testing.T) {
	it := &Item{ID: "x", Status: StatusReady, Stamp: "00"}
	b, err := EncodeRecord(1, it)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b[12] ^= 0xFF
	if _, _, err := DecodeRecord(b); err == nil {
		t.Fatalf("expected checksum error")
	}
	if _, _, err := DecodeRecord(b[:4]); err == nil {
		t.Fatalf("expected truncation error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		item    Item
		wantErr bool
	}{
		{"ready ok", Item{ID: "a", Status: StatusReady}, false},
		{"missing id", Item{Status: StatusReady}, true},
		{"bad status", Item{ID: "a", Status: Status("zombie")}, true},
		{"claimant without claim", Item{ID: "a", Status: StatusReady, Claimant: "w"}, true},
		{"claimed without claimant", Item{ID: "a", Status: StatusClaimed}, true},
		{"completed without meta", Item{ID: "a", Status: StatusCompleted}, true},
		{"self dep", Item{ID: "a", Status: StatusBlocked, Deps: []string{"a"}}, true},
		{"claimed ok", Item{ID: "a", Status: StatusClaimed, Claimant: "w"}, false},
	}
	for _, tc := range cases {
		err := tc.item.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: err=%v wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestLeaseExpired(t *testing.T) {
	it := Item{ID: "a", Status: StatusClaimed, Claimant: "w", HeartbeatMs: 1000, LeaseMs: 500}
	if it.LeaseExpired(1400) {
		t.Fatalf("lease should still be live at 1400")
	}
	if it.LeaseExpired(1500) {
		t.Fatalf("lease expires strictly after heartbeat+lease")
	}
	if !it.LeaseExpired(1501) {
		t.Fatalf("lease should be expired at 1501")
	}
	ready := Item{ID: "b", Status: StatusReady}
	if ready.LeaseExpired(9999) {
		t.Fatalf("non-claimed items never expire")
	}
}
