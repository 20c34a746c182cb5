package id

import "testing"

func TestNextMonotonicWithinMs(t *testing.T) {
	orig := NowMs
	NowMs = func() int64 { return 42 }
	defer func() { NowMs = orig }()

	g := NewGenerator()
	a := g.Next()
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("want a < b, got a=%s b=%s", a, b)
	}
	if a.TimeMs() != 42 || b.TimeMs() != 42 {
		t.Fatalf("timestamps: %d %d", a.TimeMs(), b.TimeMs())
	}
}

func TestClockBackwardsKeepsOrdering(t *testing.T) {
	orig := NowMs
	ms := int64(100)
	NowMs = func() int64 { return ms }
	defer func() { NowMs = orig }()

	g := NewGenerator()
	a := g.Next()
	ms = 50 // clock went backwards
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("ordering broke on clock skew: a=%s b=%s", a, b)
	}
}

func TestParseRoundTrip(t *testing.T) {
	g := NewGenerator()
	s := g.Next()
	got, err := Parse(s.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Compare(s) != 0 {
		t.Fatalf("round trip mismatch: %s vs %s", got, s)
	}
	if _, err := Parse("zz"); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
}
