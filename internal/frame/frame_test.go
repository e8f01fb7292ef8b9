package frame

import "testing"

func TestFrameOrdering(t *testing.T) {
	a := Frame(5)
	b := Frame(9)
	if !a.Before(b) || b.Before(a) {
		t.Fatalf("expected 5 < 9")
	}
	if b.Sub(a) != 4 {
		t.Fatalf("expected distance 4, got %d", b.Sub(a))
	}
	if a.Sub(b) != -4 {
		t.Fatalf("expected signed distance -4, got %d", a.Sub(b))
	}
}

func TestFrameAddAndNull(t *testing.T) {
	if !Null.IsNull() {
		t.Fatalf("Null should report IsNull")
	}
	if First.IsNull() {
		t.Fatalf("First should not be null")
	}
	if First.Add(3) != Frame(3) {
		t.Fatalf("expected First+3 == 3")
	}
}

func TestFrameMinMax(t *testing.T) {
	if Min(Frame(3), Frame(7)) != Frame(3) {
		t.Fatalf("Min wrong")
	}
	if Max(Frame(3), Frame(7)) != Frame(7) {
		t.Fatalf("Max wrong")
	}
}

func TestFrameRoundTripBytes(t *testing.T) {
	f := Frame(-123456)
	var b [4]byte
	f.PutBytes(b[:])
	got := FromBytes(b[:])
	if got != f {
		t.Fatalf("round trip mismatch: got %d want %d", got, f)
	}
}

func TestHandleValid(t *testing.T) {
	h := Handle(2)
	if !h.Valid(4) {
		t.Fatalf("handle 2 should be valid in [0,4)")
	}
	if h.Valid(2) {
		t.Fatalf("handle 2 should not be valid in [0,2)")
	}
}
