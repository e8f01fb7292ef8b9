package snapshot

import (
	"testing"

	"github.com/nullframe/rollback/internal/frame"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New[int](4)
	s.Save(0, 100, 0xAAAA)
	s.Save(1, 101, 0xBBBB)
	state, sum, ok := s.Load(0)
	if !ok || state != 100 || sum != 0xAAAA {
		t.Fatalf("got state=%d sum=%x ok=%v", state, sum, ok)
	}
	state, sum, ok = s.Load(1)
	if !ok || state != 101 || sum != 0xBBBB {
		t.Fatalf("got state=%d sum=%x ok=%v", state, sum, ok)
	}
}

// TestOlderEntriesEvictedInFrameOrder covers invariant 3 in spec.md §8:
// Load(Fi) returns the state saved at Fi for F0..Fn (n <= capacity-1);
// older entries are evicted once the ring wraps.
func TestOlderEntriesEvictedInFrameOrder(t *testing.T) {
	s := New[int](4)
	for f := 0; f < 4; f++ {
		s.Save(frame.Frame(f), f*10, uint64(f))
	}
	for f := 0; f < 4; f++ {
		state, _, ok := s.Load(frame.Frame(f))
		if !ok || state != f*10 {
			t.Fatalf("frame %d: got %d ok=%v", f, state, ok)
		}
	}
	// Writing frame 4 overwrites the cell that held frame 0.
	s.Save(4, 40, 4)
	if _, _, ok := s.Load(0); ok {
		t.Fatalf("expected frame 0 to be evicted")
	}
	if state, _, ok := s.Load(4); !ok || state != 40 {
		t.Fatalf("expected frame 4 present, got %d ok=%v", state, ok)
	}
}

func TestLoadMissingFrame(t *testing.T) {
	s := New[int](4)
	if _, _, ok := s.Load(0); ok {
		t.Fatalf("expected miss on empty store")
	}
}

func TestHeadTracksMostRecentSave(t *testing.T) {
	s := New[int](4)
	if !s.Head().IsNull() {
		t.Fatalf("expected Null head initially")
	}
	s.Save(0, 1, 1)
	s.Save(2, 1, 1)
	s.Save(1, 1, 1)
	if s.Head() != frame.Frame(2) {
		t.Fatalf("expected head=2, got %v", s.Head())
	}
}

func TestResetClearsStore(t *testing.T) {
	s := New[int](4)
	s.Save(0, 1, 1)
	s.Reset()
	if !s.Head().IsNull() {
		t.Fatalf("expected Null head after reset")
	}
	if _, _, ok := s.Load(0); ok {
		t.Fatalf("expected miss after reset")
	}
}

func TestSaveComputedDerivesChecksum(t *testing.T) {
	s := New[[]byte](4)
	raw := []byte{1, 2, 3, 4}
	sum := s.SaveComputed(0, raw, raw)
	_, got, ok := s.Load(0)
	if !ok || got != sum {
		t.Fatalf("expected stored checksum to match SaveComputed's return, got %x vs %x", got, sum)
	}
	if sum == 0 {
		t.Fatalf("expected a nonzero checksum for nonempty input")
	}
}
