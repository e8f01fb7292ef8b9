// Package snapshot implements the ring of saved game-state cells described
// in spec.md §4.2: a fixed-capacity store addressable by frame, used by the
// session to rewind and re-advance when a remote input contradicts a
// prediction.
package snapshot

import (
	"github.com/nullframe/rollback/internal/checksum"
	"github.com/nullframe/rollback/internal/frame"
)

type cell[S any] struct {
	frame    frame.Frame
	state    S
	checksum uint64
	used     bool
}

// Store is a ring of MAX_PREDICTION_FRAMES+2 saved states (spec.md §4.2).
// Writing frame F overwrites cell F mod capacity; Load reports ok=false
// unless the cell still holds frame F.
type Store[S any] struct {
	cells []cell[S]
	head  frame.Frame
}

// New returns an empty Store with the given capacity. Callers should use
// MAX_PREDICTION_FRAMES+2 (see protocol.MaxPredictionFrames) per spec.md.
func New[S any](capacity int) *Store[S] {
	if capacity <= 0 {
		panic("snapshot: capacity must be positive")
	}
	return &Store[S]{cells: make([]cell[S], capacity), head: frame.Null}
}

func (s *Store[S]) index(f frame.Frame) int {
	n := len(s.cells)
	i := int(f) % n
	if i < 0 {
		i += n
	}
	return i
}

// Save stores state for frame f with an explicit checksum, as computed by
// the host.
func (s *Store[S]) Save(f frame.Frame, state S, sum uint64) {
	s.cells[s.index(f)] = cell[S]{frame: f, state: state, checksum: sum, used: true}
	if s.head.IsNull() || f.After(s.head) {
		s.head = f
	}
}

// SaveComputed stores state for frame f, deriving the checksum from raw via
// internal/checksum — the path taken when the host does not supply its own
// checksum.
func (s *Store[S]) SaveComputed(f frame.Frame, state S, raw []byte) uint64 {
	sum := checksum.Sum64(raw)
	s.Save(f, state, sum)
	return sum
}

// Load returns the state and checksum saved for frame f. ok is false if the
// cell has since been overwritten by a later frame, or was never saved.
func (s *Store[S]) Load(f frame.Frame) (state S, sum uint64, ok bool) {
	c := s.cells[s.index(f)]
	if !c.used || c.frame != f {
		var zero S
		return zero, 0, false
	}
	return c.state, c.checksum, true
}

// Head returns the most recently saved frame, or frame.Null if nothing has
// been saved yet.
func (s *Store[S]) Head() frame.Frame { return s.head }

// Reset clears every cell, for reuse across sessions.
func (s *Store[S]) Reset() {
	for i := range s.cells {
		s.cells[i] = cell[S]{}
	}
	s.head = frame.Null
}

// Cap returns the store's fixed capacity.
func (s *Store[S]) Cap() int { return len(s.cells) }
