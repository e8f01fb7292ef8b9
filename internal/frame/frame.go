// Package frame defines the engine's two core scalar types: Frame, a
// totally-ordered simulation tick counter with a distinguished "no frame"
// sentinel, and Handle, a contiguous per-player slot identifier. Keeping
// both as named types (rather than bare int32/int) means a stray
// `frame + handle` is a compile error instead of a latent
// bug — the design note in spec.md §9 ("no null frames... prefer a proper
// nullable frame representation") is honored by giving Frame its own
// arithmetic instead of leaning on the sentinel at every call site.
package frame

import "encoding/binary"

// Frame is a signed 32-bit simulation tick counter.
type Frame int32

// Null is the sentinel meaning "no frame". First is the first valid frame
// of any session.
const (
	Null  Frame = -1
	First Frame = 0
)

// IsNull reports whether f is the sentinel "no frame" value.
func (f Frame) IsNull() bool { return f == Null }

// Add returns f shifted by n ticks. Null is not special-cased: Null.Add(1)
// is First, which the sessions rely on when they advance from their
// initial Null frame.
func (f Frame) Add(n int) Frame { return f + Frame(n) }

// Sub returns the signed distance f - g, in ticks.
func (f Frame) Sub(g Frame) int { return int(f) - int(g) }

// Before reports whether f occurs strictly earlier than g.
func (f Frame) Before(g Frame) bool { return f < g }

// After reports whether f occurs strictly later than g.
func (f Frame) After(g Frame) bool { return f > g }

// Int32 returns the raw counter value.
func (f Frame) Int32() int32 { return int32(f) }

// PutBytes writes f as 4 bytes little-endian into b, which must have length
// >= 4.
func (f Frame) PutBytes(b []byte) {
	binary.LittleEndian.PutUint32(b, uint32(f))
}

// FromBytes reads a Frame from the first 4 bytes of b.
func FromBytes(b []byte) Frame {
	return Frame(int32(binary.LittleEndian.Uint32(b)))
}

// Min returns the earlier of two frames by plain numeric comparison. Null is
// -1, so Min(Null, f) is always Null for any real frame f; callers that want
// "nothing confirmed yet" to win a Min against a real frame (as the
// confirmed-frame barrier does before any player has confirmed a frame) can
// rely on that. Callers that instead want to compare two frames that are
// both known to be real should ensure neither is Null first.
func Min(a, b Frame) Frame {
	if a < b {
		return a
	}
	return b
}

// Max returns the later of two frames.
func Max(a, b Frame) Frame {
	if a > b {
		return a
	}
	return b
}

// Handle identifies a logical player slot. Slot indices are contiguous from
// 0 to N-1 once a session starts (spec.md §3).
type Handle uint32

// Valid reports whether h falls within [0, n).
func (h Handle) Valid(n int) bool { return int(h) < n }
