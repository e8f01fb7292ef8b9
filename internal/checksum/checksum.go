// Package checksum computes the 64-bit state/input digests used by desync
// detection (spec.md §4.6) and the wire Input message's checksum field
// (spec.md §6.3). xxhash is a non-cryptographic hash, which is all the
// equality check needs: it must only distinguish confirmed-state divergence
// between two honest peers, not resist an adversary.
package checksum

import "github.com/cespare/xxhash/v2"

// Sum64 returns the xxhash digest of b.
func Sum64(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// Digest accumulates a checksum over multiple byte slices without
// concatenating them, for callers that serialize a game state in pieces.
type Digest struct {
	h *xxhash.Digest
}

// New returns a fresh, reset Digest.
func New() *Digest {
	return &Digest{h: xxhash.New()}
}

// Write appends b to the digest. It never returns an error.
func (d *Digest) Write(b []byte) {
	_, _ = d.h.Write(b)
}

// Sum64 returns the digest's current value without resetting it.
func (d *Digest) Sum64() uint64 {
	return d.h.Sum64()
}

// Reset clears the digest for reuse.
func (d *Digest) Reset() {
	d.h.Reset()
}
