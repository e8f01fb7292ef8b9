// Package wire implements bit-exact little-endian serialization for every
// type that crosses the UDP socket: the per-tick input payload the host
// supplies, and the message envelope + typed payloads of spec.md §6.3.
//
// This is the engine's analogue of internal/cnl.Codec in the teacher repo:
// a small stateless encode/decode surface, fuzz-tested for decode safety
// against arbitrary bytes.
package wire

// Input is the capability set a host's per-tick input payload type must
// satisfy: fixed-width byte serialization and equality, so the input queue
// can compare a confirmed remote input against its own prediction (spec.md
// §4.1 "confirmation... different value triggers rollback") without the
// engine knowing anything about the payload's actual fields.
type Input interface {
	comparable
	// Bytes returns the fixed-width little-endian encoding of the input.
	// Every value of a given Input type must return a slice of the same
	// length (spec.md §3 InputBytes invariant).
	Bytes() []byte
}

// Decoder reconstructs a value of type T from its fixed-width wire bytes.
// Supplied once per session (game code owns the concrete Input type), it is
// the inverse of Input.Bytes.
type Decoder[T Input] func([]byte) T

// Width returns the serialized width of an Input's zero value. All values of
// T must serialize to this width (enforced by convention, not the type
// system, per spec.md's InputBytes invariant).
func Width[T Input](zero T) int {
	return len(zero.Bytes())
}
