package session

import (
	"strings"

	"github.com/nullframe/rollback/internal/wire"
)

// frameBundle packs every simulation player's per-frame input into a single
// wire.Input value. internal/protocol.Peer carries one player's stream per
// connection (spec.md §6.3's Input message has one compressed bits field);
// a spectator needs the confirmed inputs of every player for each frame
// over its one connection to the host, so the P2P session concatenates
// them here the way the real thing this spec is modeled on bundles a
// per-frame array of player inputs for its spectator message. frameBundle
// is a plain string so it satisfies wire.Input's comparable constraint
// without reflection; T is phantom, carried only so call sites stay
// type-safe about which per-player Input type a bundle decodes back into.
type frameBundle[T wire.Input] struct {
	raw string
}

func (b frameBundle[T]) Bytes() []byte { return []byte(b.raw) }

// packBundle concatenates every player's Bytes() in handle order.
func packBundle[T wire.Input](values []T) frameBundle[T] {
	var sb strings.Builder
	for _, v := range values {
		sb.Write(v.Bytes())
	}
	return frameBundle[T]{raw: sb.String()}
}

// unpackBundle splits a received bundle back into per-player values of
// fixed width, decoding each with decode.
func unpackBundle[T wire.Input](b frameBundle[T], width int, decode wire.Decoder[T]) []T {
	data := []byte(b.raw)
	if width <= 0 || len(data)%width != 0 {
		return nil
	}
	n := len(data) / width
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = decode(data[i*width : (i+1)*width])
	}
	return out
}

// bundleDecode is the wire.Decoder internal/protocol.Peer uses for a
// bundle connection: it just wraps the raw bytes, deferring the real
// per-player decode to unpackBundle once the receiver knows the width.
func bundleDecode[T wire.Input](b []byte) frameBundle[T] {
	return frameBundle[T]{raw: string(b)}
}
