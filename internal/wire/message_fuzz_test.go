package wire

import "testing"

// FuzzDecode ensures the decoder never panics on arbitrary bytes, for any
// assumed player count small enough to be realistic (spec.md targets 2-8
// players + spectators).
func FuzzDecode(f *testing.F) {
	f.Add(EncodeKeepAlive(1), 0)
	f.Add(EncodeSyncRequest(1, SyncRequestPayload{RandomRequest: 7}), 0)
	f.Add(EncodeInput(1, InputPayload{PeerStatus: make([]ConnectionStatus, 2)}), 2)
	f.Fuzz(func(t *testing.T, data []byte, n int) {
		if n < 0 || n > 8 {
			n = n & 7
		}
		_, _ = Decode(data, n)
	})
}

// FuzzInputRoundTrip checks that an Input payload's compressed bits survive
// encode/decode for arbitrary bit strings and input sizes (invariant 4 in
// spec.md §8); the other payload fields stay fixed, and the start and ack
// arguments are not used.
func FuzzInputRoundTrip(f *testing.F) {
	f.Add(uint16(1), uint32(3), uint8(2), []byte{1, 2})
	f.Fuzz(func(t *testing.T, start uint16, ack uint32, inputSize uint8, bits []byte) {
		if len(bits) > 4096 {
			bits = bits[:4096]
		}
		p := InputPayload{
			PeerStatus:    []ConnectionStatus{{LastFrame: 0}},
			StartFrame:    0 + 0, // keep arithmetic simple but exercised via frame type elsewhere
			AckFrame:      0,
			InputSize:     inputSize,
			ChecksumFrame: -1,
			Bits:          bits,
		}
		_ = start
		_ = ack
		wire := EncodeInput(1, p)
		msg, err := Decode(wire, 1)
		if err != nil {
			t.Fatalf("unexpected decode error: %v", err)
		}
		if string(msg.Input.Bits) != string(p.Bits) {
			t.Fatalf("bits mismatch after round trip")
		}
	})
}
