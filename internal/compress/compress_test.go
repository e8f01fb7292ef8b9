package compress

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	ref := []byte{0xFF, 0x00, 0xAB, 0x12}
	pending := [][]byte{
		{0xFF, 0x00, 0xAB, 0x12}, // identical to reference -> all zero deltas
		{0x00, 0x00, 0xAB, 0x12},
		{0x01, 0x02, 0x03, 0x04},
	}
	enc, err := Encode(ref, pending)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if len(enc)%2 != 0 {
		t.Fatalf("RLE stream length must be even, got %d", len(enc))
	}
	for i := 0; i+1 < len(enc); i += 2 {
		if enc[i] == 0 {
			t.Fatalf("RLE stream contains a zero-count run at offset %d", i)
		}
	}
	dec, err := Decode(ref, enc, len(ref))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(dec) != len(pending) {
		t.Fatalf("expected %d frames, got %d", len(pending), len(dec))
	}
	for i := range pending {
		if !bytes.Equal(dec[i], pending[i]) {
			t.Fatalf("frame %d mismatch: got %x want %x", i, dec[i], pending[i])
		}
	}
}

func TestRoundTrip100Random(t *testing.T) {
	const width = 16
	ref := make([]byte, width)
	rand.New(rand.NewSource(1)).Read(ref)

	var pending [][]byte
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 100; i++ {
		b := make([]byte, width)
		rng.Read(b)
		pending = append(pending, b)
	}
	enc, err := Encode(ref, pending)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if len(enc)%2 != 0 {
		t.Fatalf("expected even-length RLE stream")
	}
	dec, err := Decode(ref, enc, width)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(dec) != len(pending) {
		t.Fatalf("expected %d frames, got %d", len(pending), len(dec))
	}
	for i := range pending {
		if !bytes.Equal(dec[i], pending[i]) {
			t.Fatalf("frame %d mismatch", i)
		}
	}
}

func TestEncodeOverflow(t *testing.T) {
	ref := make([]byte, 1024)
	var pending [][]byte
	for i := 0; i < 300; i++ {
		pending = append(pending, make([]byte, 1024))
	}
	if _, err := Encode(ref, pending); err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	ref := []byte{0x01, 0x02}
	if _, err := Decode(ref, []byte{1, 2, 3}, 2); err != ErrMalformedRLE {
		t.Fatalf("expected ErrMalformedRLE for odd length, got %v", err)
	}
	if _, err := Decode(ref, []byte{0, 5}, 2); err != ErrMalformedRLE {
		t.Fatalf("expected ErrMalformedRLE for zero count, got %v", err)
	}
}

func TestDecodeBadWidth(t *testing.T) {
	ref := []byte{0x01, 0x02, 0x03}
	// Three delta bytes (one per reference byte), but width 2 doesn't divide 3 evenly.
	enc, err := Encode(ref, [][]byte{{0x0, 0x0, 0x0}})
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if _, err := Decode(ref, enc, 2); err != ErrBadWidth {
		t.Fatalf("expected ErrBadWidth, got %v", err)
	}
}

func TestLongRunSplitsAt255(t *testing.T) {
	ref := make([]byte, 1)
	pending := make([][]byte, 300)
	for i := range pending {
		pending[i] = []byte{0xAA}
	}
	enc, err := Encode(ref, pending)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	// 300 identical bytes must split into runs of <=255: two pairs (255+45).
	if len(enc) != 4 {
		t.Fatalf("expected 2 RLE pairs (4 bytes), got %d bytes: %v", len(enc), enc)
	}
	if enc[0] != 255 || enc[2] != 45 {
		t.Fatalf("unexpected run split: %v", enc)
	}
}
