package wire

import (
	"testing"

	"github.com/nullframe/rollback/internal/frame"
)

func TestInputRoundTrip(t *testing.T) {
	p := InputPayload{
		PeerStatus: []ConnectionStatus{
			{Disconnected: false, LastFrame: frame.Frame(100)},
			{Disconnected: true, LastFrame: frame.Frame(50)},
		},
		StartFrame:          frame.Frame(90),
		DisconnectRequested: true,
		DisconnectFrame:     frame.Frame(95),
		AckFrame:             frame.Frame(88),
		InputSize:            2,
		ChecksumFrame:        frame.Frame(80),
		Checksum:             0xDEADBEEFCAFEBABE,
		Bits:                 []byte{1, 2, 3, 4, 5},
	}
	wire := EncodeInput(7, p)
	msg, err := Decode(wire, len(p.PeerStatus))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if msg.Header.Kind != KindInput || msg.Header.Sequence != 7 || msg.Header.Magic != Magic {
		t.Fatalf("bad header: %+v", msg.Header)
	}
	got := msg.Input
	if got.StartFrame != p.StartFrame || got.AckFrame != p.AckFrame {
		t.Fatalf("frame mismatch: %+v", got)
	}
	if !got.DisconnectRequested || got.DisconnectFrame != p.DisconnectFrame {
		t.Fatalf("disconnect mismatch: %+v", got)
	}
	if got.ChecksumFrame != p.ChecksumFrame || got.Checksum != p.Checksum {
		t.Fatalf("checksum mismatch: %+v", got)
	}
	if len(got.PeerStatus) != 2 || got.PeerStatus[1].Disconnected != true || got.PeerStatus[1].LastFrame != frame.Frame(50) {
		t.Fatalf("peer status mismatch: %+v", got.PeerStatus)
	}
	if string(got.Bits) != string(p.Bits) {
		t.Fatalf("bits mismatch: %v != %v", got.Bits, p.Bits)
	}
}

func TestInputNoDisconnect(t *testing.T) {
	p := InputPayload{
		PeerStatus:    []ConnectionStatus{{LastFrame: frame.Frame(1)}},
		StartFrame:    frame.Frame(1),
		AckFrame:      frame.Frame(0),
		InputSize:     1,
		ChecksumFrame: frame.Null,
	}
	wire := EncodeInput(1, p)
	msg, err := Decode(wire, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Input.DisconnectRequested {
		t.Fatalf("expected no disconnect requested")
	}
	if msg.Input.ChecksumFrame != frame.Null {
		t.Fatalf("expected null checksum frame, got %v", msg.Input.ChecksumFrame)
	}
}

func TestSimpleMessagesRoundTrip(t *testing.T) {
	sr := EncodeSyncRequest(1, SyncRequestPayload{RandomRequest: 0x1234})
	m, err := Decode(sr, 0)
	if err != nil || m.SyncRequest.RandomRequest != 0x1234 || m.Header.Kind != KindSyncRequest {
		t.Fatalf("SyncRequest round trip failed: %+v err=%v", m, err)
	}

	sy := EncodeSyncReply(2, SyncReplyPayload{RandomReply: 0x5678})
	m, err = Decode(sy, 0)
	if err != nil || m.SyncReply.RandomReply != 0x5678 {
		t.Fatalf("SyncReply round trip failed: %+v err=%v", m, err)
	}

	ia := EncodeInputAck(3, InputAckPayload{AckFrame: frame.Frame(42)})
	m, err = Decode(ia, 0)
	if err != nil || m.InputAck.AckFrame != frame.Frame(42) {
		t.Fatalf("InputAck round trip failed: %+v err=%v", m, err)
	}

	qr := EncodeQualityReport(4, QualityReportPayload{FrameAdvantage: -5, PingMS: 33})
	m, err = Decode(qr, 0)
	if err != nil || m.QualityReport.FrameAdvantage != -5 || m.QualityReport.PingMS != 33 {
		t.Fatalf("QualityReport round trip failed: %+v err=%v", m, err)
	}

	qy := EncodeQualityReply(5, QualityReplyPayload{PongMS: 17})
	m, err = Decode(qy, 0)
	if err != nil || m.QualityReply.PongMS != 17 {
		t.Fatalf("QualityReply round trip failed: %+v err=%v", m, err)
	}

	ka := EncodeKeepAlive(6)
	m, err = Decode(ka, 0)
	if err != nil || m.Header.Kind != KindKeepAlive {
		t.Fatalf("KeepAlive round trip failed: %+v err=%v", m, err)
	}
}

func TestDecodeBadMagic(t *testing.T) {
	buf := EncodeKeepAlive(1)
	buf[0] ^= 0xFF
	if _, err := Decode(buf, 0); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	buf := EncodeQualityReport(1, QualityReportPayload{FrameAdvantage: 1, PingMS: 1})
	if _, err := Decode(buf[:HeaderSize+2], 0); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if _, err := Decode(buf[:2], 0); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated on short header, got %v", err)
	}
}
