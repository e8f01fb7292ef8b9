package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nullframe/rollback/internal/frame"
)

// Magic is the fixed per-build constant every header must carry (spec.md
// §6.3). A mismatch means the packet is from a different build or is noise
// on the port and is dropped silently (spec.md §7 ProtocolDecodeError).
const Magic uint16 = 0x5647 // "VG" for "versus game", arbitrary but fixed.

// HeaderSize is the encoded size of Header in bytes.
const HeaderSize = 2 + 2 + 1

// Kind identifies which payload follows a Header on the wire.
type Kind uint8

const (
	KindSyncRequest   Kind = 1
	KindSyncReply     Kind = 2
	KindInput         Kind = 3
	KindInputAck      Kind = 4
	KindQualityReport Kind = 5
	KindQualityReply  Kind = 6
	KindKeepAlive     Kind = 7
)

// ErrBadMagic, ErrTruncated, and ErrUnknownKind are the decode failure modes
// spec.md §7 classifies as ProtocolDecodeError: dropped silently by the
// caller, with a metrics counter bumped.
var (
	ErrBadMagic    = errors.New("wire: bad magic")
	ErrTruncated   = errors.New("wire: truncated message")
	ErrUnknownKind = errors.New("wire: unknown message kind")
)

// Header is the fixed prefix of every packet.
type Header struct {
	Magic    uint16
	Sequence uint16
	Kind     Kind
}

func (h Header) encode(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], h.Magic)
	binary.LittleEndian.PutUint16(b[2:4], h.Sequence)
	b[4] = byte(h.Kind)
}

func decodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrTruncated
	}
	h := Header{
		Magic:    binary.LittleEndian.Uint16(b[0:2]),
		Sequence: binary.LittleEndian.Uint16(b[2:4]),
		Kind:     Kind(b[4]),
	}
	if h.Magic != Magic {
		return Header{}, ErrBadMagic
	}
	return h, nil
}

// ConnectionStatus is one remote player's propagated liveness, per spec.md
// §3. A player's LastFrame may only ever increase at any observer, and
// Disconnected is sticky once set (invariant 5 in spec.md §8).
type ConnectionStatus struct {
	Disconnected bool
	LastFrame    frame.Frame
}

const connectionStatusSize = 1 + 4

func (c ConnectionStatus) encode(b []byte) {
	if c.Disconnected {
		b[0] = 1
	} else {
		b[0] = 0
	}
	c.LastFrame.PutBytes(b[1:5])
}

func decodeConnectionStatus(b []byte) ConnectionStatus {
	return ConnectionStatus{
		Disconnected: b[0] != 0,
		LastFrame:    frame.FromBytes(b[1:5]),
	}
}

// SyncRequestPayload carries the handshake-initiator's nonce.
type SyncRequestPayload struct {
	RandomRequest uint32
}

// SyncReplyPayload echoes the nonce back.
type SyncReplyPayload struct {
	RandomReply uint32
}

// InputPayload is the workhorse message: piggybacked ConnectionStatus for
// every remote player, the compressed input stream starting at StartFrame,
// an optional disconnect announcement, the receiver's ack_frame, and an
// optional desync-detection checksum for ChecksumFrame.
type InputPayload struct {
	PeerStatus          []ConnectionStatus
	StartFrame          frame.Frame
	DisconnectRequested bool
	DisconnectFrame      frame.Frame
	AckFrame            frame.Frame
	InputSize           uint8 // width, in bytes, of one tick's input
	ChecksumFrame       frame.Frame // frame.Null if none piggybacked
	Checksum            uint64
	Bits                []byte // compressed input stream, see internal/compress
}

// InputAckPayload frees pending send entries up to AckFrame.
type InputAckPayload struct {
	AckFrame frame.Frame
}

// QualityReportPayload reports the sender's view of frame advantage and its
// round-trip estimate.
type QualityReportPayload struct {
	FrameAdvantage int8
	PingMS         uint32
}

// QualityReplyPayload echoes the ping back as a pong for RTT measurement.
type QualityReplyPayload struct {
	PongMS uint32
}

// KeepAlivePayload carries no data; its presence resets the peer's idle timer.
type KeepAlivePayload struct{}

// Message is the closed sum of everything that can cross the wire. Exactly
// one of the payload fields is meaningful, selected by Header.Kind — callers
// switch on Kind rather than using reflection, per spec.md §9.
type Message struct {
	Header        Header
	SyncRequest   SyncRequestPayload
	SyncReply     SyncReplyPayload
	Input         InputPayload
	InputAck      InputAckPayload
	QualityReport QualityReportPayload
	QualityReply  QualityReplyPayload
	KeepAlive     KeepAlivePayload
}

// EncodeSyncRequest encodes a SyncRequest message.
func EncodeSyncRequest(seq uint16, p SyncRequestPayload) []byte {
	buf := make([]byte, HeaderSize+4)
	Header{Magic: Magic, Sequence: seq, Kind: KindSyncRequest}.encode(buf)
	binary.LittleEndian.PutUint32(buf[HeaderSize:], p.RandomRequest)
	return buf
}

// EncodeSyncReply encodes a SyncReply message.
func EncodeSyncReply(seq uint16, p SyncReplyPayload) []byte {
	buf := make([]byte, HeaderSize+4)
	Header{Magic: Magic, Sequence: seq, Kind: KindSyncReply}.encode(buf)
	binary.LittleEndian.PutUint32(buf[HeaderSize:], p.RandomReply)
	return buf
}

// EncodeInputAck encodes an InputAck message.
func EncodeInputAck(seq uint16, p InputAckPayload) []byte {
	buf := make([]byte, HeaderSize+4)
	Header{Magic: Magic, Sequence: seq, Kind: KindInputAck}.encode(buf)
	p.AckFrame.PutBytes(buf[HeaderSize:])
	return buf
}

// EncodeQualityReport encodes a QualityReport message.
func EncodeQualityReport(seq uint16, p QualityReportPayload) []byte {
	buf := make([]byte, HeaderSize+1+4)
	Header{Magic: Magic, Sequence: seq, Kind: KindQualityReport}.encode(buf)
	buf[HeaderSize] = byte(p.FrameAdvantage)
	binary.LittleEndian.PutUint32(buf[HeaderSize+1:], p.PingMS)
	return buf
}

// EncodeQualityReply encodes a QualityReply message.
func EncodeQualityReply(seq uint16, p QualityReplyPayload) []byte {
	buf := make([]byte, HeaderSize+4)
	Header{Magic: Magic, Sequence: seq, Kind: KindQualityReply}.encode(buf)
	binary.LittleEndian.PutUint32(buf[HeaderSize:], p.PongMS)
	return buf
}

// EncodeKeepAlive encodes an empty KeepAlive message.
func EncodeKeepAlive(seq uint16) []byte {
	buf := make([]byte, HeaderSize)
	Header{Magic: Magic, Sequence: seq, Kind: KindKeepAlive}.encode(buf)
	return buf
}

// EncodeInput encodes an Input message. numPlayers must equal
// len(p.PeerStatus).
func EncodeInput(seq uint16, p InputPayload) []byte {
	n := len(p.PeerStatus)
	size := HeaderSize + n*connectionStatusSize + 4 /*start*/ + 1 /*disc req*/
	if p.DisconnectRequested {
		size += 4
	}
	size += 4 /*ack*/ + 2 /*num_bits*/ + 1 /*input_size*/ + 4 /*checksum_frame*/ + 8 /*checksum*/
	size += len(p.Bits)
	buf := make([]byte, size)
	Header{Magic: Magic, Sequence: seq, Kind: KindInput}.encode(buf)
	off := HeaderSize
	for _, cs := range p.PeerStatus {
		cs.encode(buf[off:])
		off += connectionStatusSize
	}
	p.StartFrame.PutBytes(buf[off:])
	off += 4
	if p.DisconnectRequested {
		buf[off] = 1
		off++
		p.DisconnectFrame.PutBytes(buf[off:])
		off += 4
	} else {
		buf[off] = 0
		off++
	}
	p.AckFrame.PutBytes(buf[off:])
	off += 4
	numBits := uint16(len(p.Bits) * 8)
	binary.LittleEndian.PutUint16(buf[off:], numBits)
	off += 2
	buf[off] = p.InputSize
	off++
	p.ChecksumFrame.PutBytes(buf[off:])
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], p.Checksum)
	off += 8
	copy(buf[off:], p.Bits)
	return buf
}

// Decode parses the header and dispatches to the matching payload decoder.
// numPlayers is required to size the Input message's PeerStatus array and is
// ignored for every other kind.
func Decode(b []byte, numPlayers int) (Message, error) {
	h, err := decodeHeader(b)
	if err != nil {
		return Message{}, err
	}
	body := b[HeaderSize:]
	msg := Message{Header: h}
	switch h.Kind {
	case KindSyncRequest:
		if len(body) < 4 {
			return Message{}, ErrTruncated
		}
		msg.SyncRequest.RandomRequest = binary.LittleEndian.Uint32(body)
	case KindSyncReply:
		if len(body) < 4 {
			return Message{}, ErrTruncated
		}
		msg.SyncReply.RandomReply = binary.LittleEndian.Uint32(body)
	case KindInputAck:
		if len(body) < 4 {
			return Message{}, ErrTruncated
		}
		msg.InputAck.AckFrame = frame.FromBytes(body)
	case KindQualityReport:
		if len(body) < 5 {
			return Message{}, ErrTruncated
		}
		msg.QualityReport.FrameAdvantage = int8(body[0])
		msg.QualityReport.PingMS = binary.LittleEndian.Uint32(body[1:])
	case KindQualityReply:
		if len(body) < 4 {
			return Message{}, ErrTruncated
		}
		msg.QualityReply.PongMS = binary.LittleEndian.Uint32(body)
	case KindKeepAlive:
		// no body
	case KindInput:
		if err := decodeInputBody(body, numPlayers, &msg.Input); err != nil {
			return Message{}, err
		}
	default:
		return Message{}, ErrUnknownKind
	}
	return msg, nil
}

func decodeInputBody(body []byte, numPlayers int, out *InputPayload) error {
	need := numPlayers*connectionStatusSize + 4 + 1
	if len(body) < need {
		return ErrTruncated
	}
	off := 0
	status := make([]ConnectionStatus, numPlayers)
	for i := 0; i < numPlayers; i++ {
		status[i] = decodeConnectionStatus(body[off:])
		off += connectionStatusSize
	}
	start := frame.FromBytes(body[off:])
	off += 4
	discReq := body[off] != 0
	off++
	var discFrame frame.Frame = frame.Null
	if discReq {
		if len(body) < off+4 {
			return ErrTruncated
		}
		discFrame = frame.FromBytes(body[off:])
		off += 4
	}
	if len(body) < off+4+2+1+4+8 {
		return ErrTruncated
	}
	ack := frame.FromBytes(body[off:])
	off += 4
	numBits := binary.LittleEndian.Uint16(body[off:])
	off += 2
	inputSize := body[off]
	off++
	checksumFrame := frame.FromBytes(body[off:])
	off += 4
	checksum := binary.LittleEndian.Uint64(body[off:])
	off += 8
	nBytes := int((numBits + 7) / 8)
	if len(body) < off+nBytes {
		return ErrTruncated
	}
	bits := make([]byte, nBytes)
	copy(bits, body[off:off+nBytes])

	out.PeerStatus = status
	out.StartFrame = start
	out.DisconnectRequested = discReq
	out.DisconnectFrame = discFrame
	out.AckFrame = ack
	out.InputSize = inputSize
	out.ChecksumFrame = checksumFrame
	out.Checksum = checksum
	out.Bits = bits
	return nil
}

// String renders a Kind for logging.
func (k Kind) String() string {
	switch k {
	case KindSyncRequest:
		return "SyncRequest"
	case KindSyncReply:
		return "SyncReply"
	case KindInput:
		return "Input"
	case KindInputAck:
		return "InputAck"
	case KindQualityReport:
		return "QualityReport"
	case KindQualityReply:
		return "QualityReply"
	case KindKeepAlive:
		return "KeepAlive"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}
