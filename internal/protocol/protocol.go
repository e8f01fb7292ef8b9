// Package protocol implements the per-peer UDP protocol of spec.md §4.5:
// handshake, steady-state send/receive, quality feedback, and disconnect
// detection. It is the direct analogue of the teacher's internal/server —
// server.go's accept/handshake/register-client, reader.go's per-connection
// decode loop, writer.go's batched send loop, errors.go's sentinel-to-metric
// map — except that where the teacher runs startReader/startWriter as two
// goroutines per TCP connection, every method here is driven cooperatively
// by Poll/HandleMessage calls from the session (spec.md §5: no
// engine-internal background threads). The shape survives: a receive-path
// method and a send-path method, each validate → dispatch by kind → update
// timers/counters, just synchronous instead of goroutine-driven.
package protocol

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nullframe/rollback/internal/compress"
	"github.com/nullframe/rollback/internal/frame"
	"github.com/nullframe/rollback/internal/inputqueue"
	"github.com/nullframe/rollback/internal/metrics"
	"github.com/nullframe/rollback/internal/socket"
	"github.com/nullframe/rollback/internal/wire"
)

// State is the per-peer protocol state machine (spec.md §3).
type State uint8

const (
	StateSyncing State = iota
	StateRunning
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateSyncing:
		return "Syncing"
	case StateRunning:
		return "Running"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// EventKind classifies one Event emitted by Poll or HandleMessage.
type EventKind uint8

const (
	EventSynchronizing EventKind = iota
	EventSynchronized
	EventSyncFailed
	EventInput
	EventDisconnected
	EventNetworkInterrupted
	EventNetworkResumed
	EventRemoteChecksum
	EventRemoteDisconnectRequested
)

// Event is the internal vocabulary the session layer reads from Poll and
// translates into spec.md §4.6's RollbackEvent set (Input feeds input
// queues directly rather than being re-exposed to the host; RemoteChecksum
// feeds desync comparison against the session's own snapshot store).
type Event[T wire.Input] struct {
	Kind  EventKind
	Total int // handshake attempt budget, valid for EventSynchronizing
	Count int // handshake attempts so far, valid for EventSynchronizing

	PlayerInput inputqueue.PlayerInput[T] // valid for EventInput

	ChecksumFrame frame.Frame // valid for EventRemoteChecksum
	Checksum      uint64      // valid for EventRemoteChecksum

	DisconnectFrame frame.Frame   // valid for EventRemoteDisconnectRequested
	Timeout         time.Duration // valid for EventNetworkInterrupted
}

// Stats is the network telemetry the session surfaces via NetworkStats.
type Stats struct {
	RTT                   time.Duration
	LocalFrameAdvantage   int
	RemoteFrameAdvantage  int
	LastRecvFrame         frame.Frame
	LastSendFrame         frame.Frame
}

// Peer is one UDP protocol instance, bound to a single remote address.
// Session owns one Peer per remote (or spectator-host) connection and
// demultiplexes inbound datagrams to the right Peer by source address.
type Peer[T wire.Input, A comparable] struct {
	sock       socket.Socket[A]
	addr       A
	numPlayers int
	initiator  bool
	fps        int
	decode     wire.Decoder[T]

	state State

	seq         uint16
	haveRecvSeq bool
	lastRecvSeq uint16

	nonce        uint32
	syncAttempts int
	lastSyncSend time.Time

	lastSendTime time.Time
	lastRecvTime time.Time
	interrupted  bool

	lastQualityReportTime time.Time
	rtt                   time.Duration
	remoteFrameAdvantage  int
	localFrameAdvantage   int

	status []wire.ConnectionStatus

	pending []inputqueue.PlayerInput[T]
	haveRef bool
	refTail T

	recvRef     []byte
	haveRecvRef bool
	lastSendFrame frame.Frame

	ackFrame      frame.Frame
	lastRecvFrame frame.Frame

	localDisconnectRequested bool
	localDisconnectFrame     frame.Frame

	haveChecksum         bool
	pendingChecksumFrame frame.Frame
	pendingChecksum      uint64

	events []Event[T]
}

// New returns a Peer in state Syncing. Both sides of a connection run their
// own handshake retry loop and send SyncRequest independently, so initiator
// no longer gates who may send; it is retained to label which side opened
// the connection, for callers that want it in logs or metrics.
func New[T wire.Input, A comparable](sock socket.Socket[A], addr A, numPlayers, fps int, initiator bool, decode wire.Decoder[T], now time.Time) *Peer[T, A] {
	return &Peer[T, A]{
		sock:          sock,
		addr:          addr,
		numPlayers:    numPlayers,
		initiator:     initiator,
		fps:           fps,
		decode:        decode,
		status:        make([]wire.ConnectionStatus, numPlayers),
		ackFrame:      frame.Null,
		lastRecvFrame: frame.Null,
		lastSendFrame: frame.Null,
		localDisconnectFrame: frame.Null,
		lastSendTime:  now,
		lastRecvTime:  now,
	}
}

func (p *Peer[T, A]) State() State { return p.state }

func (p *Peer[T, A]) pushEvent(e Event[T]) { p.events = append(p.events, e) }

func (p *Peer[T, A]) drain() []Event[T] {
	if len(p.events) == 0 {
		return nil
	}
	out := p.events
	p.events = nil
	return out
}

func (p *Peer[T, A]) nextSeq() uint16 {
	p.seq++
	return p.seq
}

func (p *Peer[T, A]) sendRaw(b []byte) error {
	if err := p.sock.SendTo(p.addr, b); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrSendFailed, err)
		metrics.IncError(mapErrToMetric(wrapped))
		return wrapped
	}
	return nil
}

// QueueLocalInput enqueues a locally-confirmed input for delivery on the
// next send path. Fails if the peer isn't Running.
func (p *Peer[T, A]) QueueLocalInput(pi inputqueue.PlayerInput[T]) error {
	if p.state != StateRunning {
		return ErrNotRunning
	}
	p.pending = append(p.pending, pi)
	return nil
}

// UpdateLocalStatus merges the session's latest knowledge of handle's
// confirmed frame into this peer's outbound ConnectionStatus, which the
// session propagates to every other peer in turn.
func (p *Peer[T, A]) UpdateLocalStatus(handle int, f frame.Frame, disconnected bool) {
	if handle < 0 || handle >= len(p.status) {
		return
	}
	if f.After(p.status[handle].LastFrame) {
		p.status[handle].LastFrame = f
	}
	if disconnected {
		p.status[handle].Disconnected = true
	}
}

// Status returns this peer's current merged view of every player's
// ConnectionStatus.
func (p *Peer[T, A]) Status() []wire.ConnectionStatus { return p.status }

// QueueChecksum piggybacks a desync-detection checksum on the next outbound
// Input message.
func (p *Peer[T, A]) QueueChecksum(f frame.Frame, sum uint64) {
	p.haveChecksum = true
	p.pendingChecksumFrame = f
	p.pendingChecksum = sum
}

// Disconnect requests a graceful local disconnect, announced to the peer on
// the next send.
func (p *Peer[T, A]) Disconnect(atFrame frame.Frame) {
	p.localDisconnectRequested = true
	p.localDisconnectFrame = atFrame
}

// Stats returns the peer's current network telemetry.
func (p *Peer[T, A]) Stats() Stats {
	return Stats{
		RTT:                  p.rtt,
		LocalFrameAdvantage:  p.localFrameAdvantage,
		RemoteFrameAdvantage: p.remoteFrameAdvantage,
		LastRecvFrame:        p.lastRecvFrame,
		LastSendFrame:        p.lastSendFrame,
	}
}

// Poll drives the handshake retry loop, the steady-state send path, and
// timeout detection, and returns whatever events accumulated. localFrame is
// the session's current simulation frame, used for frame-advantage
// computation.
func (p *Peer[T, A]) Poll(now time.Time, localFrame frame.Frame) []Event[T] {
	switch p.state {
	case StateSyncing:
		p.handshakeTick(now)
	case StateRunning:
		p.updateFrameAdvantage(localFrame)
		p.sendPath(now)
		p.checkTimeouts(now)
	}
	return p.drain()
}

// handshakeTick drives this side's own SyncRequest retry loop. Both peers
// run this independently and each reaches StateRunning on receiving the
// SyncReply that answers its own request; a peer also replies to an inbound
// SyncRequest regardless of where it is in its own retry loop (see
// HandleMessage's KindSyncRequest case), so the handshake converges
// symmetrically without requiring one side to go first.
func (p *Peer[T, A]) handshakeTick(now time.Time) {
	if p.syncAttempts >= NumSyncPackets {
		p.state = StateDisconnected
		p.pushEvent(Event[T]{Kind: EventSyncFailed})
		return
	}
	if p.syncAttempts > 0 && now.Sub(p.lastSyncSend) < SyncRetryInterval {
		return
	}
	p.nonce = rand.Uint32()
	msg := wire.EncodeSyncRequest(p.nextSeq(), wire.SyncRequestPayload{RandomRequest: p.nonce})
	_ = p.sendRaw(msg)
	p.syncAttempts++
	p.lastSyncSend = now
	p.lastSendTime = now
	p.pushEvent(Event[T]{Kind: EventSynchronizing, Total: NumSyncPackets, Count: p.syncAttempts})
}

func (p *Peer[T, A]) sendPath(now time.Time) {
	if len(p.pending) > 0 || now.Sub(p.lastSendTime) >= KeepAliveInterval {
		p.sendInput(now)
	}
	if now.Sub(p.lastQualityReportTime) >= QualityReportInterval {
		p.sendQualityReport(now)
	}
}

func (p *Peer[T, A]) sendInput(now time.Time) {
	if len(p.pending) == 0 {
		_ = p.sendRaw(wire.EncodeKeepAlive(p.nextSeq()))
		metrics.IncKeepAliveTx()
		p.lastSendTime = now
		return
	}
	width := len(p.pending[0].Input.Bytes())
	bufs := make([][]byte, len(p.pending))
	for i, pi := range p.pending {
		bufs[i] = pi.Input.Bytes()
	}
	ref := make([]byte, width)
	if p.haveRef {
		ref = p.refTail.Bytes()
	}
	compressed, err := compress.Encode(ref, bufs)
	if err != nil {
		metrics.IncError(metrics.ErrCompression)
		panic(ErrCompressOverflow)
	}

	checksumFrame, checksum := frame.Null, uint64(0)
	if p.haveChecksum {
		checksumFrame, checksum = p.pendingChecksumFrame, p.pendingChecksum
		p.haveChecksum = false
	}

	payload := wire.InputPayload{
		PeerStatus:          p.status,
		StartFrame:          p.pending[0].Frame,
		DisconnectRequested: p.localDisconnectRequested,
		DisconnectFrame:     p.localDisconnectFrame,
		AckFrame:            p.lastRecvFrame,
		InputSize:           uint8(width),
		ChecksumFrame:       checksumFrame,
		Checksum:            checksum,
		Bits:                compressed,
	}
	if err := p.sendRaw(wire.EncodeInput(p.nextSeq(), payload)); err == nil {
		metrics.IncInputTx()
	}
	p.refTail = p.pending[len(p.pending)-1].Input
	p.haveRef = true
	p.lastSendFrame = p.pending[len(p.pending)-1].Frame
	p.lastSendTime = now
}

func (p *Peer[T, A]) sendQualityReport(now time.Time) {
	fa := p.localFrameAdvantage
	if fa > 127 {
		fa = 127
	} else if fa < -128 {
		fa = -128
	}
	payload := wire.QualityReportPayload{FrameAdvantage: int8(fa), PingMS: nowMillis(now)}
	_ = p.sendRaw(wire.EncodeQualityReport(p.nextSeq(), payload))
	p.lastQualityReportTime = now
}

func (p *Peer[T, A]) updateFrameAdvantage(localFrame frame.Frame) {
	if p.lastRecvFrame.IsNull() {
		p.localFrameAdvantage = 0
		return
	}
	halfRTTFrames := int((p.rtt.Seconds() / 2.0) * float64(p.fps))
	p.localFrameAdvantage = int(localFrame) - int(p.lastRecvFrame) - halfRTTFrames
}

func (p *Peer[T, A]) checkTimeouts(now time.Time) {
	since := now.Sub(p.lastRecvTime)
	if since >= DisconnectTimeout {
		p.state = StateDisconnected
		p.pushEvent(Event[T]{Kind: EventDisconnected})
		return
	}
	if since >= DisconnectNotifyStart && !p.interrupted {
		p.interrupted = true
		p.pushEvent(Event[T]{Kind: EventNetworkInterrupted, Timeout: DisconnectTimeout - since})
	}
}

func (p *Peer[T, A]) freePendingUpTo(f frame.Frame) {
	if f.IsNull() {
		return
	}
	i := 0
	for i < len(p.pending) && !p.pending[i].Frame.After(f) {
		i++
	}
	p.pending = p.pending[i:]
}

// HandleMessage processes one demultiplexed inbound datagram. Decode
// failures and stale sequence numbers are dropped silently with a metrics
// counter bump (spec.md §4.5 failure semantics).
func (p *Peer[T, A]) HandleMessage(data []byte, now time.Time) {
	msg, err := wire.Decode(data, p.numPlayers)
	if err != nil {
		metrics.IncMalformed()
		return
	}
	if p.haveRecvSeq && !seqIsNewer(msg.Header.Sequence, p.lastRecvSeq) {
		metrics.IncMalformed()
		return
	}
	p.lastRecvSeq = msg.Header.Sequence
	p.haveRecvSeq = true
	p.lastRecvTime = now
	if p.interrupted {
		p.interrupted = false
		p.pushEvent(Event[T]{Kind: EventNetworkResumed})
	}

	switch msg.Header.Kind {
	case wire.KindSyncRequest:
		_ = p.sendRaw(wire.EncodeSyncReply(p.nextSeq(), wire.SyncReplyPayload{RandomReply: msg.SyncRequest.RandomRequest}))
	case wire.KindSyncReply:
		if p.state == StateSyncing && msg.SyncReply.RandomReply == p.nonce {
			p.state = StateRunning
			p.pushEvent(Event[T]{Kind: EventSynchronized})
		}
	case wire.KindInput:
		p.handleInput(msg.Input, now)
	case wire.KindInputAck:
		p.ackFrame = frame.Max(p.ackFrame, msg.InputAck.AckFrame)
		p.freePendingUpTo(p.ackFrame)
	case wire.KindQualityReport:
		p.remoteFrameAdvantage = int(msg.QualityReport.FrameAdvantage)
		_ = p.sendRaw(wire.EncodeQualityReply(p.nextSeq(), wire.QualityReplyPayload{PongMS: msg.QualityReport.PingMS}))
	case wire.KindQualityReply:
		elapsed := int64(nowMillis(now)) - int64(msg.QualityReply.PongMS)
		if elapsed < 0 {
			elapsed = 0
		}
		p.rtt = time.Duration(elapsed) * time.Millisecond
	case wire.KindKeepAlive:
		// side effect only; lastRecvTime already updated above.
	}
}

func (p *Peer[T, A]) handleInput(in wire.InputPayload, now time.Time) {
	for i, cs := range in.PeerStatus {
		if i >= len(p.status) {
			break
		}
		if cs.LastFrame.After(p.status[i].LastFrame) {
			p.status[i].LastFrame = cs.LastFrame
		}
		if cs.Disconnected {
			p.status[i].Disconnected = true
		}
	}

	width := int(in.InputSize)
	if width > 0 {
		if !p.haveRecvRef {
			p.recvRef = make([]byte, width)
			p.haveRecvRef = true
		}
		frames, err := compress.Decode(p.recvRef, in.Bits, width)
		if err != nil {
			metrics.IncMalformed()
		} else {
			f := in.StartFrame
			for _, fb := range frames {
				if p.lastRecvFrame.IsNull() || f.After(p.lastRecvFrame) {
					val := p.decode(fb)
					p.pushEvent(Event[T]{Kind: EventInput, PlayerInput: inputqueue.PlayerInput[T]{Frame: f, Input: val}})
					p.lastRecvFrame = f
					metrics.IncInputRx()
				}
				p.recvRef = fb
				f = f.Add(1)
			}
		}
	}

	if !in.ChecksumFrame.IsNull() {
		p.pushEvent(Event[T]{Kind: EventRemoteChecksum, ChecksumFrame: in.ChecksumFrame, Checksum: in.Checksum})
	}
	if in.DisconnectRequested {
		p.pushEvent(Event[T]{Kind: EventRemoteDisconnectRequested, DisconnectFrame: in.DisconnectFrame})
	}
	p.freePendingUpTo(in.AckFrame)
}

// seqIsNewer reports whether seq is strictly ahead of last within half the
// 16-bit sequence space, per spec.md's "drop if stale beyond window =
// 32768".
func seqIsNewer(seq, last uint16) bool {
	diff := int32(seq) - int32(last)
	if diff < 0 {
		diff += 65536
	}
	return diff != 0 && diff < SequenceWindow
}

func nowMillis(now time.Time) uint32 {
	return uint32(now.UnixMilli())
}
