// P2P implements spec.md §4.6: orchestration of local/remote peers, input
// queues, the snapshot store, and the rewind/advance/prediction-barrier
// rollback loop. It is the engine's analogue of the teacher's
// internal/server.Server — an options-constructed struct owning a map of
// per-peer objects — except its hot path (PollRemoteClients, AdvanceFrame)
// runs synchronously on the host's tick instead of behind accept/reader/
// writer goroutines (spec.md §5).
package session

import (
	"time"

	"github.com/nullframe/rollback/internal/frame"
	"github.com/nullframe/rollback/internal/inputqueue"
	"github.com/nullframe/rollback/internal/metrics"
	"github.com/nullframe/rollback/internal/protocol"
	"github.com/nullframe/rollback/internal/snapshot"
	"github.com/nullframe/rollback/internal/socket"
	"github.com/nullframe/rollback/internal/timesync"
	"github.com/nullframe/rollback/internal/wire"
)

// P2P is a peer-to-peer rollback session over N simulation players (spec.md
// §4.6), optionally replicated out to spectators over the same socket.
type P2P[T wire.Input, S any, A comparable] struct {
	cfg    Config
	decode wire.Decoder[T]
	sock   socket.Socket[A]

	numPlayers  int
	types       []PlayerType
	queues      []*inputqueue.Queue[T]
	confirmedAt []frame.Frame
	manualDisc  []bool
	localHandle frame.Handle // lowest Local handle; used for the initiator label passed to protocol.New

	remotePeers  map[frame.Handle]*protocol.Peer[T, A]
	specPeers    map[A]*protocol.Peer[frameBundle[T], A]
	addrToHandle map[A]frame.Handle

	snap *snapshot.Store[S]
	ts   *timesync.Estimator

	state          State
	currentFrame   frame.Frame
	confirmedFrame frame.Frame

	events []Event
}

// NewP2P validates players and constructs a P2P session in state
// Synchronizing. players are the simulation participants (handles assigned
// by slice position, 0..N-1); spectators are additional addresses that
// receive a replicated feed of confirmed inputs but contribute none of
// their own (spec.md §4.7 is layered on top of this same socket).
func NewP2P[T wire.Input, S any, A comparable](sock socket.Socket[A], players []PlayerSpec[A], spectators []A, decode wire.Decoder[T], now time.Time, opts ...Option) (*P2P[T, S, A], error) {
	if sock == nil {
		return nil, ErrMissingSocket
	}
	numSim, err := validatePlayers(players)
	if err != nil {
		return nil, err
	}
	specSet := make(map[A]bool, len(spectators))
	for _, a := range spectators {
		if specSet[a] {
			return nil, ErrDuplicateAddress
		}
		specSet[a] = true
	}

	cfg := buildConfig(opts)

	s := &P2P[T, S, A]{
		cfg:          cfg,
		decode:       decode,
		sock:         sock,
		numPlayers:   numSim,
		types:        make([]PlayerType, numSim),
		queues:       make([]*inputqueue.Queue[T], numSim),
		confirmedAt:  make([]frame.Frame, numSim),
		manualDisc:   make([]bool, numSim),
		remotePeers:  make(map[frame.Handle]*protocol.Peer[T, A]),
		specPeers:    make(map[A]*protocol.Peer[frameBundle[T], A]),
		addrToHandle: make(map[A]frame.Handle),
		snap:         snapshot.New[S](cfg.MaxPredictionFrames + 2),
		ts:           timeSyncFor(),
		state:        StateSynchronizing,
		currentFrame: frame.Null,
	}

	localHandle := frame.Handle(0)
	haveLocal := false
	for i, p := range players[:numSim] {
		h := frame.Handle(i)
		s.types[h] = p.Type
		s.queues[h] = inputqueue.New[T](cfg.FrameDelay)
		s.confirmedAt[h] = frame.Null
		if p.Type == PlayerLocal && !haveLocal {
			localHandle = h
			haveLocal = true
		}
	}
	s.localHandle = localHandle

	for i, p := range players[:numSim] {
		if p.Type != PlayerRemote {
			continue
		}
		h := frame.Handle(i)
		s.addrToHandle[p.Addr] = h
		initiator := s.localHandle < h
		s.remotePeers[h] = protocol.New[T, A](sock, p.Addr, numSim, cfg.FPS, initiator, decode, now)
	}

	for _, addr := range spectators {
		s.specPeers[addr] = protocol.New[frameBundle[T], A](sock, addr, numSim, cfg.FPS, true, bundleDecode[T], now)
	}

	return s, nil
}

func (s *P2P[T, S, A]) State() State           { return s.state }
func (s *P2P[T, S, A]) CurrentFrame() frame.Frame { return s.currentFrame }
func (s *P2P[T, S, A]) ConfirmedFrame() frame.Frame { return s.confirmedFrame }

func (s *P2P[T, S, A]) pushEvent(e Event) { s.events = append(s.events, e) }

// DrainEvents returns and clears every event accumulated since the last
// call (spec.md §4.6 DrainEvents).
func (s *P2P[T, S, A]) DrainEvents() []Event {
	if len(s.events) == 0 {
		return nil
	}
	out := s.events
	s.events = nil
	return out
}

// AddLocalInput stores in for handle via its input queue, applying frame
// delay, queues every newly stored frame on each remote peer for delivery,
// and propagates the resulting confirmed frame to every other peer's
// outbound ConnectionStatus (spec.md §4.6 AddLocalInput).
func (s *P2P[T, S, A]) AddLocalInput(handle frame.Handle, in T) (frame.Frame, error) {
	if s.state != StateRunning {
		return frame.Null, ErrNotRunning
	}
	if !handle.Valid(s.numPlayers) || s.types[handle] != PlayerLocal {
		return frame.Null, ErrNotLocal
	}
	target := s.currentFrame.Add(1)
	prev := s.confirmedAt[handle]
	stored := s.queues[handle].AddInput(target, in)
	if stored.After(s.confirmedAt[handle]) {
		s.confirmedAt[handle] = stored
	}
	s.propagateStatus(handle, stored, false)
	start := frame.First
	if !prev.IsNull() {
		start = prev.Add(1)
	}
	for f := start; !f.After(stored); f = f.Add(1) {
		v, _ := s.queues[handle].GetConfirmedInput(f)
		for _, peer := range s.remotePeers {
			_ = peer.QueueLocalInput(inputqueue.PlayerInput[T]{Frame: f, Input: v})
		}
	}
	return stored, nil
}

// propagateStatus merges the session's latest knowledge of handle's
// confirmed frame into every other remote and spectator peer's outbound
// header, so each peer converges on a shared ConnectionStatus view
// (spec.md §3 ConnectionStatus, invariant 5).
func (s *P2P[T, S, A]) propagateStatus(handle frame.Handle, f frame.Frame, disconnected bool) {
	for h2, peer := range s.remotePeers {
		if h2 == handle {
			continue
		}
		peer.UpdateLocalStatus(int(handle), f, disconnected)
	}
	for _, peer := range s.specPeers {
		peer.UpdateLocalStatus(int(handle), f, disconnected)
	}
}

// PollRemoteClients pumps the socket into each peer, translates protocol
// events into queue updates and session events, and drives every peer's
// send path (spec.md §4.6 PollRemoteClients).
func (s *P2P[T, S, A]) PollRemoteClients(now time.Time) {
	for _, pkt := range s.sock.ReceiveAll() {
		if h, ok := s.addrToHandle[pkt.Addr]; ok {
			if peer, ok := s.remotePeers[h]; ok {
				peer.HandleMessage(pkt.Data, now)
			}
			continue
		}
		if peer, ok := s.specPeers[pkt.Addr]; ok {
			peer.HandleMessage(pkt.Data, now)
		}
	}

	for h, peer := range s.remotePeers {
		evs := peer.Poll(now, s.currentFrame)
		s.handlePeerEvents(h, peer, evs)
	}
	for addr, peer := range s.specPeers {
		peer.Poll(now, s.currentFrame)
		_ = addr
	}

	s.updateRunningState()
}

func (s *P2P[T, S, A]) handlePeerEvents(h frame.Handle, peer *protocol.Peer[T, A], evs []protocol.Event[T]) {
	for _, e := range evs {
		switch e.Kind {
		case protocol.EventSynchronizing:
			s.pushEvent(Event{Kind: EventSynchronizing, Handle: h, Total: e.Total, Count: e.Count})
		case protocol.EventSynchronized:
			s.pushEvent(Event{Kind: EventSynchronized, Handle: h})
		case protocol.EventSyncFailed:
			s.pushEvent(Event{Kind: EventDisconnected, Handle: h})
		case protocol.EventInput:
			s.queues[h].AddRemoteInput(e.PlayerInput)
			if e.PlayerInput.Frame.After(s.confirmedAt[h]) {
				s.confirmedAt[h] = e.PlayerInput.Frame
			}
			s.propagateStatus(h, e.PlayerInput.Frame, false)
		case protocol.EventDisconnected:
			s.queues[h].MarkDisconnected(peer.Stats().LastRecvFrame)
			s.pushEvent(Event{Kind: EventDisconnected, Handle: h})
			metrics.IncPeerDisconnected()
		case protocol.EventNetworkInterrupted:
			s.pushEvent(Event{Kind: EventNetworkInterrupted, Handle: h, Timeout: e.Timeout})
		case protocol.EventNetworkResumed:
			s.pushEvent(Event{Kind: EventNetworkResumed, Handle: h})
		case protocol.EventRemoteChecksum:
			s.checkDesync(h, e.ChecksumFrame, e.Checksum)
		case protocol.EventRemoteDisconnectRequested:
			s.queues[h].MarkDisconnected(e.DisconnectFrame)
			s.propagateStatus(h, e.DisconnectFrame, true)
		}
	}
}

func (s *P2P[T, S, A]) checkDesync(h frame.Handle, f frame.Frame, remoteSum uint64) {
	_, localSum, ok := s.snap.Load(f)
	if !ok {
		return
	}
	if localSum != remoteSum {
		metrics.IncDesync()
		s.pushEvent(Event{Kind: EventDesyncDetected, Handle: h, Frame: f, LocalChecksum: localSum, RemoteChecksum: remoteSum})
	}
}

func (s *P2P[T, S, A]) updateRunningState() {
	if s.state == StateRunning {
		return
	}
	for _, p := range s.remotePeers {
		if p.State() == protocol.StateSyncing {
			return
		}
	}
	s.state = StateRunning
	metrics.SetPeersConnected(len(s.remotePeers))
}

func (s *P2P[T, S, A]) firstIncorrectAcrossQueues() frame.Frame {
	result := frame.Null
	for _, q := range s.queues {
		f := q.FirstIncorrectFrame()
		if f.IsNull() {
			continue
		}
		if result.IsNull() || f.Before(result) {
			result = f
		}
	}
	return result
}

func (s *P2P[T, S, A]) gatherInputs(f frame.Frame) []T {
	out := make([]T, s.numPlayers)
	for h := 0; h < s.numPlayers; h++ {
		v, status := s.queues[h].GetInput(f)
		if status == inputqueue.Disconnected {
			var zero T
			v = zero
		}
		out[h] = v
	}
	return out
}

func (s *P2P[T, S, A]) saveRequest(f frame.Frame) Request[T, S] {
	return Request[T, S]{Kind: RequestSaveGameState, Frame: f, save: func(state S, raw []byte) uint64 {
		sum := s.snap.SaveComputed(f, state, raw)
		if s.cfg.DesyncInterval > 0 && int(f)%s.cfg.DesyncInterval == 0 {
			s.broadcastChecksum(f, sum)
		}
		return sum
	}}
}

func (s *P2P[T, S, A]) loadRequest(f frame.Frame) Request[T, S] {
	return Request[T, S]{Kind: RequestLoadGameState, Frame: f, load: func() (S, bool) {
		state, _, ok := s.snap.Load(f)
		return state, ok
	}}
}

func (s *P2P[T, S, A]) advanceRequest(f frame.Frame, inputs []T) Request[T, S] {
	s.broadcastFrame(f, inputs)
	return Request[T, S]{Kind: RequestAdvanceFrame, Frame: f, Inputs: inputs}
}

func (s *P2P[T, S, A]) broadcastChecksum(f frame.Frame, sum uint64) {
	for _, p := range s.remotePeers {
		p.QueueChecksum(f, sum)
	}
}

func (s *P2P[T, S, A]) broadcastFrame(f frame.Frame, inputs []T) {
	if len(s.specPeers) == 0 {
		return
	}
	bundle := packBundle(inputs)
	for _, p := range s.specPeers {
		_ = p.QueueLocalInput(inputqueue.PlayerInput[frameBundle[T]]{Frame: f, Input: bundle})
	}
}

// AdvanceFrame is the rewind/advance/confirm/prediction-barrier loop of
// spec.md §4.6. It returns the ordered requests the host must process; a
// nil return means the session is not yet Running or the prediction
// barrier held, and in both cases the host must stall.
func (s *P2P[T, S, A]) AdvanceFrame() []Request[T, S] {
	if s.state != StateRunning {
		return nil
	}

	rewindFrom := s.firstIncorrectAcrossQueues()
	newFrame := s.currentFrame.Add(1)

	var reqs []Request[T, S]
	if !rewindFrom.IsNull() && !rewindFrom.After(s.currentFrame) {
		reqs = append(reqs, s.loadRequest(rewindFrom))
		depth := 0
		for f := rewindFrom.Add(1); !f.After(newFrame); f = f.Add(1) {
			inputs := s.gatherInputs(f)
			reqs = append(reqs, s.advanceRequest(f, inputs))
			reqs = append(reqs, s.saveRequest(f))
			depth++
		}
		metrics.AddRewoundFrames(depth)
		metrics.SetRollbackDepth(depth)
		for _, q := range s.queues {
			q.ResetPrediction(newFrame)
		}
	} else {
		if newFrame.Sub(s.confirmedFrame) > s.cfg.MaxPredictionFrames {
			metrics.IncPredictionBarrierStall()
			return nil
		}
		inputs := s.gatherInputs(newFrame)
		reqs = append(reqs, s.advanceRequest(newFrame, inputs))
		reqs = append(reqs, s.saveRequest(newFrame))
	}
	s.currentFrame = newFrame

	s.updateConfirmedFrame()
	s.discardConfirmed()
	s.recordTimeSyncSample()
	if w := s.ts.RecommendFrameWait(int(s.currentFrame)); w > 0 {
		s.pushEvent(Event{Kind: EventWaitRecommendation, SkipFrames: w})
	}
	return reqs
}

func (s *P2P[T, S, A]) updateConfirmedFrame() {
	lowest := frame.Null
	haveAny := false
	for h := 0; h < s.numPlayers; h++ {
		if s.manualDisc[h] {
			continue
		}
		c := s.confirmedAt[h]
		if !haveAny {
			lowest = c
			haveAny = true
			continue
		}
		lowest = frame.Min(lowest, c)
	}
	if !haveAny {
		s.confirmedFrame = s.currentFrame
		return
	}
	s.confirmedFrame = lowest
}

func (s *P2P[T, S, A]) discardConfirmed() {
	if s.confirmedFrame.IsNull() {
		return
	}
	for _, q := range s.queues {
		q.DiscardConfirmedFrames(s.confirmedFrame)
	}
}

func (s *P2P[T, S, A]) recordTimeSyncSample() {
	if len(s.remotePeers) == 0 {
		return
	}
	localSum, remoteSum := 0, 0
	for _, p := range s.remotePeers {
		st := p.Stats()
		localSum += st.LocalFrameAdvantage
		remoteSum += st.RemoteFrameAdvantage
	}
	n := len(s.remotePeers)
	s.ts.RecordSample(localSum/n, remoteSum/n)
}

// DisconnectPlayer marks handle disconnected as of the current frame; other
// peers learn through header propagation (spec.md §4.6 DisconnectPlayer).
func (s *P2P[T, S, A]) DisconnectPlayer(handle frame.Handle) error {
	if !handle.Valid(s.numPlayers) {
		return ErrUnknownHandle
	}
	s.manualDisc[handle] = true
	s.queues[handle].MarkDisconnected(s.currentFrame)
	if peer, ok := s.remotePeers[handle]; ok {
		peer.Disconnect(s.currentFrame)
	}
	s.propagateStatus(handle, s.currentFrame, true)
	s.pushEvent(Event{Kind: EventDisconnected, Handle: handle})
	return nil
}

// SetFrameDelay adjusts handle's local input delay for future AddLocalInput
// calls (spec.md §4.6 SetFrameDelay).
func (s *P2P[T, S, A]) SetFrameDelay(handle frame.Handle, d int) error {
	if !handle.Valid(s.numPlayers) {
		return ErrUnknownHandle
	}
	s.queues[handle].SetFrameDelay(d)
	return nil
}

// NetworkStats returns handle's current network telemetry (spec.md §4.6
// NetworkStats). Only meaningful for Remote handles.
func (s *P2P[T, S, A]) NetworkStats(handle frame.Handle) (protocol.Stats, error) {
	p, ok := s.remotePeers[handle]
	if !ok {
		return protocol.Stats{}, ErrUnknownHandle
	}
	return p.Stats(), nil
}
