package session

import (
	"time"

	"github.com/nullframe/rollback/internal/frame"
	"github.com/nullframe/rollback/internal/protocol"
	"github.com/nullframe/rollback/internal/socket"
	"github.com/nullframe/rollback/internal/wire"
)

// Spectator replicates a P2P session's confirmed input stream without
// taking part in the simulation itself (spec.md §4.7). It has no
// prediction, no rollback, and no TimeSync instance of its own: it paces
// purely off how far behind the host it has fallen, per SPEC_FULL.md's
// resolution of the Open Question on Spectator time sync.
type Spectator[T wire.Input, A comparable] struct {
	cfg        Config
	numPlayers int
	width      int

	host   *protocol.Peer[frameBundle[T], A]
	decode wire.Decoder[T]

	buffered map[frame.Frame][]T
	nextPlay frame.Frame
	hostHead frame.Frame

	events []Event
}

// NewSpectator dials a single host address and waits for its replicated
// bundle stream (spec.md §4.7 builder). numPlayers must match the host
// session's simulation player count; decode reconstructs a single player's
// input from its fixed-width slice of a received bundle.
func NewSpectator[T wire.Input, A comparable](sock socket.Socket[A], hostAddr A, numPlayers int, decode wire.Decoder[T], now time.Time, opts ...Option) (*Spectator[T, A], error) {
	if sock == nil {
		return nil, ErrMissingSocket
	}
	if numPlayers < 2 || numPlayers > 4 {
		return nil, ErrInvalidPlayerCount
	}
	cfg := buildConfig(opts)
	var zero T
	return &Spectator[T, A]{
		cfg:        cfg,
		numPlayers: numPlayers,
		width:      wire.Width(zero),
		host:       protocol.New[frameBundle[T], A](sock, hostAddr, numPlayers, cfg.FPS, false, bundleDecode[T], now),
		decode:     decode,
		buffered:   make(map[frame.Frame][]T),
		nextPlay:   frame.First,
		hostHead:   frame.Null,
	}, nil
}

func (s *Spectator[T, A]) pushEvent(e Event) { s.events = append(s.events, e) }

// DrainEvents returns and clears every event accumulated since the last
// call.
func (s *Spectator[T, A]) DrainEvents() []Event {
	if len(s.events) == 0 {
		return nil
	}
	out := s.events
	s.events = nil
	return out
}

// PollRemoteClients pumps the host connection and buffers any newly
// received confirmed frames (spec.md §4.7 PollRemoteClients).
func (s *Spectator[T, A]) PollRemoteClients(now time.Time) {
	evs := s.host.Poll(now, s.nextPlay)
	s.handleEvents(evs)

	if len(s.buffered) > s.cfg.SpectatorBufferFrames {
		s.trimOverflow()
	}
}

// HandleMessage feeds a single received datagram to the host connection.
// Exposed separately from PollRemoteClients so callers driving their own
// receive loop (e.g. a shared socket multiplexed across several
// spectators) can dispatch by source address themselves.
func (s *Spectator[T, A]) HandleMessage(data []byte, now time.Time) {
	s.host.HandleMessage(data, now)
}

func (s *Spectator[T, A]) handleEvents(evs []protocol.Event[frameBundle[T]]) {
	for _, e := range evs {
		switch e.Kind {
		case protocol.EventSynchronizing:
			s.pushEvent(Event{Kind: EventSynchronizing, Total: e.Total, Count: e.Count})
		case protocol.EventSynchronized:
			s.pushEvent(Event{Kind: EventSynchronized})
		case protocol.EventSyncFailed, protocol.EventDisconnected:
			s.pushEvent(Event{Kind: EventDisconnected})
		case protocol.EventNetworkInterrupted:
			s.pushEvent(Event{Kind: EventNetworkInterrupted, Timeout: e.Timeout})
		case protocol.EventNetworkResumed:
			s.pushEvent(Event{Kind: EventNetworkResumed})
		case protocol.EventInput:
			f := e.PlayerInput.Frame
			values := unpackBundle(e.PlayerInput.Input, s.width, s.decode)
			if values == nil {
				continue
			}
			s.buffered[f] = values
			if f.After(s.hostHead) {
				s.hostHead = f
			}
		}
	}
}

func (s *Spectator[T, A]) trimOverflow() {
	cutoff := s.nextPlay
	for f := range s.buffered {
		if f.Before(cutoff) {
			delete(s.buffered, f)
		}
	}
}

// FramesBehindHost reports how far the newest frame received from the host
// is ahead of the next frame to play, the sole pacing signal for this
// session mode (spec.md §4.7 FramesBehindHost).
func (s *Spectator[T, A]) FramesBehindHost() int {
	if s.hostHead.IsNull() {
		return 0
	}
	d := s.hostHead.Sub(s.nextPlay)
	if d < 0 {
		return 0
	}
	return d
}

// AdvanceFrame returns requests for the next buffered frames in order, or
// nil if the next frame has not arrived yet. It plays one frame per call;
// while FramesBehindHost exceeds SpectatorMaxFramesBehind it plays up to
// SpectatorCatchupSpeed frames per call instead. No frame is skipped: play
// stops at the first frame that has not arrived.
func (s *Spectator[T, A]) AdvanceFrame() []AdvanceRequest[T] {
	steps := 1
	if behind := s.FramesBehindHost(); behind > s.cfg.SpectatorMaxFramesBehind {
		steps = s.cfg.SpectatorCatchupSpeed
	}

	var reqs []AdvanceRequest[T]
	for i := 0; i < steps; i++ {
		values, ok := s.buffered[s.nextPlay]
		if !ok {
			break
		}
		delete(s.buffered, s.nextPlay)
		reqs = append(reqs, AdvanceRequest[T]{Frame: s.nextPlay, Inputs: values})
		s.nextPlay = s.nextPlay.Add(1)
	}
	return reqs
}
