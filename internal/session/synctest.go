package session

import (
	"github.com/nullframe/rollback/internal/checksum"
	"github.com/nullframe/rollback/internal/frame"
	"github.com/nullframe/rollback/internal/inputqueue"
	"github.com/nullframe/rollback/internal/wire"
)

// Synctest runs a single local input queue through a periodic
// rewind-and-replay loop with no network involved at all, to catch
// non-determinism in the host's simulation before it ever reaches a remote
// peer (spec.md §4.8). Every CheckDistance frames it loads the frame from
// CheckDistance ago, re-advances back up to the current frame, and compares
// the checksum recomputed on replay against the one originally saved —
// any mismatch is exactly the kind of desync invariant 7 guards against,
// just caught locally instead of over the wire.
type Synctest[T wire.Input, S any] struct {
	cfg        Config
	numPlayers int
	queues     []*inputqueue.Queue[T]

	snap *syncSnapStore[S]

	currentFrame frame.Frame
	events       []Event
}

// syncSnapStore is the minimal save/load/checksum surface Synctest needs;
// kept as its own tiny type (rather than reusing internal/snapshot.Store
// directly) because Synctest must retain every frame back to CheckDistance
// plus one, not just MaxPredictionFrames+2 worth of rollback headroom.
type syncSnapStore[S any] struct {
	cells map[frame.Frame]syncCell[S]
}

type syncCell[S any] struct {
	state S
	sum   uint64
}

func newSyncSnapStore[S any]() *syncSnapStore[S] {
	return &syncSnapStore[S]{cells: make(map[frame.Frame]syncCell[S])}
}

func (s *syncSnapStore[S]) save(f frame.Frame, state S, sum uint64) {
	s.cells[f] = syncCell[S]{state: state, sum: sum}
}

func (s *syncSnapStore[S]) load(f frame.Frame) (S, uint64, bool) {
	c, ok := s.cells[f]
	return c.state, c.sum, ok
}

func (s *syncSnapStore[S]) evictBefore(f frame.Frame) {
	for k := range s.cells {
		if k.Before(f) {
			delete(s.cells, k)
		}
	}
}

// NewSynctest builds a Synctest session for numPlayers local inputs, all
// supplied by the same host process (spec.md §4.8 builder). CheckDistance
// must not exceed MaxPredictionFrames, the same headroom constraint the
// P2P rollback window relies on.
func NewSynctest[T wire.Input, S any](numPlayers int, opts ...Option) (*Synctest[T, S], error) {
	if numPlayers < 2 || numPlayers > 4 {
		return nil, ErrInvalidPlayerCount
	}
	cfg := buildConfig(opts)
	if cfg.CheckDistance > cfg.MaxPredictionFrames {
		return nil, ErrInvalidCheckDistance
	}
	queues := make([]*inputqueue.Queue[T], numPlayers)
	for i := range queues {
		queues[i] = inputqueue.New[T](cfg.FrameDelay)
	}
	return &Synctest[T, S]{
		cfg:          cfg,
		numPlayers:   numPlayers,
		queues:       queues,
		snap:         newSyncSnapStore[S](),
		currentFrame: frame.Null,
	}, nil
}

func (s *Synctest[T, S]) pushEvent(e Event) { s.events = append(s.events, e) }

// DrainEvents returns and clears every event accumulated since the last
// call.
func (s *Synctest[T, S]) DrainEvents() []Event {
	if len(s.events) == 0 {
		return nil
	}
	out := s.events
	s.events = nil
	return out
}

// AddLocalInput stores in for handle at the next frame, applying frame
// delay the same way a P2P session's local queue does.
func (s *Synctest[T, S]) AddLocalInput(handle frame.Handle, in T) (frame.Frame, error) {
	if !handle.Valid(s.numPlayers) {
		return frame.Null, ErrUnknownHandle
	}
	target := s.currentFrame.Add(1)
	return s.queues[handle].AddInput(target, in), nil
}

func (s *Synctest[T, S]) gatherInputs(f frame.Frame) []T {
	out := make([]T, s.numPlayers)
	for h := 0; h < s.numPlayers; h++ {
		v, _ := s.queues[h].GetInput(f)
		out[h] = v
	}
	return out
}

// AdvanceFrame steps the simulation forward one frame. Every CheckDistance
// frames (once enough history exists) it first replays the last
// CheckDistance frames from a reloaded checkpoint, recomputing each
// frame's checksum and comparing it against what was originally saved;
// any mismatch surfaces as EventDesyncDetected before the new frame's
// requests are appended, matching spec.md §4.8's verify-before-advance
// ordering.
func (s *Synctest[T, S]) AdvanceFrame() []Request[T, S] {
	newFrame := s.currentFrame.Add(1)
	var reqs []Request[T, S]

	if s.cfg.CheckDistance > 0 && int(newFrame)%s.cfg.CheckDistance == 0 && int(newFrame) >= s.cfg.CheckDistance {
		checkFrom := newFrame.Add(-s.cfg.CheckDistance)
		reqs = append(reqs, s.verifyLoadRequest(checkFrom))
		for f := checkFrom.Add(1); !f.After(newFrame); f = f.Add(1) {
			inputs := s.gatherInputs(f)
			reqs = append(reqs, Request[T, S]{Kind: RequestAdvanceFrame, Frame: f, Inputs: inputs})
			reqs = append(reqs, s.verifySaveRequest(f))
		}
		for _, q := range s.queues {
			q.ResetPrediction(newFrame.Add(1))
		}
	} else {
		inputs := s.gatherInputs(newFrame)
		reqs = append(reqs, Request[T, S]{Kind: RequestAdvanceFrame, Frame: newFrame, Inputs: inputs})
		reqs = append(reqs, s.verifySaveRequest(newFrame))
	}

	s.currentFrame = newFrame
	for _, q := range s.queues {
		q.DiscardConfirmedFrames(newFrame.Add(-s.cfg.MaxPredictionFrames))
	}
	s.snap.evictBefore(newFrame.Add(-s.cfg.CheckDistance - 1))
	return reqs
}

func (s *Synctest[T, S]) verifyLoadRequest(f frame.Frame) Request[T, S] {
	return Request[T, S]{Kind: RequestLoadGameState, Frame: f, load: func() (S, bool) {
		state, _, ok := s.snap.load(f)
		return state, ok
	}}
}

func (s *Synctest[T, S]) verifySaveRequest(f frame.Frame) Request[T, S] {
	return Request[T, S]{Kind: RequestSaveGameState, Frame: f, save: func(state S, raw []byte) uint64 {
		sum := checksum.Sum64(raw)
		if _, prevSum, ok := s.snap.load(f); ok && prevSum != sum {
			s.pushEvent(Event{Kind: EventDesyncDetected, Frame: f, LocalChecksum: prevSum, RemoteChecksum: sum})
		}
		s.snap.save(f, state, sum)
		return sum
	}}
}
