// Package inputqueue implements the per-player frame-indexed input queue of
// spec.md §4.1: local input storage with frame-delay repetition, prediction
// on read, and authoritative confirmation that detects and records
// misprediction for the session's rollback trigger.
package inputqueue

import (
	"github.com/nullframe/rollback/internal/frame"
	"github.com/nullframe/rollback/internal/ring"
	"github.com/nullframe/rollback/internal/wire"
)

// Length is the per-player ring size (spec.md QUEUE_LENGTH).
const Length = 128

// Status classifies the value GetInput/GetConfirmedInput returned.
type Status int

const (
	// Confirmed means the value is authoritative (locally submitted, or
	// received from the remote peer).
	Confirmed Status = iota
	// Predicted means no authoritative value exists yet for this frame;
	// the last known input was repeated.
	Predicted
	// Disconnected means the owning player has disconnected as of this
	// frame; the returned input is a blank.
	Disconnected
)

// PlayerInput pairs a frame with the payload submitted or confirmed for it.
type PlayerInput[T wire.Input] struct {
	Frame frame.Frame
	Input T
}

// BlankInput returns the all-zero payload for f.
func BlankInput[T wire.Input](f frame.Frame) PlayerInput[T] {
	var zero T
	return PlayerInput[T]{Frame: f, Input: zero}
}

type slot[T wire.Input] struct {
	frame     frame.Frame
	input     T
	confirmed bool
	used      bool
}

// Queue is one player's input history: frame-delayed local submissions,
// authoritative remote confirmations, and prediction on read, as specified
// in spec.md §4.1.
type Queue[T wire.Input] struct {
	ring           *ring.Ring[slot[T]]
	frameDelay     int
	disconnected   bool
	disconnectedAt frame.Frame

	firstFrame     frame.Frame
	lastAdded      frame.Frame
	lastUserAdded  frame.Frame
	firstIncorrect frame.Frame
	lastRequested  frame.Frame
}

// New returns an empty Queue with the given frame delay (spec.md
// FRAME_DELAY, overridable per player via session.SetFrameDelay).
func New[T wire.Input](frameDelay int) *Queue[T] {
	return &Queue[T]{
		ring:           ring.New[slot[T]](Length),
		frameDelay:     frameDelay,
		firstFrame:     frame.Null,
		lastAdded:      frame.Null,
		lastUserAdded:  frame.Null,
		firstIncorrect: frame.Null,
		lastRequested:  frame.Null,
		disconnectedAt: frame.Null,
	}
}

// SetFrameDelay adjusts the delay applied to future local AddInput calls.
func (q *Queue[T]) SetFrameDelay(d int) { q.frameDelay = d }

func (q *Queue[T]) writeSlot(f frame.Frame, input T, confirmed bool) {
	q.ring.Set(int(f), slot[T]{frame: f, input: input, confirmed: confirmed, used: true})
	if q.firstFrame.IsNull() {
		q.firstFrame = f
	}
	if q.lastAdded.IsNull() || f.After(q.lastAdded) {
		q.lastAdded = f
	}
	q.advanceWindow()
}

func (q *Queue[T]) advanceWindow() {
	if q.firstFrame.IsNull() || q.lastAdded.IsNull() {
		return
	}
	if q.lastAdded.Sub(q.firstFrame)+1 > Length {
		q.firstFrame = q.lastAdded.Add(-(Length - 1))
	}
}

func (q *Queue[T]) readRaw(f frame.Frame) T {
	s := q.ring.At(int(f))
	if s.used && s.frame == f {
		return s.input
	}
	var zero T
	return zero
}

func (q *Queue[T]) lookupSlot(f frame.Frame) (slot[T], bool) {
	s := q.ring.At(int(f))
	if s.used && s.frame == f {
		return s, true
	}
	return slot[T]{}, false
}

// AddInput stores a locally-submitted input for logical frame f, applying
// the queue's frame delay and repeating the last known input across any
// skipped intermediate frames, or in itself when nothing has been added
// yet (spec.md §4.1 "Frame delay"). It returns the
// frame the input was actually stored at, which is always >= f and is
// clamped forward to stay strictly after any previously added frame.
func (q *Queue[T]) AddInput(f frame.Frame, in T) frame.Frame {
	target := f.Add(q.frameDelay)
	expected := frame.First
	if !q.lastUserAdded.IsNull() {
		expected = q.lastUserAdded.Add(1)
	}
	if target.Before(expected) {
		target = expected
	}

	last := in
	if !q.lastAdded.IsNull() {
		last = q.readRaw(q.lastAdded)
	}
	for gf := expected; gf.Before(target); gf = gf.Add(1) {
		q.writeSlot(gf, last, true)
	}
	q.writeSlot(target, in, true)
	q.lastUserAdded = target
	return target
}

// AddRemoteInput writes an authoritative input received from the network.
// If it contradicts a value already predicted and returned to the game
// (GetInput was called for this frame or a later one with no
// authoritative value yet), FirstIncorrectFrame is updated to the earliest
// such frame, which the session uses to trigger a rollback. A remote input
// that repeats the existing confirmed value at its frame is a no-op.
func (q *Queue[T]) AddRemoteInput(pi PlayerInput[T]) {
	f := pi.Frame
	if !q.lastAdded.IsNull() && !f.After(q.lastAdded) {
		if existing, ok := q.lookupSlot(f); ok {
			if existing.input == pi.Input {
				if !existing.confirmed {
					q.writeSlot(f, pi.Input, true)
				}
				return
			}
			if !q.lastRequested.IsNull() && !f.After(q.lastRequested) {
				if q.firstIncorrect.IsNull() || f.Before(q.firstIncorrect) {
					q.firstIncorrect = f
				}
			}
			q.writeSlot(f, pi.Input, true)
			return
		}
	}

	var predicted T
	start := frame.First
	if !q.lastAdded.IsNull() {
		start = q.lastAdded.Add(1)
		predicted = q.readRaw(q.lastAdded)
	}
	for gf := start; gf.Before(f); gf = gf.Add(1) {
		q.writeSlot(gf, predicted, false)
	}
	if !q.lastRequested.IsNull() && !f.After(q.lastRequested) {
		if predicted != pi.Input {
			if q.firstIncorrect.IsNull() || f.Before(q.firstIncorrect) {
				q.firstIncorrect = f
			}
		}
	}
	q.writeSlot(f, pi.Input, true)
}

// GetInput returns the input for frame f: the confirmed value if one has
// been stored, otherwise the last known input, marked Predicted. Predicted
// reads never write to the queue (spec.md §9 "prediction never writes");
// they only advance lastRequested so a later confirmation can detect the
// misprediction.
func (q *Queue[T]) GetInput(f frame.Frame) (T, Status) {
	if q.disconnected && !q.disconnectedAt.IsNull() && f.After(q.disconnectedAt) {
		var zero T
		return zero, Disconnected
	}
	if s, ok := q.lookupSlot(f); ok && s.confirmed {
		return s.input, Confirmed
	}
	if q.lastRequested.IsNull() || f.After(q.lastRequested) {
		q.lastRequested = f
	}
	if s, ok := q.lookupSlot(f); ok {
		return s.input, Predicted
	}
	var predicted T
	if !q.lastAdded.IsNull() {
		predicted = q.readRaw(q.lastAdded)
	}
	return predicted, Predicted
}

// GetConfirmedInput returns the authoritative input for f if one has been
// confirmed, else the zero value and Predicted.
func (q *Queue[T]) GetConfirmedInput(f frame.Frame) (T, Status) {
	if s, ok := q.lookupSlot(f); ok && s.confirmed {
		return s.input, Confirmed
	}
	var zero T
	return zero, Predicted
}

// DiscardConfirmedFrames advances the retained window so frames <= upTo may
// be evicted. It never runs backward.
func (q *Queue[T]) DiscardConfirmedFrames(upTo frame.Frame) {
	next := upTo.Add(1)
	if q.firstFrame.IsNull() || next.After(q.firstFrame) {
		q.firstFrame = next
	}
}

// FirstIncorrectFrame returns the earliest frame whose prediction has been
// contradicted by an authoritative input, or frame.Null if none.
func (q *Queue[T]) FirstIncorrectFrame() frame.Frame {
	return q.firstIncorrect
}

// ResetPrediction clears misprediction tracking after the session has
// rewound and re-synced through frame f.
func (q *Queue[T]) ResetPrediction(f frame.Frame) {
	q.firstIncorrect = frame.Null
	q.lastRequested = frame.Null
}

// MarkDisconnected records that the owning player disconnected as of frame
// f; subsequent GetInput calls for frames after f return Disconnected.
func (q *Queue[T]) MarkDisconnected(f frame.Frame) {
	q.disconnected = true
	q.disconnectedAt = f
}

// LastAddedFrame returns the highest frame with any stored value (confirmed
// or repeated), or frame.Null if nothing has been added yet.
func (q *Queue[T]) LastAddedFrame() frame.Frame { return q.lastAdded }
