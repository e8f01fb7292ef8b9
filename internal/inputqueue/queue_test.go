package inputqueue

import (
	"testing"

	"github.com/nullframe/rollback/internal/frame"
)

type testInput uint8

func (i testInput) Bytes() []byte { return []byte{byte(i)} }

func TestAddInputSequential(t *testing.T) {
	q := New[testInput](0)
	for i := 0; i < 5; i++ {
		stored := q.AddInput(frame.Frame(i), testInput(i))
		if stored != frame.Frame(i) {
			t.Fatalf("frame %d stored at %d", i, stored)
		}
	}
	for i := 0; i < 5; i++ {
		v, status := q.GetInput(frame.Frame(i))
		if status != Confirmed {
			t.Fatalf("frame %d: expected Confirmed, got %v", i, status)
		}
		if v != testInput(i) {
			t.Fatalf("frame %d: got %v", i, v)
		}
	}
}

func TestAddInputFrameDelayRepeats(t *testing.T) {
	q := New[testInput](2)
	stored := q.AddInput(frame.First, testInput(7))
	if stored != frame.Frame(2) {
		t.Fatalf("expected stored at frame 2, got %d", stored)
	}
	// Frames 0 and 1 should have been filled with a repeat of the same value.
	for i := 0; i < 2; i++ {
		v, status := q.GetInput(frame.Frame(i))
		if status != Confirmed || v != testInput(7) {
			t.Fatalf("frame %d: expected filled Confirmed(7), got %v/%v", i, v, status)
		}
	}
}

func TestGetInputPredictsBeyondLastAdded(t *testing.T) {
	q := New[testInput](0)
	q.AddInput(frame.First, testInput(3))
	v, status := q.GetInput(frame.Frame(5))
	if status != Predicted {
		t.Fatalf("expected Predicted, got %v", status)
	}
	if v != testInput(3) {
		t.Fatalf("expected repeated last value 3, got %v", v)
	}
}

func TestAddRemoteInputConfirmsMatchingPrediction(t *testing.T) {
	q := New[testInput](0)
	q.AddRemoteInput(PlayerInput[testInput]{Frame: 0, Input: testInput(1)})
	// Predict frame 3 (repeats frame 0's value).
	if v, status := q.GetInput(3); status != Predicted || v != testInput(1) {
		t.Fatalf("expected predicted 1, got %v/%v", v, status)
	}
	// Confirmation with the same value the prediction already guessed: no misprediction.
	q.AddRemoteInput(PlayerInput[testInput]{Frame: 3, Input: testInput(1)})
	if !q.FirstIncorrectFrame().IsNull() {
		t.Fatalf("expected no misprediction, got firstIncorrect=%v", q.FirstIncorrectFrame())
	}
}

func TestAddRemoteInputDetectsMisprediction(t *testing.T) {
	q := New[testInput](0)
	q.AddRemoteInput(PlayerInput[testInput]{Frame: 0, Input: testInput(1)})
	if v, status := q.GetInput(3); status != Predicted || v != testInput(1) {
		t.Fatalf("expected predicted 1, got %v/%v", v, status)
	}
	q.AddRemoteInput(PlayerInput[testInput]{Frame: 3, Input: testInput(9)})
	if got := q.FirstIncorrectFrame(); got != frame.Frame(3) {
		t.Fatalf("expected firstIncorrect=3, got %v", got)
	}
}

func TestAddRemoteInputNoMispredictionWithoutRead(t *testing.T) {
	q := New[testInput](0)
	q.AddRemoteInput(PlayerInput[testInput]{Frame: 0, Input: testInput(1)})
	// Frame 3 was never predicted via GetInput, so a differing confirmation
	// there must not retroactively flag a misprediction.
	q.AddRemoteInput(PlayerInput[testInput]{Frame: 3, Input: testInput(9)})
	if !q.FirstIncorrectFrame().IsNull() {
		t.Fatalf("expected no misprediction, got %v", q.FirstIncorrectFrame())
	}
}

func TestAddRemoteInputDuplicateIsNoop(t *testing.T) {
	q := New[testInput](0)
	q.AddRemoteInput(PlayerInput[testInput]{Frame: 0, Input: testInput(1)})
	q.AddRemoteInput(PlayerInput[testInput]{Frame: 0, Input: testInput(1)})
	if !q.FirstIncorrectFrame().IsNull() {
		t.Fatalf("duplicate confirmation must not flag a misprediction")
	}
}

func TestResetPredictionClearsState(t *testing.T) {
	q := New[testInput](0)
	q.AddRemoteInput(PlayerInput[testInput]{Frame: 0, Input: testInput(1)})
	q.GetInput(3)
	q.AddRemoteInput(PlayerInput[testInput]{Frame: 3, Input: testInput(9)})
	if q.FirstIncorrectFrame().IsNull() {
		t.Fatalf("expected a misprediction to be recorded")
	}
	q.ResetPrediction(3)
	if !q.FirstIncorrectFrame().IsNull() {
		t.Fatalf("expected ResetPrediction to clear firstIncorrect")
	}
}

func TestGetConfirmedInputOnlyReturnsAuthoritative(t *testing.T) {
	q := New[testInput](0)
	q.AddRemoteInput(PlayerInput[testInput]{Frame: 0, Input: testInput(5)})
	// Frame 2 gets filled in as an unconfirmed gap once frame 4 arrives.
	q.AddRemoteInput(PlayerInput[testInput]{Frame: 4, Input: testInput(6)})
	if _, status := q.GetConfirmedInput(2); status != Predicted {
		t.Fatalf("expected gap-filled frame 2 to be unconfirmed")
	}
	if v, status := q.GetConfirmedInput(4); status != Confirmed || v != testInput(6) {
		t.Fatalf("expected confirmed 6 at frame 4, got %v/%v", v, status)
	}
}

func TestMarkDisconnected(t *testing.T) {
	q := New[testInput](0)
	q.AddInput(0, testInput(1))
	q.MarkDisconnected(0)
	if _, status := q.GetInput(1); status != Disconnected {
		t.Fatalf("expected Disconnected after mark, got %v", status)
	}
}

func TestDiscardConfirmedFramesNeverMovesBackward(t *testing.T) {
	q := New[testInput](0)
	q.AddInput(0, testInput(1))
	q.DiscardConfirmedFrames(0)
	q.DiscardConfirmedFrames(frame.Frame(-1))
	if q.firstFrame != frame.Frame(1) {
		t.Fatalf("expected firstFrame to stay at 1, got %v", q.firstFrame)
	}
}
