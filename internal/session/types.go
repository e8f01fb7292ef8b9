package session

import (
	"errors"
	"time"

	"github.com/nullframe/rollback/internal/frame"
	"github.com/nullframe/rollback/internal/wire"
)

// State is the top-level session state machine (spec.md §3).
type State uint8

const (
	StateSynchronizing State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "Running"
	}
	return "Synchronizing"
}

// PlayerType classifies one entry in a P2P session's player list (spec.md
// §4.6 builder inputs).
type PlayerType uint8

const (
	PlayerLocal PlayerType = iota
	PlayerRemote
)

// PlayerSpec is one simulation player's builder entry. Addr is ignored for
// PlayerLocal. Handles are assigned by slice position, 0..N-1.
type PlayerSpec[A comparable] struct {
	Type PlayerType
	Addr A
}

// Sentinel errors, classified by callers via errors.Is, the same shape as
// internal/protocol/errors.go and the teacher's internal/server/errors.go.
var (
	ErrNotRunning           = errors.New("session: not running")
	ErrUnknownHandle        = errors.New("session: unknown handle")
	ErrNotLocal             = errors.New("session: handle is not a local player")
	ErrInvalidPlayerCount   = errors.New("session: player count out of range [2,4]")
	ErrNoLocalPlayer        = errors.New("session: at least one local player is required")
	ErrDuplicateAddress     = errors.New("session: duplicate remote address")
	ErrMissingSocket        = errors.New("session: socket is required")
	ErrInvalidCheckDistance = errors.New("session: check distance must be <= max prediction frames")
)

// RequestKind is the closed set of host callbacks an AdvanceFrame call can
// request (spec.md §6.2). Requests from one AdvanceFrame return MUST be
// processed in order.
type RequestKind uint8

const (
	RequestSaveGameState RequestKind = iota
	RequestLoadGameState
	RequestAdvanceFrame
)

func (k RequestKind) String() string {
	switch k {
	case RequestSaveGameState:
		return "SaveGameState"
	case RequestLoadGameState:
		return "LoadGameState"
	case RequestAdvanceFrame:
		return "AdvanceFrame"
	default:
		return "Unknown"
	}
}

// Request is one host callback obligation. Exactly the methods matching
// Kind are meaningful: Inputs for RequestAdvanceFrame, Save for
// RequestSaveGameState, Load for RequestLoadGameState. The snapshot cell is
// never handed out as a raw pointer (spec.md §9 ownership note: "the host
// must not retain the cell beyond the matching request") — Save and Load
// are closures bound to this request's frame and the session's own store.
type Request[T wire.Input, S any] struct {
	Kind   RequestKind
	Frame  frame.Frame
	Inputs []T // valid iff Kind == RequestAdvanceFrame, ordered by handle

	save func(state S, raw []byte) uint64
	load func() (S, bool)
}

// Save serializes state into this request's cell and records its checksum,
// computed via internal/checksum over raw. Valid only when Kind ==
// RequestSaveGameState; returns 0 if called on any other kind.
func (r Request[T, S]) Save(state S, raw []byte) uint64 {
	if r.save == nil {
		return 0
	}
	return r.save(state, raw)
}

// Load restores the state saved for this request's frame. ok is false if
// Kind != RequestLoadGameState or nothing was ever saved there.
func (r Request[T, S]) Load() (S, bool) {
	if r.load == nil {
		var zero S
		return zero, false
	}
	return r.load()
}

// AdvanceRequest is the reduced request shape used by the Spectator
// session, which never saves, loads, or rewinds (spec.md §4.7).
type AdvanceRequest[T wire.Input] struct {
	Frame  frame.Frame
	Inputs []T
}

// EventKind is the closed set of events DrainEvents can return (spec.md
// §4.6's RollbackEvent set).
type EventKind uint8

const (
	EventSynchronizing EventKind = iota
	EventSynchronized
	EventDisconnected
	EventNetworkInterrupted
	EventNetworkResumed
	EventWaitRecommendation
	EventDesyncDetected
)

func (k EventKind) String() string {
	switch k {
	case EventSynchronizing:
		return "Synchronizing"
	case EventSynchronized:
		return "Synchronized"
	case EventDisconnected:
		return "Disconnected"
	case EventNetworkInterrupted:
		return "NetworkInterrupted"
	case EventNetworkResumed:
		return "NetworkResumed"
	case EventWaitRecommendation:
		return "WaitRecommendation"
	case EventDesyncDetected:
		return "DesyncDetected"
	default:
		return "Unknown"
	}
}

// Event is one item drained from a session's event queue. Only the fields
// relevant to Kind are populated; DrainEvents returns a plain slice, no
// generator machinery (spec.md §9 "no coroutine control flow").
type Event struct {
	Kind   EventKind
	Handle frame.Handle

	Total int // EventSynchronizing: handshake attempt budget
	Count int // EventSynchronizing: attempts so far

	SkipFrames uint          // EventWaitRecommendation
	Timeout    time.Duration // EventNetworkInterrupted: time left before hard disconnect

	Frame         frame.Frame // EventDesyncDetected
	LocalChecksum uint64      // EventDesyncDetected
	RemoteChecksum uint64     // EventDesyncDetected
}
