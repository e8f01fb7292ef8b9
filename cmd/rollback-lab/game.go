package main

import "encoding/binary"

// Input is the demo game's per-tick payload: a directional bitmask plus an
// action button, fixed at 2 bytes so it satisfies wire.Input (spec.md §3
// InputBytes invariant).
type Input uint16

const (
	InputUp Input = 1 << iota
	InputDown
	InputLeft
	InputRight
	InputAction
)

func (i Input) Bytes() []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(i))
	return b
}

func decodeInput(b []byte) Input {
	return Input(binary.LittleEndian.Uint16(b))
}

// PlayerState is one player's position in the demo's toy arena.
type PlayerState struct {
	X, Y int32
}

// GameState is the full deterministic simulation state the host saves and
// loads on every rollback request.
type GameState struct {
	Frame   int32
	Players []PlayerState
}

func newGameState(numPlayers int) GameState {
	return GameState{Players: make([]PlayerState, numPlayers)}
}

// clone deep-copies g so a saved snapshot cannot be mutated by later
// simulation steps (spec.md §9 ownership note).
func (g GameState) clone() GameState {
	players := make([]PlayerState, len(g.Players))
	copy(players, g.Players)
	return GameState{Frame: g.Frame, Players: players}
}

// serialize produces the byte form the engine hashes for desync detection.
func (g GameState) serialize() []byte {
	b := make([]byte, 4+8*len(g.Players))
	binary.LittleEndian.PutUint32(b, uint32(g.Frame))
	off := 4
	for _, p := range g.Players {
		binary.LittleEndian.PutUint32(b[off:], uint32(p.X))
		binary.LittleEndian.PutUint32(b[off+4:], uint32(p.Y))
		off += 8
	}
	return b
}

// advance applies one frame's worth of per-player input, step size fixed so
// the simulation is exactly reproducible from the same input history.
func advance(state GameState, inputs []Input) GameState {
	next := state.clone()
	next.Frame++
	for i, in := range inputs {
		if i >= len(next.Players) {
			break
		}
		p := &next.Players[i]
		if in&InputUp != 0 {
			p.Y--
		}
		if in&InputDown != 0 {
			p.Y++
		}
		if in&InputLeft != 0 {
			p.X--
		}
		if in&InputRight != 0 {
			p.X++
		}
	}
	return next
}

// localInputFor derives a deterministic pseudo-input for a headless demo
// run with no real controller attached, so the CLI produces visible motion
// without requiring a terminal UI.
func localInputFor(frameNum int32) Input {
	switch frameNum % 4 {
	case 0:
		return InputRight
	case 1:
		return InputRight | InputUp
	case 2:
		return InputDown
	default:
		return InputLeft
	}
}
