package session

// validatePlayers enforces spec.md §4.6's builder invariants: 2-4
// simulation players (Local or Remote), at least one Local, every Remote
// address distinct, and — because this implementation lets spectators
// ride the same player list — any PlayerType outside {Local, Remote} must
// come after every simulation player so handles stay contiguous 0..N-1 for
// the players that actually take part in the simulation.
func validatePlayers[A comparable](players []PlayerSpec[A]) (numSim int, err error) {
	seenAddr := make(map[A]bool, len(players))
	haveLocal := false
	sawNonSim := false
	for _, p := range players {
		switch p.Type {
		case PlayerLocal, PlayerRemote:
			if sawNonSim {
				return 0, ErrInvalidPlayerCount
			}
			numSim++
			if p.Type == PlayerLocal {
				haveLocal = true
			} else {
				if seenAddr[p.Addr] {
					return 0, ErrDuplicateAddress
				}
				seenAddr[p.Addr] = true
			}
		default:
			sawNonSim = true
		}
	}
	if numSim < 2 || numSim > 4 {
		return 0, ErrInvalidPlayerCount
	}
	if !haveLocal {
		return 0, ErrNoLocalPlayer
	}
	return numSim, nil
}
