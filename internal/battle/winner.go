package battle

// ResolveWinner decides a round from the per-player timer states.
// The round is decided only when every player in the room has a
// positive final time and at least two players are present. Ties on
// the minimum final time go to the player appearing first in the
// room's player order, which keeps repeated evaluations stable.
func ResolveWinner(players []Player, states map[string]TimerState) (Player, bool) {
	if len(players) < 2 {
		return Player{}, false
	}
	var (
		best     Player
		bestTime int64
		haveBest bool
	)
	for _, p := range players {
		st, ok := states[p.ID]
		if !ok || st.IsRunning() {
			return Player{}, false
		}
		final, ok := st.FinalTime()
		if !ok || final <= 0 {
			return Player{}, false
		}
		if !haveBest || final < bestTime {
			best, bestTime, haveBest = p, final, true
		}
	}
	return best, true
}
