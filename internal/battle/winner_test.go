package battle

import "testing"

func finishedPlayers() ([]Player, map[string]TimerState) {
	players := []Player{
		{ID: "p1", Name: "Alice"},
		{ID: "p2", Name: "Bob"},
		{ID: "p3", Name: "Cara"},
	}
	states := map[string]TimerState{
		"p1": FinishedTimer(0, 12000),
		"p2": FinishedTimer(1000, 9000),
		"p3": FinishedTimer(500, 10500),
	}
	return players, states
}

func TestResolveWinnerPicksMinimumFinalTime(t *testing.T) {
	players, states := finishedPlayers()
	w, ok := ResolveWinner(players, states)
	if !ok {
		t.Fatalf("expected a decided round")
	}
	if w.ID != "p2" {
		t.Fatalf("expected p2 (8000ms) to win, got %s", w.ID)
	}
	for _, p := range players {
		final, _ := states[p.ID].FinalTime()
		won, _ := states[w.ID].FinalTime()
		if won > final {
			t.Fatalf("winner time %d exceeds %s's %d", won, p.ID, final)
		}
	}
}

func TestResolveWinnerTieBreakFirstInOrder(t *testing.T) {
	players := []Player{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}
	states := map[string]TimerState{
		"a": FinishedTimer(0, 5000),
		"b": FinishedTimer(100, 5100),
	}
	for i := 0; i < 50; i++ {
		w, ok := ResolveWinner(players, states)
		if !ok || w.ID != "a" {
			t.Fatalf("run %d: expected stable tie-break to a, got %q (ok=%v)", i, w.ID, ok)
		}
	}
}

func TestResolveWinnerWaitsForAllPlayers(t *testing.T) {
	players, states := finishedPlayers()
	states["p3"] = RunningTimer(500)
	if _, ok := ResolveWinner(players, states); ok {
		t.Fatalf("round must not be decided while a player is running")
	}
	delete(states, "p3")
	if _, ok := ResolveWinner(players, states); ok {
		t.Fatalf("round must not be decided while a player has no state")
	}
}

func TestResolveWinnerNeedsTwoPlayers(t *testing.T) {
	players := []Player{{ID: "solo", Name: "Solo"}}
	states := map[string]TimerState{"solo": FinishedTimer(0, 1000)}
	if _, ok := ResolveWinner(players, states); ok {
		t.Fatalf("single-player round must not resolve")
	}
}

func TestResolveWinnerRejectsZeroFinalTime(t *testing.T) {
	players := []Player{{ID: "a"}, {ID: "b"}}
	states := map[string]TimerState{
		"a": FinishedTimer(1000, 1000),
		"b": FinishedTimer(0, 2000),
	}
	if _, ok := ResolveWinner(players, states); ok {
		t.Fatalf("zero final time must not count as finished")
	}
}
