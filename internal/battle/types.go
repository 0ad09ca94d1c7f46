package battle

import "encoding/json"

// GameStatus represents a room lifecycle state.
type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusActive   GameStatus = "active"
	StatusFinished GameStatus = "finished"
)

// Difficulty of a saved match's problem.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Player is a room participant. Points are mutated only by the winner
// resolver (+1) and the reward ledger (-cost).
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// Reward is a redeemable prize owned by the room. Any participant may
// create, edit or delete rewards.
type Reward struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Cost        int    `json:"cost"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

// BoughtReward records a completed redemption. Reward fields are copied
// at purchase time so later edits or deletion of the Reward do not
// corrupt history. Marking it used removes the record entirely.
type BoughtReward struct {
	ID                string `json:"id"`
	RewardID          string `json:"rewardId"`
	PlayerID          string `json:"playerId"`
	PlayerName        string `json:"playerName"`
	RewardName        string `json:"rewardName"`
	RewardIcon        string `json:"rewardIcon"`
	RewardDescription string `json:"rewardDescription"`
	BoughtAt          int64  `json:"boughtAt"`
	Used              bool   `json:"used"`
}

// MatchEntry is one player's result inside a saved match.
type MatchEntry struct {
	Name string `json:"name"`
	Time int64  `json:"time"`
}

// Match is a finished round saved to the room's history. Newest first.
type Match struct {
	ID          string                `json:"id"`
	Timestamp   int64                 `json:"timestamp"`
	ProblemName string                `json:"problemName"`
	Difficulty  Difficulty            `json:"difficulty"`
	Players     map[string]MatchEntry `json:"players"`
	Winner      string                `json:"winner"`
	WinnerName  string                `json:"winnerName"`
}

// Room is the single aggregate replicated through the remote store. All
// mutations read the whole room, change it, and write it (or a named
// sub-path) back; the store arbitrates by last write wins.
type Room struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	Players       []Player              `json:"players"`
	Rewards       []Reward              `json:"rewards"`
	Matches       []Match               `json:"matches"`
	PlayerStates  map[string]TimerState `json:"playerStates,omitempty"`
	IsRoundReset  bool                  `json:"isRoundReset"`
	CreatedAt     int64                 `json:"createdAt"`
	GameCreator   string                `json:"gameCreator"`
	GameStatus    GameStatus            `json:"gameStatus"`
	BoughtRewards []BoughtReward        `json:"boughtRewards,omitempty"`
}

// Clone deep-copies the room. Mutators hand clones to the store so a
// marshal in flight never reads a room another action is mutating.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Players = append([]Player(nil), r.Players...)
	cp.Rewards = append([]Reward(nil), r.Rewards...)
	cp.BoughtRewards = append([]BoughtReward(nil), r.BoughtRewards...)
	if r.Matches != nil {
		cp.Matches = make([]Match, len(r.Matches))
		for i, m := range r.Matches {
			cp.Matches[i] = m
			if m.Players != nil {
				entries := make(map[string]MatchEntry, len(m.Players))
				for id, e := range m.Players {
					entries[id] = e
				}
				cp.Matches[i].Players = entries
			}
		}
	}
	if r.PlayerStates != nil {
		cp.PlayerStates = make(map[string]TimerState, len(r.PlayerStates))
		for id, st := range r.PlayerStates {
			cp.PlayerStates[id] = st
		}
	}
	return &cp
}

// PlayerByID returns the index of the player in the room, or -1.
func (r *Room) PlayerByID(id string) int {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return i
		}
	}
	return -1
}

// GameRecord is the root record held by the remote store. SessionID is
// the token of the browser/process session that last wrote it; a
// mismatch against the local token marks the data as carried over from
// a previous session.
type GameRecord struct {
	Room       *Room  `json:"room"`
	SessionID  string `json:"sessionId"`
	LastUpdate int64  `json:"lastUpdate,omitempty"`
	LastReset  int64  `json:"lastReset,omitempty"`
}

type timerPhase int

const (
	phaseIdle timerPhase = iota
	phaseRunning
	phaseFinished
)

// TimerState is a tagged variant over one player's round timer:
// Idle, Running{startTime} or Finished{startTime,endTime,finalTime}.
// The zero value is Idle. Invalid combinations such as "running with a
// final time" are not representable.
type TimerState struct {
	phase     timerPhase
	startTime int64
	endTime   int64
}

func IdleTimer() TimerState { return TimerState{} }

func RunningTimer(startMs int64) TimerState {
	return TimerState{phase: phaseRunning, startTime: startMs}
}

func FinishedTimer(startMs, endMs int64) TimerState {
	return TimerState{phase: phaseFinished, startTime: startMs, endTime: endMs}
}

func (t TimerState) IsIdle() bool    { return t.phase == phaseIdle }
func (t TimerState) IsRunning() bool { return t.phase == phaseRunning }

// StartTime reports the start timestamp for Running and Finished states.
func (t TimerState) StartTime() (int64, bool) {
	if t.phase == phaseIdle {
		return 0, false
	}
	return t.startTime, true
}

// FinalTime reports endTime - startTime for Finished states.
func (t TimerState) FinalTime() (int64, bool) {
	if t.phase != phaseFinished {
		return 0, false
	}
	return t.endTime - t.startTime, true
}

// timerWire is the replicated JSON shape, kept compatible with the
// original flat boolean form.
type timerWire struct {
	IsRunning bool   `json:"isRunning"`
	StartTime *int64 `json:"startTime"`
	EndTime   *int64 `json:"endTime"`
	FinalTime *int64 `json:"finalTime"`
}

func (t TimerState) MarshalJSON() ([]byte, error) {
	w := timerWire{}
	switch t.phase {
	case phaseRunning:
		w.IsRunning = true
		w.StartTime = ptr(t.startTime)
	case phaseFinished:
		final := t.endTime - t.startTime
		w.StartTime = ptr(t.startTime)
		w.EndTime = ptr(t.endTime)
		w.FinalTime = ptr(final)
	}
	return json.Marshal(w)
}

func (t *TimerState) UnmarshalJSON(raw []byte) error {
	var w timerWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return err
	}
	switch {
	case w.FinalTime != nil && w.StartTime != nil && w.EndTime != nil:
		*t = FinishedTimer(*w.StartTime, *w.EndTime)
	case w.IsRunning && w.StartTime != nil:
		*t = RunningTimer(*w.StartTime)
	default:
		*t = IdleTimer()
	}
	return nil
}

func ptr(v int64) *int64 { return &v }
