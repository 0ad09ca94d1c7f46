package battle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/arnavm/leetbattle/internal/applog"
	"github.com/arnavm/leetbattle/internal/localstate"
)

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLen      = 6

	displayTickInterval = 100 * time.Millisecond
	redeemMessageTTL    = 3 * time.Second
)

// WinnerRef identifies a decided round's winner.
type WinnerRef struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// Snapshot is the full view-model state handed to listeners after
// every change. All contained data is copied; listeners may keep it.
type Snapshot struct {
	Room            *Room                 `json:"room"`
	States          map[string]TimerState `json:"playerStates"`
	Elapsed         map[string]int64      `json:"elapsed"`
	Winner          *WinnerRef            `json:"winner,omitempty"`
	ShowWinner      bool                  `json:"showWinner"`
	ProblemName     string                `json:"problemName,omitempty"`
	Difficulty      Difficulty            `json:"difficulty,omitempty"`
	RedeemMessage   string                `json:"redeemMessage,omitempty"`
	CurrentPlayerID string                `json:"currentPlayerId,omitempty"`
	Loading         bool                  `json:"loading"`
	ErrorMessage    string                `json:"error,omitempty"`
}

// MatchArchiver persists saved matches outside the live store.
// Archive failures are logged, never surfaced to the round.
type MatchArchiver interface {
	SaveMatch(ctx context.Context, roomID string, m *Match) error
}

// Manager is the view-model for one arena: it owns the local mirror of
// the room aggregate, applies user actions, re-evaluates the winner on
// every change and pushes mutations back through the synchronizer.
type Manager struct {
	syncer  *Synchronizer
	local   *localstate.Store
	clock   clockwork.Clock
	archive MatchArchiver

	mu              sync.Mutex
	room            *Room
	states          map[string]TimerState
	elapsed         map[string]int64
	currentPlayerID string
	winner          *WinnerRef
	showWinner      bool
	problemName     string
	difficulty      Difficulty
	redeemMessage   string
	redeemExpiry    time.Time
	errorMessage    string

	listeners []func(Snapshot)
}

func NewManager(syncer *Synchronizer, local *localstate.Store, clock clockwork.Clock) *Manager {
	m := &Manager{
		syncer:  syncer,
		local:   local,
		clock:   clock,
		states:  map[string]TimerState{},
		elapsed: map[string]int64{},
	}
	syncer.OnRecord(m.handleRecord)
	syncer.OnError(m.handleError)
	return m
}

// AttachArchive wires an optional match archive.
func (m *Manager) AttachArchive(a MatchArchiver) { m.archive = a }

// AddListener registers a snapshot consumer. Listeners are invoked
// after every observable change, outside the manager lock.
func (m *Manager) AddListener(fn func(Snapshot)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Subscribe starts the remote subscription feeding this manager.
func (m *Manager) Subscribe(ctx context.Context) error { return m.syncer.Subscribe(ctx) }

// Close tears down the remote subscription.
func (m *Manager) Close() error { return m.syncer.Close() }

// handleRecord merges one remote snapshot into the local mirror.
func (m *Manager) handleRecord(rec *GameRecord) {
	m.mu.Lock()
	var decided *Room
	if rec.Room != nil {
		m.room = rec.Room
		if rec.Room.IsRoundReset {
			m.clearRoundLocked()
		}
		if rec.Room.PlayerStates != nil {
			m.states = cloneStates(rec.Room.PlayerStates)
			now := m.clock.Now().UnixMilli()
			m.elapsed = map[string]int64{}
			for id, st := range m.states {
				if start, ok := st.StartTime(); ok && st.IsRunning() {
					m.elapsed[id] = now - start
				} else {
					m.elapsed[id] = 0
				}
			}
		}
		if m.currentPlayerID == "" && m.local != nil {
			if id := m.local.Get(localstate.KeyCurrentPlayerID); id != "" && rec.Room.PlayerByID(id) >= 0 {
				m.currentPlayerID = id
			}
		}
		decided = m.evaluateWinnerLocked().Clone()
	}
	m.mu.Unlock()

	if decided != nil {
		_ = m.publish(context.Background(), &RecordPatch{Room: decided})
	}
	m.notify()
}

func (m *Manager) handleError(err SyncError) {
	m.mu.Lock()
	m.errorMessage = err.Error()
	m.mu.Unlock()
	m.notify()
}

// CreateRoom starts a fresh room with the caller as creator and makes
// them the active player.
func (m *Manager) CreateRoom(ctx context.Context, playerName, roomName string) (*Room, error) {
	playerName = strings.TrimSpace(playerName)
	roomName = strings.TrimSpace(roomName)
	if playerName == "" {
		return nil, ErrInvalidArgs
	}
	code, err := gonanoid.Generate(roomCodeAlphabet, roomCodeLen)
	if err != nil {
		return nil, err
	}
	player := Player{ID: uuid.NewString(), Name: playerName}
	room := &Room{
		ID:          code,
		Name:        roomName,
		Players:     []Player{player},
		Rewards:     DefaultRewards(),
		CreatedAt:   m.clock.Now().UnixMilli(),
		GameCreator: m.syncer.SessionToken(),
		GameStatus:  StatusWaiting,
	}

	m.mu.Lock()
	m.room = room
	m.clearRoundLocked()
	m.currentPlayerID = player.ID
	out := room.Clone()
	m.mu.Unlock()

	m.rememberPlayer(player.ID, code)
	applog.L().Info("room_create", zap.String("room_id", code), zap.String("player_id", player.ID))
	if err := m.publish(ctx, &RecordPatch{Room: out}); err != nil {
		return nil, err
	}
	m.notify()
	return out, nil
}

// JoinRoom adds a player to the room named by code. A code with no
// matching room, locally or remotely, creates a brand-new room under
// that code.
func (m *Manager) JoinRoom(ctx context.Context, playerName, code string) (*Room, error) {
	playerName = strings.TrimSpace(playerName)
	code = strings.ToUpper(strings.TrimSpace(code))
	if playerName == "" || code == "" {
		return nil, ErrInvalidArgs
	}
	player := Player{ID: uuid.NewString(), Name: playerName}

	m.mu.Lock()
	haveLocal := m.room != nil && m.room.ID == code
	m.mu.Unlock()

	var joined *Room
	if !haveLocal {
		rec, err := m.syncer.ReadOnce(ctx)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.Room != nil && rec.Room.ID == code {
			joined = rec.Room
		} else {
			joined = &Room{
				ID:          code,
				Rewards:     DefaultRewards(),
				CreatedAt:   m.clock.Now().UnixMilli(),
				GameCreator: m.syncer.SessionToken(),
				GameStatus:  StatusWaiting,
			}
		}
	}

	m.mu.Lock()
	if joined != nil && !(m.room != nil && m.room.ID == code) {
		m.room = joined
	}
	m.room.Players = append(m.room.Players, player)
	m.currentPlayerID = player.ID
	out := m.room.Clone()
	m.mu.Unlock()

	m.rememberPlayer(player.ID, code)
	applog.L().Info("room_join", zap.String("room_id", code), zap.String("player_id", player.ID))
	if err := m.publish(ctx, &RecordPatch{Room: out}); err != nil {
		return nil, err
	}
	m.notify()
	return out, nil
}

// StartTimer begins playerID's round timer. Starting a timer that is
// already running or finished is a silent no-op.
func (m *Manager) StartTimer(ctx context.Context, playerID string) error {
	m.mu.Lock()
	if m.room == nil {
		m.mu.Unlock()
		return ErrNoRoom
	}
	if m.room.PlayerByID(playerID) < 0 {
		m.mu.Unlock()
		return ErrUnknownPlayer
	}
	if st := m.states[playerID]; !st.IsIdle() {
		m.mu.Unlock()
		return nil
	}
	st := RunningTimer(m.clock.Now().UnixMilli())
	m.states[playerID] = st
	m.elapsed[playerID] = 0
	m.room.IsRoundReset = false
	m.room.GameStatus = StatusActive
	m.setRoomStateLocked(playerID, st)
	m.mu.Unlock()

	applog.L().Info("timer_start", zap.String("player_id", playerID))
	reset := false
	err := m.publish(ctx, &RecordPatch{
		PlayerStates: map[string]TimerState{playerID: st},
		IsRoundReset: &reset,
	})
	m.notify()
	return err
}

// StopTimer finishes playerID's round timer with
// finalTime = endTime - startTime. Stopping a timer that is not
// running is a silent no-op.
func (m *Manager) StopTimer(ctx context.Context, playerID string) error {
	m.mu.Lock()
	if m.room == nil {
		m.mu.Unlock()
		return ErrNoRoom
	}
	st := m.states[playerID]
	start, ok := st.StartTime()
	if !ok || !st.IsRunning() {
		m.mu.Unlock()
		return nil
	}
	end := m.clock.Now().UnixMilli()
	done := FinishedTimer(start, end)
	m.states[playerID] = done
	m.elapsed[playerID] = end - start
	m.setRoomStateLocked(playerID, done)
	decided := m.evaluateWinnerLocked().Clone()
	m.mu.Unlock()

	applog.L().Info("timer_stop", zap.String("player_id", playerID), zap.Int64("final_ms", end-start))
	var err error
	if decided != nil {
		// One write carries both the final timer state and the
		// decision; a second publish would land inside the debounce
		// window and be dropped.
		err = m.publish(ctx, &RecordPatch{Room: decided})
	} else {
		err = m.publish(ctx, &RecordPatch{PlayerStates: map[string]TimerState{playerID: done}})
	}
	m.notify()
	return err
}

// ResetRound clears every player's timer state and all ephemeral round
// state, then force-publishes the whole room so no peer can miss it.
func (m *Manager) ResetRound(ctx context.Context) error {
	m.mu.Lock()
	if m.room == nil {
		m.mu.Unlock()
		return ErrNoRoom
	}
	m.clearRoundLocked()
	m.room.PlayerStates = map[string]TimerState{}
	m.room.IsRoundReset = true
	m.room.GameStatus = StatusWaiting
	room := m.room.Clone()
	m.mu.Unlock()

	applog.L().Info("round_reset", zap.String("room_id", room.ID))
	err := m.syncer.ForcePublish(ctx, room)
	m.notify()
	return err
}

// ResetAllData is ResetRound plus zeroed points and cleared redemption
// history.
func (m *Manager) ResetAllData(ctx context.Context) error {
	m.mu.Lock()
	if m.room == nil {
		m.mu.Unlock()
		return ErrNoRoom
	}
	m.clearRoundLocked()
	for i := range m.room.Players {
		m.room.Players[i].Points = 0
	}
	m.room.BoughtRewards = nil
	m.room.PlayerStates = map[string]TimerState{}
	m.room.IsRoundReset = true
	m.room.GameStatus = StatusWaiting
	room := m.room.Clone()
	m.mu.Unlock()

	applog.L().Info("data_reset", zap.String("room_id", room.ID))
	err := m.syncer.ForcePublish(ctx, room)
	m.notify()
	return err
}

// SetProblem records the round's problem locally. It is ephemeral
// round state, cleared by the next reset.
func (m *Manager) SetProblem(name string, diff Difficulty) {
	m.mu.Lock()
	m.problemName = strings.TrimSpace(name)
	m.difficulty = diff
	m.mu.Unlock()
	m.notify()
}

// CurrentPlayerID reports which player this process acts as.
func (m *Manager) CurrentPlayerID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentPlayerID
}

// Snapshot returns a copy of the current view-model state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// RunDisplayTicker recomputes the displayed elapsed time of running
// players on a sub-second cadence until ctx is cancelled. Display
// only; canonical state is never touched.
func (m *Manager) RunDisplayTicker(ctx context.Context) {
	t := m.clock.NewTicker(displayTickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			if m.tickDisplay() {
				m.notify()
			}
		}
	}
}

func (m *Manager) tickDisplay() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now().UnixMilli()
	changed := false
	for id, st := range m.states {
		if start, ok := st.StartTime(); ok && st.IsRunning() {
			m.elapsed[id] = now - start
			changed = true
		}
	}
	return changed
}

// publish forwards to the synchronizer, treating a debounce drop as a
// non-error: the caller's state is re-derived and resent on the next
// user action.
func (m *Manager) publish(ctx context.Context, patch *RecordPatch) error {
	err := m.syncer.Publish(ctx, patch)
	if err == ErrPublishThrottled {
		return nil
	}
	return err
}

// evaluateWinnerLocked runs the resolver and applies its side effects.
// The winner and show-winner flags are local view state; the point
// award and finished status go into the room exactly once, guarded by
// the replicated gameStatus so two clients observing the same finish
// don't both award a point. Returns the room when this client made the
// decision and must publish it.
func (m *Manager) evaluateWinnerLocked() *Room {
	if m.room == nil || m.showWinner || len(m.room.Players) < 2 {
		return nil
	}
	p, ok := ResolveWinner(m.room.Players, m.states)
	if !ok {
		return nil
	}
	m.winner = &WinnerRef{PlayerID: p.ID, PlayerName: p.Name}
	m.showWinner = true
	if m.room.GameStatus == StatusFinished {
		return nil
	}
	idx := m.room.PlayerByID(p.ID)
	m.room.Players[idx].Points++
	m.room.GameStatus = StatusFinished
	m.room.PlayerStates = cloneStates(m.states)
	applog.L().Info("winner_decided",
		zap.String("room_id", m.room.ID),
		zap.String("player_id", p.ID),
		zap.String("player_name", p.Name),
	)
	return m.room
}

func (m *Manager) clearRoundLocked() {
	m.states = map[string]TimerState{}
	m.elapsed = map[string]int64{}
	m.winner = nil
	m.showWinner = false
	m.problemName = ""
	m.difficulty = ""
	m.redeemMessage = ""
	m.redeemExpiry = time.Time{}
}

func (m *Manager) setRoomStateLocked(playerID string, st TimerState) {
	if m.room.PlayerStates == nil {
		m.room.PlayerStates = map[string]TimerState{}
	}
	m.room.PlayerStates[playerID] = st
}

func (m *Manager) rememberPlayer(playerID, roomID string) {
	if m.local == nil {
		return
	}
	if err := m.local.Set(localstate.KeyCurrentPlayerID, playerID); err != nil {
		applog.L().Warn("localstate_write", zap.Error(err))
	}
	_ = m.local.Set(localstate.KeyCurrentRoomID, roomID)
}

func (m *Manager) snapshotLocked() Snapshot {
	room := m.room.Clone()
	var win *WinnerRef
	if m.winner != nil {
		w := *m.winner
		win = &w
	}
	// The redeem message expires by clock comparison, not by waiting
	// for the cleanup timer to have fired.
	redeemMsg := m.redeemMessage
	if redeemMsg != "" && !m.clock.Now().Before(m.redeemExpiry) {
		redeemMsg = ""
	}
	return Snapshot{
		Room:            room,
		States:          cloneStates(m.states),
		Elapsed:         cloneElapsed(m.elapsed),
		Winner:          win,
		ShowWinner:      m.showWinner,
		ProblemName:     m.problemName,
		Difficulty:      m.difficulty,
		RedeemMessage:   redeemMsg,
		CurrentPlayerID: m.currentPlayerID,
		Loading:         m.syncer.Loading(),
		ErrorMessage:    m.errorMessage,
	}
}

func (m *Manager) notify() {
	m.mu.Lock()
	snap := m.snapshotLocked()
	listeners := append([]func(Snapshot){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

func cloneStates(in map[string]TimerState) map[string]TimerState {
	if in == nil {
		return nil
	}
	out := make(map[string]TimerState, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneElapsed(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
