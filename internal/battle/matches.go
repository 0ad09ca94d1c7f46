package battle

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnavm/leetbattle/internal/applog"
)

// SaveMatch records the decided round as a match at the front of the
// room's history. It is a silent no-op while no round is decided.
// Empty arguments fall back to the problem recorded via SetProblem.
func (m *Manager) SaveMatch(ctx context.Context, problemName string, difficulty Difficulty) error {
	m.mu.Lock()
	if m.room == nil {
		m.mu.Unlock()
		return ErrNoRoom
	}
	if !m.showWinner || m.winner == nil {
		m.mu.Unlock()
		return nil
	}
	if strings.TrimSpace(problemName) == "" {
		problemName = m.problemName
	}
	if difficulty == "" {
		difficulty = m.difficulty
	}
	entries := make(map[string]MatchEntry, len(m.room.Players))
	for _, p := range m.room.Players {
		final, _ := m.states[p.ID].FinalTime()
		entries[p.ID] = MatchEntry{Name: p.Name, Time: final}
	}
	match := Match{
		ID:          uuid.NewString(),
		Timestamp:   m.clock.Now().UnixMilli(),
		ProblemName: problemName,
		Difficulty:  difficulty,
		Players:     entries,
		Winner:      m.winner.PlayerID,
		WinnerName:  m.winner.PlayerName,
	}
	m.room.Matches = append([]Match{match}, m.room.Matches...)
	room := m.room.Clone()
	m.mu.Unlock()

	applog.L().Info("match_save",
		zap.String("match_id", match.ID),
		zap.String("problem", problemName),
		zap.String("winner_id", match.Winner),
	)
	if m.archive != nil {
		if err := m.archive.SaveMatch(ctx, room.ID, &match); err != nil {
			applog.L().Warn("match_archive", zap.String("match_id", match.ID), zap.Error(err))
		}
	}
	err := m.publish(ctx, &RecordPatch{Room: room})
	m.notify()
	return err
}

// LatestMatches returns up to n of the most recent matches. The full
// list stays in the room; truncation is a display concern.
func (m *Manager) LatestMatches(n int) []Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.room == nil || n <= 0 {
		return nil
	}
	if n > len(m.room.Matches) {
		n = len(m.room.Matches)
	}
	return append([]Match(nil), m.room.Matches[:n]...)
}
