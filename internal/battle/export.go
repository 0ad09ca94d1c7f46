package battle

import (
	"context"
	"encoding/json"
	"time"
)

// ExportVersion is the literal tag checked before accepting an import.
const ExportVersion = "leetbattle-export-v1"

type exportEnvelope struct {
	Version    string `json:"version"`
	ExportedAt int64  `json:"exportedAt"`
	Room       *Room  `json:"room"`
}

// ExportRoom serializes a room for manual backup.
func ExportRoom(room *Room) ([]byte, error) {
	if room == nil {
		return nil, ErrNoRoom
	}
	return json.MarshalIndent(exportEnvelope{
		Version:    ExportVersion,
		ExportedAt: time.Now().UnixMilli(),
		Room:       room,
	}, "", "  ")
}

// ImportRoom parses an exported room, rejecting any other version tag.
func ImportRoom(data []byte) (*Room, error) {
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Version != ExportVersion {
		return nil, ErrBadExportVersion
	}
	if env.Room == nil {
		return nil, ErrNoRoom
	}
	return env.Room, nil
}

// Export returns the current room as a backup document.
func (m *Manager) Export() ([]byte, error) {
	m.mu.Lock()
	room := m.room.Clone()
	m.mu.Unlock()
	return ExportRoom(room)
}

// Import replaces the current room with an exported one and
// force-publishes it: an import establishes a new canonical state the
// same way a reset does.
func (m *Manager) Import(ctx context.Context, data []byte) error {
	room, err := ImportRoom(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.room = room
	m.clearRoundLocked()
	if room.PlayerStates != nil {
		m.states = cloneStates(room.PlayerStates)
	}
	out := room.Clone()
	m.mu.Unlock()

	err = m.syncer.ForcePublish(ctx, out)
	m.notify()
	return err
}
