package localstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Well-known keys.
const (
	KeyCurrentPlayerID = "current-player-id"
	KeyCurrentRoomID   = "current-room-id"
)

// Store is a small string key-value store persisted as one JSON file,
// used to re-associate a restarted process with its previous player
// identity within a room.
type Store struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{path: filepath.Join(dir, "state.json"), data: map[string]string{}}
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		// Corrupt state file is not fatal; start fresh.
		s.data = map[string]string{}
	}
	return s, nil
}

func (s *Store) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key]
}

func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.flush()
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return s.flush()
}

func (s *Store) flush() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}
