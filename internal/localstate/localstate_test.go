package localstate

import "testing"

func TestSetGetRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.Get(KeyCurrentPlayerID); got != "" {
		t.Fatalf("fresh store must be empty, got %q", got)
	}
	if err := s.Set(KeyCurrentPlayerID, "p-42"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := s.Get(KeyCurrentPlayerID); got != "p-42" {
		t.Fatalf("Get after Set: %q", got)
	}
	if err := s.Remove(KeyCurrentPlayerID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := s.Get(KeyCurrentPlayerID); got != "" {
		t.Fatalf("Get after Remove: %q", got)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set(KeyCurrentPlayerID, "p-7"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(KeyCurrentRoomID, "ABC123"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Get(KeyCurrentPlayerID); got != "p-7" {
		t.Fatalf("player id lost across reopen: %q", got)
	}
	if got := reopened.Get(KeyCurrentRoomID); got != "ABC123" {
		t.Fatalf("room id lost across reopen: %q", got)
	}
}
