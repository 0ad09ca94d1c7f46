package battle

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/arnavm/leetbattle/internal/localstate"
)

// TestRoomReplicatesBetweenManagers drives two managers with distinct
// session tokens against one store and checks that a join on one side
// shows up on the other, without the session takeover oscillating
// between the two live sessions.
func TestRoomReplicatesBetweenManagers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	ctx := context.Background()

	newMgr := func(session string) (*Manager, *clockwork.FakeClock) {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		local, err := localstate.Open(t.TempDir())
		if err != nil {
			t.Fatalf("localstate.Open: %v", err)
		}
		clock := clockwork.NewFakeClock()
		syncer := NewSynchronizer(NewStore(rdb), session, clock, 50*time.Millisecond)
		mgr := NewManager(syncer, local, clock)
		if err := mgr.Subscribe(ctx); err != nil {
			t.Fatalf("Subscribe(%s): %v", session, err)
		}
		t.Cleanup(func() { _ = mgr.Close() })
		return mgr, clock
	}

	probe := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = probe.Close() }()
	probeStore := NewStore(probe)

	mgrA, clockA := newMgr("sess-a")
	mgrB, _ := newMgr("sess-b")

	// Both sides have performed their one-shot takeover once the
	// record has settled and neither is still loading.
	waitFor(t, "session takeovers to settle", func() bool {
		rec, err := probeStore.ReadOnce(ctx)
		if err != nil || rec == nil {
			return false
		}
		settled := rec.SessionID == "sess-a" || rec.SessionID == "sess-b"
		return settled && !mgrA.Snapshot().Loading && !mgrB.Snapshot().Loading
	})
	// Give any in-flight reconcile write time to land before racing a
	// room write against it.
	time.Sleep(100 * time.Millisecond)

	if _, err := mgrA.JoinRoom(ctx, "Alice", "ABC123"); err != nil {
		t.Fatalf("JoinRoom Alice: %v", err)
	}
	clockA.Advance(100 * time.Millisecond)
	if _, err := mgrA.JoinRoom(ctx, "Bob", "ABC123"); err != nil {
		t.Fatalf("JoinRoom Bob: %v", err)
	}

	waitFor(t, "room to replicate to the second manager", func() bool {
		snap := mgrB.Snapshot()
		return snap.Room != nil && snap.Room.ID == "ABC123" && len(snap.Room.Players) == 2
	})

	snap := mgrB.Snapshot()
	if snap.Room.Players[0].Name != "Alice" || snap.Room.Players[1].Name != "Bob" {
		t.Fatalf("replicated player order wrong: %+v", snap.Room.Players)
	}
	if snap.CurrentPlayerID != "" {
		t.Fatalf("second manager has no saved identity, got %q", snap.CurrentPlayerID)
	}
}
