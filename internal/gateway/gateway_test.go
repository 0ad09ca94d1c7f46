package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/arnavm/leetbattle/internal/battle"
	"github.com/arnavm/leetbattle/internal/localstate"
	"github.com/arnavm/leetbattle/internal/problems"
)

func newTestGateway(t *testing.T) (*Gateway, *battle.Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	local, err := localstate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("localstate: %v", err)
	}
	clock := clockwork.NewFakeClock()
	syncer := battle.NewSynchronizer(battle.NewStore(rdb), "sess-gw", clock, 50*time.Millisecond)
	mgr := battle.NewManager(syncer, local, clock)
	if err := mgr.Subscribe(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })

	return New(":0", mgr, problems.NewClient(""), []string{"*"}), mgr
}

func TestHealthz(t *testing.T) {
	g, _ := newTestGateway(t)
	srv := httptest.NewServer(g.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}

func TestExportWithoutRoom(t *testing.T) {
	g, _ := newTestGateway(t)
	srv := httptest.NewServer(g.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/export")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("export without room status = %d, want 404", resp.StatusCode)
	}
}

func TestExportImportRoundtrip(t *testing.T) {
	g, mgr := newTestGateway(t)
	srv := httptest.NewServer(g.server.Handler)
	defer srv.Close()

	if _, err := mgr.CreateRoom(context.Background(), "Alice", "Friday Night"); err != nil {
		t.Fatalf("create room: %v", err)
	}

	resp, err := http.Get(srv.URL + "/export")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d: %s", resp.StatusCode, body)
	}

	resp, err = http.Post(srv.URL+"/export", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("import status = %d, want 204", resp.StatusCode)
	}
}
