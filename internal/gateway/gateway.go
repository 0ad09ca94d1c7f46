package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/arnavm/leetbattle/internal/applog"
	"github.com/arnavm/leetbattle/internal/battle"
	"github.com/arnavm/leetbattle/internal/problems"
)

// Gateway relays arena state to connected browsers and feeds their
// actions into the manager. It renders nothing; presentation is the
// client's concern.
type Gateway struct {
	mgr      *battle.Manager
	problems *problems.Client
	server   *http.Server
	origins  []string

	mu    sync.Mutex
	conns map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan battle.Snapshot
}

func New(addr string, mgr *battle.Manager, problemsClient *problems.Client, allowedOrigins []string) *Gateway {
	g := &Gateway{
		mgr:      mgr,
		problems: problemsClient,
		origins:  allowedOrigins,
		conns:    map[*client]struct{}{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/export", g.handleExport)

	handler := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(mux)

	g.server = &http.Server{Addr: addr, Handler: handler}

	mgr.AddListener(g.broadcast)
	return g
}

// ListenAndServe blocks serving the gateway.
func (g *Gateway) ListenAndServe() error { return g.server.ListenAndServe() }

// Shutdown stops the HTTP server and closes every live socket.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	for c := range g.conns {
		_ = c.conn.Close(websocket.StatusGoingAway, "shutdown")
	}
	g.conns = map[*client]struct{}{}
	g.mu.Unlock()
	return g.server.Shutdown(ctx)
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  g.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		applog.L().Warn("ws_accept", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan battle.Snapshot, 8)}

	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()
	applog.L().Info("ws_connect", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go g.writeLoop(ctx, c)

	// initial state so the client doesn't wait for the next change
	select {
	case c.send <- g.mgr.Snapshot():
	default:
	}

	g.readLoop(ctx, c)

	g.mu.Lock()
	delete(g.conns, c)
	g.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func (g *Gateway) readLoop(ctx context.Context, c *client) {
	for {
		var act Action
		if err := wsjson.Read(ctx, c.conn, &act); err != nil {
			return
		}
		g.dispatch(ctx, &act)
	}
}

func (g *Gateway) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, c.conn, Event{Type: "state", State: snap})
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// broadcast fans the latest snapshot out to every connection. Slow
// consumers drop intermediate frames; only the newest state matters.
func (g *Gateway) broadcast(snap battle.Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for c := range g.conns {
		select {
		case c.send <- snap:
		default:
			select {
			case <-c.send:
			default:
			}
			select {
			case c.send <- snap:
			default:
			}
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, act *Action) {
	var err error
	switch act.Type {
	case ActionCreateRoom:
		_, err = g.mgr.CreateRoom(ctx, act.PlayerName, act.RoomName)
	case ActionJoinRoom:
		_, err = g.mgr.JoinRoom(ctx, act.PlayerName, act.Code)
	case ActionStartTimer:
		err = g.mgr.StartTimer(ctx, act.PlayerID)
	case ActionStopTimer:
		err = g.mgr.StopTimer(ctx, act.PlayerID)
	case ActionResetRound:
		err = g.mgr.ResetRound(ctx)
	case ActionResetAllData:
		err = g.mgr.ResetAllData(ctx)
	case ActionAddReward:
		if act.Reward != nil {
			err = g.mgr.AddReward(ctx, *act.Reward)
		}
	case ActionUpdateReward:
		if act.Reward != nil {
			err = g.mgr.UpdateReward(ctx, *act.Reward)
		}
	case ActionDeleteReward:
		err = g.mgr.DeleteReward(ctx, act.RewardID)
	case ActionRedeemReward:
		err = g.mgr.RedeemReward(ctx, act.RewardID, act.PlayerID)
	case ActionMarkRewardUsed:
		err = g.mgr.MarkRewardUsed(ctx, act.BoughtRewardID)
	case ActionSaveMatch:
		err = g.mgr.SaveMatch(ctx, act.ProblemName, battle.Difficulty(act.Difficulty))
	case ActionPickProblem:
		var p *problems.Problem
		p, err = g.problems.Random(ctx)
		if err == nil {
			g.mgr.SetProblem(p.Title, p.Difficulty)
		}
	default:
		applog.L().Warn("ws_unknown_action", zap.String("type", act.Type))
		return
	}
	if err != nil {
		applog.L().Warn("action_failed", zap.String("type", act.Type), zap.Error(err))
	}
}

func (g *Gateway) handleExport(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		raw, err := g.mgr.Export()
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	case http.MethodPost:
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := g.mgr.Import(r.Context(), raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
