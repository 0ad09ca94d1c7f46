package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arnavm/leetbattle/internal/applog"
	"github.com/arnavm/leetbattle/internal/archive"
	"github.com/arnavm/leetbattle/internal/battle"
	appcfg "github.com/arnavm/leetbattle/internal/config"
	"github.com/arnavm/leetbattle/internal/gateway"
	"github.com/arnavm/leetbattle/internal/localstate"
	"github.com/arnavm/leetbattle/internal/problems"
	"github.com/arnavm/leetbattle/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := applog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping error: %v", err)
	}

	local, err := localstate.Open(cfg.StateDir)
	if err != nil {
		log.Fatalf("local state error: %v", err)
	}

	token := session.NewToken()
	store := battle.NewStore(rdb)
	syncer := battle.NewSynchronizer(store, token, clockwork.NewRealClock(),
		time.Duration(cfg.PublishDebounceMS)*time.Millisecond)
	mgr := battle.NewManager(syncer, local, clockwork.NewRealClock())

	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		if err := repo.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("archive schema error: %v", err)
		}
		mgr.AttachArchive(repo)
	}

	probs := problems.NewClient(cfg.ProblemAPIURL)
	gw := gateway.New(cfg.ListenAddr, mgr, probs, cfg.AllowedOrigins)

	if err := mgr.Subscribe(context.Background()); err != nil {
		log.Fatalf("subscribe error: %v", err)
	}

	tickCtx, tickCancel := context.WithCancel(context.Background())
	go mgr.RunDisplayTicker(tickCtx)

	go func() {
		applog.L().Info("gateway_listen", zap.String("addr", cfg.ListenAddr))
		if err := gw.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.L().Error("gateway_serve", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	applog.L().Info("shutdown")
	tickCancel()
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = gw.Shutdown(sctx)
	_ = mgr.Close()
	if repo != nil {
		_ = repo.Close()
	}
	_ = rdb.Close()
}
