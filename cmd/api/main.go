package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/splax/skillsync/internal/app/migrate"
	"github.com/splax/skillsync/internal/blob"
	httpx "github.com/splax/skillsync/internal/http"
	"github.com/splax/skillsync/internal/repository"
	"github.com/splax/skillsync/internal/repository/memory"
	"github.com/splax/skillsync/internal/repository/postgres"
	"github.com/splax/skillsync/internal/repository/sqlite"
	"github.com/splax/skillsync/internal/service/appreciation"
	"github.com/splax/skillsync/internal/service/chat"
	"github.com/splax/skillsync/internal/service/files"
	"github.com/splax/skillsync/internal/service/review"
	"github.com/splax/skillsync/internal/service/session"
	"github.com/splax/skillsync/internal/service/team"
	"github.com/splax/skillsync/internal/service/workflow"
	"github.com/splax/skillsync/internal/teamlock"
	"github.com/splax/skillsync/internal/ws"
	"github.com/splax/skillsync/pkg/config"
	"github.com/splax/skillsync/pkg/logger"
)

const relayChannel = "skillsync:events"

func main() {
	envFile := flag.String("env", config.DefaultEnvFile, "dotenv file to read before the environment")
	flag.Parse()

	cfg, err := config.LoadAPIConfig(*envFile)
	if err != nil {
		logger.New("api", slog.LevelInfo).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New("api", cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	blobs, err := blob.NewDisk(cfg.BlobDir)
	if err != nil {
		log.Error("failed to prepare blob directory", "dir", cfg.BlobDir, "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub()
	defer hub.Close()

	var (
		teamLocker teamlock.Locker = teamlock.NewLocal()
		chatLocker teamlock.Locker = teamlock.NewLocal()
		publisher  ws.Publisher    = hub
		limiter                    = httpx.NewMemoryRateLimiter()
		relay      *ws.RedisRelay
	)
	if cfg.UsesRedis() {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Error("redis unavailable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		teamLocker = teamlock.NewRedis(client, "skillsync:lock:team:", cfg.TeamLockTTL, log)
		chatLocker = teamlock.NewRedis(client, "skillsync:lock:chat:", cfg.TeamLockTTL, log)
		relay = ws.NewRedisRelay(client, relayChannel, hub, log)
		publisher = relay
		limiter.Close()
		limiter = httpx.NewRedisRateLimiter(client, log)
		log.Info("redis coordination enabled", "addr", cfg.RedisAddr)
	}

	workflowSvc := workflow.New(store, teamLocker, workflow.Config{ResubmissionLimit: cfg.ResubmissionLimit}, log)
	services := httpx.Services{
		Team:     team.New(store, teamLocker, team.Config{MentorTeamLimit: cfg.MentorTeamLimit}, log),
		Files:    files.New(store, blobs, teamLocker, files.Config{MaxUploadBytes: cfg.MaxUploadBytes}, log),
		Workflow: workflowSvc,
		Chat: chat.New(store, chatLocker, hub, publisher, chat.Config{
			MaxMessageRunes: cfg.ChatMaxMessageRunes,
			HistoryLimit:    cfg.ChatHistoryLimit,
		}, log),
		Review:       review.New(store, teamLocker, workflowSvc, log),
		Appreciation: appreciation.New(store, publisher, log),
		Sessions:     session.New(store, log),
		Hub:          hub,
	}

	router := httpx.NewRouter(log, httpx.JWTAuthorizer{Secret: cfg.JWTSecret}, services, httpx.Options{
		Limiter:  limiter,
		DBHealth: store.Ping,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		log.Info("api server starting", "addr", cfg.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("api server stopped")
}

func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		runner, err := migrate.New(migrate.DriverPostgres, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			return nil, err
		}
		if err := runner.Ensure(ctx); err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return postgres.New(pool), nil
	case config.StoreSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath, log)
	default:
		log.Warn("using in-memory store; state is lost on restart")
		return memory.New(), nil
	}
}
