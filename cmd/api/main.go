package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mythsumon/job-sub002/internal/config"
	"github.com/mythsumon/job-sub002/internal/db"
	"github.com/mythsumon/job-sub002/internal/logger"
	appmw "github.com/mythsumon/job-sub002/internal/middleware"
	"github.com/mythsumon/job-sub002/internal/notify"
	"github.com/mythsumon/job-sub002/internal/server"
	"github.com/redis/go-redis/v9"
)

var (
	gitSHA    = "dev"
	buildTime = ""
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load")
	}
	logger.Init(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var auth *appmw.AuthMiddleware
	if cfg.FirebaseProjectID != "" {
		auth, err = appmw.NewAuthMiddleware(ctx, cfg.FirebaseProjectID)
		if err != nil {
			logger.Error().Err(err).Msg("firebase auth init; API will reject requests")
		}
	} else {
		logger.Warn().Msg("FIREBASE_PROJECT_ID not set; API will reject requests")
	}

	bus := eventBus(ctx, cfg)

	srv := server.New(server.Options{
		Bus:                 bus,
		Auth:                auth,
		AllowedOriginSuffix: cfg.AllowedOriginSuffix,
		MessageRatePerMin:   cfg.MessageRatePerMin,
		MessageBurst:        cfg.MessageBurst,
		SHA:                 gitSHA,
		BuildTime:           buildTime,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("starting server")
		errCh <- srv.Start(addr)
	}()

	// The listener comes up first so health checks pass while Cloud SQL warms up.
	go func() {
		conn, err := db.Connect(cfg)
		if err != nil {
			logger.Error().Err(err).Msg("db connect")
			return
		}
		if err := db.Migrate(conn); err != nil {
			logger.Error().Err(err).Msg("auto migrate")
		}
		srv.SetDB(conn)
		logger.Info().Msg("database ready")
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}
}

// eventBus uses Redis when configured so events reach every instance, and an
// in-process hub otherwise.
func eventBus(ctx context.Context, cfg *config.Config) notify.Bus {
	if cfg.RedisAddr == "" {
		return notify.NewHub()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	bus := notify.NewRedisBus(rdb)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := bus.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; using in-process events")
		_ = rdb.Close()
		return notify.NewHub()
	}
	return bus
}
