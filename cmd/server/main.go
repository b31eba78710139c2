package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/api"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/auth"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/config"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/store"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/ws"
)

// sweepInterval is how often stale pending purchase attempts are
// transitioned to expired. Correctness does not depend on it; verification
// filters by expiry at read time.
const sweepInterval = time.Minute

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run migrations
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")
	}

	// Pick the durable store: PostgreSQL in production, SQLite as the
	// development fallback.
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pg
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = lite
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer db.Close()

	// Token verification. The dev verifier signs tokens with a shared
	// secret; production deployments plug in their identity provider.
	verifier := auth.NewDevVerifier(cfg.DevAuthSecret)

	// Websocket hub, optionally bridged over Redis for multi-instance
	// fan-out.
	hub := ws.NewHub(verifier, cfg.AllowedOrigins, logger)
	var notify ws.Notifier = hub

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid redis URL")
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer rdb.Close()

		bridge := ws.NewRedisBridge(rdb, hub, logger)
		hub.SetNotifier(bridge)
		notify = bridge
		go bridge.Run(ctx)
		logger.Info().Msg("connected to Redis, event bridge active")
	}

	// Background sweep for stale purchase attempts.
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := db.ExpireStalePurchases(ctx, time.Now().UTC())
				if err != nil {
					logger.Warn().Err(err).Msg("purchase expiry sweep failed")
				} else if n > 0 {
					logger.Info().Int64("expired", n).Msg("expired stale purchase attempts")
				}
			}
		}
	}()

	// Create router
	router := api.NewRouter(logger, cfg, db, verifier, hub, notify, rdb)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting campus resale hub server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")
	cancel()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
