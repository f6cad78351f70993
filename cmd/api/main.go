// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the auth HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool) and run migrations.
//  4. Select the refresh token backend (postgres, redis or memory).
//  5. Wire the session stack and HTTP handlers.
//  6. Start the expiry janitor and the HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/taibuivan/authsvc/internal/api"
	"github.com/taibuivan/authsvc/internal/auth"
	"github.com/taibuivan/authsvc/internal/platform/config"
	"github.com/taibuivan/authsvc/internal/platform/constants"
	"github.com/taibuivan/authsvc/internal/platform/middleware"
	"github.com/taibuivan/authsvc/internal/platform/migration"
	pgstore "github.com/taibuivan/authsvc/internal/platform/postgres"
	redisstore "github.com/taibuivan/authsvc/internal/platform/redis"
	"github.com/taibuivan/authsvc/internal/platform/sec"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	log.Info("service_initializing", slog.String("version", constants.AppVersion))

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("token_store", cfg.TokenStore),
	)

	if cfg.TokenStore == config.StoreMemory && !cfg.IsDevelopment() {
		log.Warn("memory_token_store_outside_development",
			slog.String("environment", cfg.Environment),
		)
	}

	// rootCtx lives until shutdown and owns every background goroutine.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Use a 30s deadline so misconfiguration is caught quickly rather than
	// hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(rootCtx, 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing_postgres_pool")
		pool.Close()
	}()

	db := pgstore.OpenDB(pool)
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("sql_db_close_failed", slog.Any("error", cerr))
		}
	}()

	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 4. Refresh Token Backend ──────────────────────────────────────────
	tokenRepository, rdb, err := newTokenRepository(startupCtx, cfg, db, log)
	must(log, err, "initialize refresh token store")
	if rdb != nil {
		defer func() {
			log.Info("closing_redis_client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis_close_failed", slog.Any("error", cerr))
			}
		}()
	}

	// ── 5. Session Stack ──────────────────────────────────────────────────
	previousSecrets := make(map[string][]byte, len(cfg.JWTPreviousSecrets))
	for kid, secret := range cfg.JWTPreviousSecrets {
		previousSecrets[kid] = []byte(secret)
	}

	tokenService, err := sec.NewTokenService(sec.TokenConfig{
		Secret:          []byte(cfg.JWTAccessSecret),
		KeyID:           cfg.JWTAccessKeyID,
		PreviousSecrets: previousSecrets,
		Issuer:          cfg.JWTIssuer,
		AccessTTL:       cfg.JWTAccessExpiration,
	})
	must(log, err, "initialize jwt service")

	hasher, err := sec.NewPasswordHasher(sec.Argon2Params{
		MemoryKB:    cfg.Argon2MemoryKB,
		Time:        cfg.Argon2Time,
		Parallelism: cfg.Argon2Parallelism,
	})
	must(log, err, "initialize password hasher")

	issuer, err := auth.NewIssuer(tokenService, cfg.JWTRefreshExpiration)
	must(log, err, "initialize token issuer")

	userRepository := auth.NewPostgresUserRepository(db)
	refreshStore := auth.NewRefreshStore(tokenRepository, nil, log)

	sessions, err := auth.NewSessionManager(userRepository, refreshStore, issuer, hasher, log)
	must(log, err, "initialize session manager")

	// ── 6. Health handlers (wired with real dependency checkers) ──────────
	health := api.HealthDependencies{
		CheckDatabase: func(ctx context.Context) error {
			return pgstore.Ping(ctx, pool)
		},
	}
	if rdb != nil {
		health.CheckCache = func(ctx context.Context) error {
			return redisstore.Ping(ctx, rdb)
		}
	}
	liveness, readiness := api.NewHealthHandlers(health, log)

	// ── 7. HTTP Server ────────────────────────────────────────────────────
	authHandler := auth.NewHandler(
		sessions,
		auth.NewPasswordStrategy(sessions),
		auth.NewBearerTokenStrategy(tokenService, userRepository),
		auth.CookieConfig{Secure: cfg.CookieSecure || cfg.IsProduction(), Domain: cfg.CookieDomain},
		middleware.NewRateLimiter(rootCtx, constants.AuthRateLimitRPS, constants.AuthRateLimitBurst),
	)

	proxies, err := middleware.ParseProxyTrust(cfg.TrustedProxies)
	must(log, err, "parse trusted proxies")

	server := api.NewServer(cfg, log, proxies, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
	})

	// ── 8. Background Janitor ─────────────────────────────────────────────
	janitor := auth.NewJanitor(refreshStore, cfg.PurgeInterval, log)
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		janitor.Run(rootCtx)
	}()

	// ── 9. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	exitCode := 0
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_failed", slog.Any("error", err))
		exitCode = 1
	}

	// Give in-flight requests enough time to complete.
	log.Info("server_shutting_down", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		log.Error("shutdown_failed", slog.Any("error", err))
		exitCode = 1
	}

	rootCancel()
	<-janitorDone

	log.Info("server_stopped")
	if exitCode != 0 {
		// Deferred closers do not run after os.Exit, so release them first.
		closeAll(log, db, rdb)
		pool.Close()
		os.Exit(exitCode)
	}
}

// newLogger builds the JSON logger with the global app attribute.
func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("app", constants.AppName))
}

// newTokenRepository selects the refresh token backend. The returned Redis
// client is nil unless the backend is Redis.
func newTokenRepository(ctx context.Context, cfg *config.Config, db *sql.DB, log *slog.Logger) (auth.RefreshTokenRepository, *goredis.Client, error) {
	switch cfg.TokenStore {
	case config.StoreRedis:
		rdb, err := redisstore.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return nil, nil, err
		}
		return auth.NewRedisRefreshTokenRepository(rdb), rdb, nil
	case config.StoreMemory:
		log.Warn("refresh_tokens_in_memory", slog.String("hint", "tokens are lost on restart"))
		return auth.NewMemoryRefreshTokenRepository(), nil, nil
	default:
		return auth.NewPostgresRefreshTokenRepository(db), nil, nil
	}
}

func closeAll(log *slog.Logger, db *sql.DB, rdb *goredis.Client) {
	if err := db.Close(); err != nil {
		log.Error("sql_db_close_failed", slog.Any("error", err))
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Error("redis_close_failed", slog.Any("error", err))
		}
	}
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is limited to startup wiring. After startup, all errors are returned and
// handled explicitly.
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
