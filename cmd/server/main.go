// Package main is the entrypoint for the totpvault API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/totpvault/internal/api"
	mw "github.com/kiranshivaraju/totpvault/internal/api/middleware"
	"github.com/kiranshivaraju/totpvault/internal/api/response"
	"github.com/kiranshivaraju/totpvault/internal/apikey"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/internal/cache"
	"github.com/kiranshivaraju/totpvault/internal/config"
	"github.com/kiranshivaraju/totpvault/internal/secrets"
	"github.com/kiranshivaraju/totpvault/internal/settings"
	"github.com/kiranshivaraju/totpvault/internal/store"
	"github.com/kiranshivaraju/totpvault/internal/vault"
)

const (
	shutdownTimeout      = 30 * time.Second
	sessionPurgeInterval = time.Hour
)

var logLevel = new(slog.LevelVar)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logLevel.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		return fmt.Errorf("set log level: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "log_level", cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and services
	pgStore := store.NewPostgresStore(pool)

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL, cfg.Auth.JWTIssuer)
	if err != nil {
		return fmt.Errorf("create token manager: %w", err)
	}
	accounts, err := auth.NewService(pgStore, tokens, auth.Options{
		MaxFailures:  cfg.Auth.LoginMaxFailures,
		LockDuration: cfg.Auth.LoginLockDuration,
		BcryptCost:   cfg.Auth.BcryptCost,
	})
	if err != nil {
		return fmt.Errorf("create credential service: %w", err)
	}
	vaultSvc := vault.NewService(pgStore, vault.Options{
		SessionTTL:     cfg.Vault.SessionTTL,
		MinPasswordLen: cfg.Vault.MasterPasswordMin,
		BcryptCost:     cfg.Auth.BcryptCost,
	})
	keys := apikey.NewService(pgStore)
	settingsSvc := settings.NewService(pgStore, settings.Options{
		UsageStatsDefault: cfg.Vault.UsageLogEnabled,
	})
	secretSvc := secrets.NewService(pgStore, secrets.Options{
		UsageLogEnabled: cfg.Vault.UsageLogEnabled,
		Usage:           settingsSvc,
	})

	go purgeSessions(ctx, vaultSvc, sessionPurgeInterval)

	// 6. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(accounts, keys),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Redis.RateLimitPerMinute),

		HealthHandler: healthHandler(pgStore, redisCache),

		Accounts: accounts,
		Admin:    accounts,
		Vault:    vaultSvc,
		Secrets:  secretSvc,
		Labels:   secretSvc,
		APIKeys:  keys,
		Settings: settingsSvc,
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

type sessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// purgeSessions deletes expired vault sessions every interval until ctx is done.
func purgeSessions(ctx context.Context, p sessionPurger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				slog.Error("vault session purge failed", "error", err)
			}
		}
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
