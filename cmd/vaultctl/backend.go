package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/internal/config"
	"github.com/kiranshivaraju/totpvault/internal/store"
	"github.com/kiranshivaraju/totpvault/internal/vault"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// Backend is what the commands operate on.
type Backend interface {
	MigrateUp() error
	MigrateDown(steps int) error
	MigrationVersion() (version uint, dirty bool, err error)
	CreateAdmin(ctx context.Context, in auth.RegisterInput) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	PurgeSessions(ctx context.Context) (int64, error)
	Close()
}

// opener builds a Backend on demand so that --help and flag errors never
// touch the database.
type opener func(ctx context.Context) (Backend, error)

type dbBackend struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	store    *store.PostgresStore
	accounts *auth.Service
	vault    *vault.Service
}

func openBackend(ctx context.Context) (Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	pgStore := store.NewPostgresStore(pool)

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL, cfg.Auth.JWTIssuer)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create token manager: %w", err)
	}
	accounts, err := auth.NewService(pgStore, tokens, auth.Options{
		MaxFailures:  cfg.Auth.LoginMaxFailures,
		LockDuration: cfg.Auth.LoginLockDuration,
		BcryptCost:   cfg.Auth.BcryptCost,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create credential service: %w", err)
	}

	return &dbBackend{
		cfg:      cfg,
		pool:     pool,
		store:    pgStore,
		accounts: accounts,
		vault: vault.NewService(pgStore, vault.Options{
			SessionTTL:     cfg.Vault.SessionTTL,
			MinPasswordLen: cfg.Vault.MasterPasswordMin,
			BcryptCost:     cfg.Auth.BcryptCost,
		}),
	}, nil
}

func (b *dbBackend) MigrateUp() error {
	return store.RunMigrations(b.cfg.Database.URL, b.cfg.Database.MigrationsDir)
}

func (b *dbBackend) MigrateDown(steps int) error {
	return store.RollbackMigrations(b.cfg.Database.URL, b.cfg.Database.MigrationsDir, steps)
}

func (b *dbBackend) MigrationVersion() (uint, bool, error) {
	return store.MigrationVersion(b.cfg.Database.URL, b.cfg.Database.MigrationsDir)
}

func (b *dbBackend) CreateAdmin(ctx context.Context, in auth.RegisterInput) (*models.Account, error) {
	return b.accounts.CreateAdmin(ctx, in)
}

// ListAccounts reads the store directly; operators are not principals.
func (b *dbBackend) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	return b.store.ListAccounts(ctx)
}

func (b *dbBackend) PurgeSessions(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return b.vault.PurgeExpired(ctx)
}

func (b *dbBackend) Close() {
	b.pool.Close()
}
