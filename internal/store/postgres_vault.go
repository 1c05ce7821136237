package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// --- Master password ---

func (s *PostgresStore) GetMasterPassword(ctx context.Context) (*models.MasterPassword, error) {
	var mp models.MasterPassword
	err := s.pool.QueryRow(ctx,
		`SELECT password_hash, salt, hint, generation, created_at, updated_at
		 FROM master_password WHERE singleton`,
	).Scan(&mp.PasswordHash, &mp.Salt, &mp.Hint, &mp.Generation, &mp.CreatedAt, &mp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get master password: %w", err)
	}
	return &mp, nil
}

// CreateMasterPassword stores the singleton record. A second call fails with
// ErrDuplicateKey.
func (s *PostgresStore) CreateMasterPassword(ctx context.Context, mp *models.MasterPassword) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO master_password (password_hash, salt, hint, generation, created_at, updated_at)
		 VALUES ($1, $2, $3, 1, $4, $4)
		 RETURNING generation`,
		mp.PasswordHash, mp.Salt, mp.Hint, mp.CreatedAt,
	).Scan(&mp.Generation)
	if err != nil {
		return wrapWriteError("create master password", err)
	}
	return nil
}

// RotateMasterPassword replaces hash, salt and hint, bumps the generation and
// deletes every vault session in one transaction. It fails with
// ErrStaleGeneration if the record changed since expectedGeneration was read.
func (s *PostgresStore) RotateMasterPassword(ctx context.Context, expectedGeneration int64, mp *models.MasterPassword) (int64, error) {
	var generation int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE master_password
			 SET password_hash = $1, salt = $2, hint = $3, generation = generation + 1, updated_at = $4
			 WHERE singleton AND generation = $5
			 RETURNING generation`,
			mp.PasswordHash, mp.Salt, mp.Hint, mp.UpdatedAt, expectedGeneration,
		).Scan(&generation)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStaleGeneration
		}
		if err != nil {
			return fmt.Errorf("update master password: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM vault_sessions`); err != nil {
			return fmt.Errorf("delete vault sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return generation, nil
}

// --- Vault sessions ---

// CreateVaultSession stores a session bound to sess.Generation. The insert
// only succeeds while that generation is still current.
func (s *PostgresStore) CreateVaultSession(ctx context.Context, sess *models.VaultSession) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO vault_sessions (token_hash, unlocked, generation, expires_at, created_at)
		 SELECT $1::text, $2::boolean, m.generation, $3::timestamptz, $4::timestamptz
		 FROM master_password m WHERE m.singleton AND m.generation = $5`,
		sess.TokenHash, sess.Unlocked, sess.ExpiresAt, sess.CreatedAt, sess.Generation)
	if err != nil {
		return wrapWriteError("create vault session", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleGeneration
	}
	return nil
}

// GetVaultSession returns an unlocked, unexpired session minted under the
// current master password generation.
func (s *PostgresStore) GetVaultSession(ctx context.Context, tokenHash string, now time.Time) (*models.VaultSession, error) {
	var sess models.VaultSession
	err := s.pool.QueryRow(ctx,
		`SELECT v.token_hash, v.unlocked, v.generation, v.expires_at, v.created_at
		 FROM vault_sessions v
		 JOIN master_password m ON m.singleton AND m.generation = v.generation
		 WHERE v.token_hash = $1 AND v.unlocked AND v.expires_at > $2`,
		tokenHash, now,
	).Scan(&sess.TokenHash, &sess.Unlocked, &sess.Generation, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vault session: %w", err)
	}
	return &sess, nil
}

// DeleteVaultSession removes one session. Deleting an unknown token is not an error.
func (s *PostgresStore) DeleteVaultSession(ctx context.Context, tokenHash string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM vault_sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete vault session: %w", err)
	}
	return nil
}

// PurgeExpiredVaultSessions deletes sessions that are expired or belong to a
// superseded master password generation.
func (s *PostgresStore) PurgeExpiredVaultSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM vault_sessions v
		 WHERE v.expires_at <= $1
		    OR NOT EXISTS (SELECT 1 FROM master_password m WHERE m.generation = v.generation)`, now)
	if err != nil {
		return 0, fmt.Errorf("purge vault sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
