package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// --- API Keys ---

const apiKeyColumns = `id, owner_id, name, key_hash, key_prefix, permissions, active, expires_at,
	use_count, last_used_at, created_at, updated_at`

func scanAPIKey(row scanner) (*models.APIKey, error) {
	var k models.APIKey
	err := row.Scan(&k.ID, &k.OwnerID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Permissions, &k.Active,
		&k.ExpiresAt, &k.UseCount, &k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, owner_id, name, key_hash, key_prefix, permissions, active, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		key.ID, key.OwnerID, key.Name, key.KeyHash, key.KeyPrefix, key.Permissions, key.Active, key.ExpiresAt,
		key.CreatedAt, key.UpdatedAt)
	if err != nil {
		return wrapWriteError("create api key", err)
	}
	return nil
}

func (s *PostgresStore) GetAPIKey(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	k, err := scanAPIKey(s.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, ownerID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	keys := []*models.APIKey{}
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKey(ctx context.Context, key *models.APIKey) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET name = $2, permissions = $3, active = $4, expires_at = $5, updated_at = $6
		 WHERE id = $1`,
		key.ID, key.Name, key.Permissions, key.Active, key.ExpiresAt, key.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ValidateAPIKey looks up an active, unexpired key by hash, counts the use
// and returns the owning account in one statement. Concurrent validations
// each increment use_count exactly once.
func (s *PostgresStore) ValidateAPIKey(ctx context.Context, keyHash string, now time.Time) (*models.APIKeyIdentity, error) {
	var id models.APIKeyIdentity
	row := s.pool.QueryRow(ctx,
		`WITH used AS (
		   UPDATE api_keys SET use_count = use_count + 1, last_used_at = $2
		   WHERE key_hash = $1 AND active AND (expires_at IS NULL OR expires_at > $2)
		   RETURNING id, owner_id, permissions
		 )
		 SELECT used.id, used.permissions, `+accountColumns+`
		 FROM used JOIN accounts a ON a.id = used.owner_id`,
		keyHash, now)

	a := &id.Account
	err := row.Scan(&id.KeyID, &id.Permissions,
		&a.ID, &a.Username, &a.PasswordHash, &a.Email, &a.Role, &a.Active, &a.FailedLoginCount,
		&a.LockedUntil, &a.LoginCount, &a.LastLoginAt, &a.LastIP, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("validate api key: %w", err)
	}
	return &id, nil
}
