package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// --- System settings ---

func (s *PostgresStore) ListSettings(ctx context.Context) ([]*models.Setting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value, description, updated_at FROM system_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []*models.Setting
	for rows.Next() {
		var st models.Setting
		if err := rows.Scan(&st.Key, &st.Value, &st.Description, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings = append(settings, &st)
	}
	return settings, rows.Err()
}

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	var st models.Setting
	err := s.pool.QueryRow(ctx,
		`SELECT key, value, description, updated_at FROM system_settings WHERE key = $1`, key,
	).Scan(&st.Key, &st.Value, &st.Description, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return &st, nil
}

// UpdateSettings writes every value in one transaction. A key without a row
// rolls the whole update back with ErrNotFound.
func (s *PostgresStore) UpdateSettings(ctx context.Context, values map[string]string, now time.Time) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, k := range keys {
			tag, err := tx.Exec(ctx,
				`UPDATE system_settings SET value = $1, updated_at = $2 WHERE key = $3`,
				values[k], now, k)
			if err != nil {
				return fmt.Errorf("update setting %s: %w", k, err)
			}
			if tag.RowsAffected() == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}
