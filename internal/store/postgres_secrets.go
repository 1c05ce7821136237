package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// --- OTP secrets ---

const secretColumns = `s.id, s.owner_id, s.name, s.issuer, s.secret, s.algorithm, s.digits, s.period,
	s.category_id, c.name, s.note, s.icon, s.favorite, s.pinned, s.sort_order, s.use_count,
	s.last_used_at, s.created_at, s.updated_at`

const secretFrom = ` FROM otp_secrets s LEFT JOIN categories c ON c.id = s.category_id`

// secretOrder is the list contract: pinned first, then sort_order, then most
// recently updated. id breaks remaining ties so pages are stable.
const secretOrder = ` ORDER BY s.pinned DESC, s.sort_order ASC, s.updated_at DESC, s.id ASC`

func scanSecret(row scanner) (*models.OTPSecret, error) {
	var sec models.OTPSecret
	err := row.Scan(&sec.ID, &sec.OwnerID, &sec.Name, &sec.Issuer, &sec.Secret, &sec.Algorithm, &sec.Digits,
		&sec.Period, &sec.CategoryID, &sec.CategoryName, &sec.Note, &sec.Icon, &sec.Favorite, &sec.Pinned,
		&sec.SortOrder, &sec.UseCount, &sec.LastUsedAt, &sec.CreatedAt, &sec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sec.TagIDs = []uuid.UUID{}
	return &sec, nil
}

func (s *PostgresStore) CreateSecret(ctx context.Context, sec *models.OTPSecret) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO otp_secrets (id, owner_id, name, issuer, secret, algorithm, digits, period, category_id,
			   note, icon, favorite, pinned, sort_order, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			sec.ID, sec.OwnerID, sec.Name, sec.Issuer, sec.Secret, sec.Algorithm, sec.Digits, sec.Period,
			sec.CategoryID, sec.Note, sec.Icon, sec.Favorite, sec.Pinned, sec.SortOrder, sec.CreatedAt, sec.UpdatedAt)
		if err != nil {
			return wrapWriteError("create secret", err)
		}
		return insertSecretTags(ctx, tx, sec.ID, sec.TagIDs)
	})
}

func (s *PostgresStore) GetSecret(ctx context.Context, id uuid.UUID) (*models.OTPSecret, error) {
	sec, err := scanSecret(s.pool.QueryRow(ctx, `SELECT `+secretColumns+secretFrom+` WHERE s.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get secret: %w", err)
	}
	if err := s.attachTags(ctx, []*models.OTPSecret{sec}); err != nil {
		return nil, err
	}
	return sec, nil
}

func (s *PostgresStore) ListSecrets(ctx context.Context, filter SecretFilter) ([]*models.OTPSecret, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.OwnerID != nil {
		conditions = append(conditions, fmt.Sprintf("s.owner_id = $%d", argIdx))
		args = append(args, *filter.OwnerID)
		argIdx++
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(s.name ILIKE $%d OR s.issuer ILIKE $%d OR s.note ILIKE $%d)", argIdx, argIdx, argIdx))
		args = append(args, "%"+escapeLike(search)+"%")
		argIdx++
	}
	if filter.CategoryID != nil {
		conditions = append(conditions, fmt.Sprintf("s.category_id = $%d", argIdx))
		args = append(args, *filter.CategoryID)
		argIdx++
	}
	if filter.TagID != nil {
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM secret_tags st WHERE st.secret_id = s.id AND st.tag_id = $%d)", argIdx))
		args = append(args, *filter.TagID)
		argIdx++
	}
	if filter.Favorite != nil {
		conditions = append(conditions, fmt.Sprintf("s.favorite = $%d", argIdx))
		args = append(args, *filter.Favorite)
		argIdx++
	}
	if filter.Pinned != nil {
		conditions = append(conditions, fmt.Sprintf("s.pinned = $%d", argIdx))
		args = append(args, *filter.Pinned)
	}

	query := `SELECT ` + secretColumns + secretFrom + ` WHERE ` + strings.Join(conditions, " AND ") + secretOrder
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()

	secrets := []*models.OTPSecret{}
	for rows.Next() {
		sec, err := scanSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		secrets = append(secrets, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}

	if err := s.attachTags(ctx, secrets); err != nil {
		return nil, err
	}
	return secrets, nil
}

// UpdateSecret writes every mutable column of sec. When replaceTags is set the
// tag associations are replaced with sec.TagIDs in the same transaction.
func (s *PostgresStore) UpdateSecret(ctx context.Context, sec *models.OTPSecret, replaceTags bool) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE otp_secrets SET name = $2, issuer = $3, secret = $4, algorithm = $5, digits = $6, period = $7,
			   category_id = $8, note = $9, icon = $10, favorite = $11, pinned = $12, sort_order = $13, updated_at = $14
			 WHERE id = $1`,
			sec.ID, sec.Name, sec.Issuer, sec.Secret, sec.Algorithm, sec.Digits, sec.Period, sec.CategoryID,
			sec.Note, sec.Icon, sec.Favorite, sec.Pinned, sec.SortOrder, sec.UpdatedAt)
		if err != nil {
			return wrapWriteError("update secret", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if !replaceTags {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM secret_tags WHERE secret_id = $1`, sec.ID); err != nil {
			return fmt.Errorf("clear secret tags: %w", err)
		}
		return insertSecretTags(ctx, tx, sec.ID, sec.TagIDs)
	})
}

func (s *PostgresStore) DeleteSecret(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM otp_secrets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetSecretCategory(ctx context.Context, id uuid.UUID, categoryID *uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE otp_secrets SET category_id = $2, updated_at = NOW() WHERE id = $1`, id, categoryID)
	if err != nil {
		return fmt.Errorf("set secret category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSecretSortOrder leaves updated_at alone so reordering does not reshuffle
// entries that share a sort_order.
func (s *PostgresStore) SetSecretSortOrder(ctx context.Context, id uuid.UUID, sortOrder int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE otp_secrets SET sort_order = $2 WHERE id = $1`, id, sortOrder)
	if err != nil {
		return fmt.Errorf("set secret sort order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ToggleSecretFavorite(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.toggleSecretFlag(ctx, id, "favorite")
}

func (s *PostgresStore) ToggleSecretPinned(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.toggleSecretFlag(ctx, id, "pinned")
}

// toggleSecretFlag flips a boolean column in place. column is never user input.
func (s *PostgresStore) toggleSecretFlag(ctx context.Context, id uuid.UUID, column string) (bool, error) {
	var value bool
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE otp_secrets SET %[1]s = NOT %[1]s, updated_at = NOW() WHERE id = $1 RETURNING %[1]s`, column),
		id,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle secret %s: %w", column, err)
	}
	return value, nil
}

// RecordSecretUse increments use_count in place and touches last_used_at.
func (s *PostgresStore) RecordSecretUse(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE otp_secrets SET use_count = use_count + 1, last_used_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("record secret use: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateUsageLog(ctx context.Context, entry *models.UsageLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_logs (id, secret_id, account_id, action, created_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.SecretID, entry.AccountID, entry.Action, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("create usage log: %w", err)
	}
	return nil
}

func insertSecretTags(ctx context.Context, tx pgx.Tx, secretID uuid.UUID, tagIDs []uuid.UUID) error {
	if len(tagIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO secret_tags (secret_id, tag_id)
		 SELECT $1::uuid, t FROM unnest($2::uuid[]) AS t
		 ON CONFLICT DO NOTHING`,
		secretID, uuidStrings(tagIDs))
	if err != nil {
		return fmt.Errorf("insert secret tags: %w", err)
	}
	return nil
}

func (s *PostgresStore) attachTags(ctx context.Context, secrets []*models.OTPSecret) error {
	if len(secrets) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.OTPSecret, len(secrets))
	ids := make([]uuid.UUID, 0, len(secrets))
	for _, sec := range secrets {
		byID[sec.ID] = sec
		ids = append(ids, sec.ID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT secret_id, tag_id FROM secret_tags WHERE secret_id = ANY($1::uuid[]) ORDER BY created_at, tag_id`,
		uuidStrings(ids))
	if err != nil {
		return fmt.Errorf("load secret tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var secretID, tagID uuid.UUID
		if err := rows.Scan(&secretID, &tagID); err != nil {
			return fmt.Errorf("scan secret tag: %w", err)
		}
		if sec, ok := byID[secretID]; ok {
			sec.TagIDs = append(sec.TagIDs, tagID)
		}
	}
	return rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
