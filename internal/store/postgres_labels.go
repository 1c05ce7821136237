package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// --- Categories ---

const categoryColumns = `id, owner_id, name, description, icon, color, is_default, sort_order, created_at`

func scanCategory(row scanner) (*models.Category, error) {
	var c models.Category
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Description, &c.Icon, &c.Color, &c.IsDefault, &c.SortOrder, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCategories returns the global categories plus those owned by ownerID.
// A nil ownerID returns every category.
func (s *PostgresStore) ListCategories(ctx context.Context, ownerID *uuid.UUID) ([]*models.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories`
	var args []any
	if ownerID != nil {
		query += ` WHERE owner_id IS NULL OR owner_id = $1`
		args = append(args, *ownerID)
	}
	query += ` ORDER BY sort_order ASC, name ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []*models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *PostgresStore) GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	c, err := scanCategory(s.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// GetDefaultCategory returns the owner's private default category, falling
// back to the global one.
func (s *PostgresStore) GetDefaultCategory(ctx context.Context, ownerID uuid.UUID) (*models.Category, error) {
	c, err := scanCategory(s.pool.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM categories
		 WHERE is_default AND (owner_id = $1 OR owner_id IS NULL)
		 ORDER BY owner_id NULLS LAST LIMIT 1`, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default category: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) CreateCategory(ctx context.Context, cat *models.Category) error {
	return insertCategory(ctx, s.pool, cat)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertCategory(ctx context.Context, db execer, cat *models.Category) error {
	_, err := db.Exec(ctx,
		`INSERT INTO categories (id, owner_id, name, description, icon, color, is_default, sort_order, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cat.ID, cat.OwnerID, cat.Name, cat.Description, cat.Icon, cat.Color, cat.IsDefault, cat.SortOrder, cat.CreatedAt)
	if err != nil {
		return wrapWriteError("create category", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, cat *models.Category) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE categories SET name = $2, description = $3, icon = $4, color = $5, sort_order = $6 WHERE id = $1`,
		cat.ID, cat.Name, cat.Description, cat.Icon, cat.Color, cat.SortOrder)
	if err != nil {
		return wrapWriteError("update category", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCategory moves the category's secrets to reassignTo and deletes it in
// one transaction. Default categories are never deleted. It returns the number
// of secrets moved.
func (s *PostgresStore) DeleteCategory(ctx context.Context, id uuid.UUID, reassignTo uuid.UUID) (int64, error) {
	var moved int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE otp_secrets SET category_id = $2, updated_at = NOW() WHERE category_id = $1`, id, reassignTo)
		if err != nil {
			return fmt.Errorf("reassign secrets: %w", err)
		}
		moved = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM categories WHERE id = $1 AND NOT is_default`, id)
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// --- Tags ---

const tagSelect = `SELECT t.id, t.owner_id, t.name, t.color, COUNT(st.secret_id), t.created_at
	FROM tags t LEFT JOIN secret_tags st ON st.tag_id = t.id`

func scanTag(row scanner) (*models.Tag, error) {
	var t models.Tag
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Color, &t.SecretCount, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTags returns tags with their secret counts. A nil ownerID returns every tag.
func (s *PostgresStore) ListTags(ctx context.Context, ownerID *uuid.UUID) ([]*models.Tag, error) {
	query := tagSelect
	var args []any
	if ownerID != nil {
		query += ` WHERE t.owner_id = $1`
		args = append(args, *ownerID)
	}
	query += ` GROUP BY t.id ORDER BY t.name ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []*models.Tag{}
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *PostgresStore) GetTag(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	t, err := scanTag(s.pool.QueryRow(ctx, tagSelect+` WHERE t.id = $1 GROUP BY t.id`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) CreateTag(ctx context.Context, tag *models.Tag) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tags (id, owner_id, name, color, created_at) VALUES ($1, $2, $3, $4, $5)`,
		tag.ID, tag.OwnerID, tag.Name, tag.Color, tag.CreatedAt)
	if err != nil {
		return wrapWriteError("create tag", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTag(ctx context.Context, tag *models.Tag) error {
	ct, err := s.pool.Exec(ctx, `UPDATE tags SET name = $2, color = $3 WHERE id = $1`, tag.ID, tag.Name, tag.Color)
	if err != nil {
		return wrapWriteError("update tag", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTag removes the tag; its secret_tags rows go with it via ON DELETE CASCADE.
func (s *PostgresStore) DeleteTag(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
