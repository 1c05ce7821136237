package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

// --- Accounts ---

const accountColumns = `a.id, a.username, a.password_hash, a.email, a.role, a.active, a.failed_login_count,
	a.locked_until, a.login_count, a.last_login_at, a.last_ip, a.created_at, a.updated_at`

func scanAccount(row scanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Email, &a.Role, &a.Active, &a.FailedLoginCount,
		&a.LockedUntil, &a.LoginCount, &a.LastLoginAt, &a.LastIP, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts the account and, when given, its private default
// category in one transaction.
func (s *PostgresStore) CreateAccount(ctx context.Context, acc *models.Account, defaultCategory *models.Category) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO accounts (id, username, password_hash, email, role, active, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			acc.ID, acc.Username, acc.PasswordHash, acc.Email, acc.Role, acc.Active, acc.CreatedAt, acc.UpdatedAt)
		if err != nil {
			return wrapWriteError("create account", err)
		}
		if defaultCategory == nil {
			return nil
		}
		return insertCategory(ctx, tx, defaultCategory)
	})
}

func (s *PostgresStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	acc, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts a WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

func (s *PostgresStore) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	acc, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts a WHERE a.username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account by username: %w", err)
	}
	return acc, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts a ORDER BY a.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) UpdateAccount(ctx context.Context, id uuid.UUID, upd AccountUpdate) (*models.Account, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	argIdx := 2

	if upd.ClearEmail {
		sets = append(sets, "email = NULL")
	} else if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", argIdx))
		args = append(args, *upd.Email)
		argIdx++
	}
	if upd.Role != nil {
		sets = append(sets, fmt.Sprintf("role = $%d", argIdx))
		args = append(args, *upd.Role)
		argIdx++
	}
	if upd.Active != nil {
		sets = append(sets, fmt.Sprintf("active = $%d", argIdx))
		args = append(args, *upd.Active)
		argIdx++
	}
	if upd.PasswordHash != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", argIdx))
		args = append(args, *upd.PasswordHash)
	}

	query := `UPDATE accounts a SET ` + strings.Join(sets, ", ") + ` WHERE a.id = $1 RETURNING ` + accountColumns
	acc, err := scanAccount(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapWriteError("update account", err)
	}
	return acc, nil
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordLoginFailure counts one failed attempt and locks the account once the
// count reaches threshold. The row is updated in a single statement so
// concurrent failures cannot under-count. A failure after an expired lock
// restarts the count at 1.
func (s *PostgresStore) RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration, now time.Time) (*LoginFailure, error) {
	var f LoginFailure
	err := s.pool.QueryRow(ctx,
		`UPDATE accounts SET
		   failed_login_count = CASE
		     WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1
		     ELSE failed_login_count + 1 END,
		   locked_until = CASE
		     WHEN (CASE WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1
		                ELSE failed_login_count + 1 END) >= $3::int THEN $4::timestamptz
		     WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN NULL
		     ELSE locked_until END,
		   updated_at = $2
		 WHERE id = $1
		 RETURNING failed_login_count, locked_until`,
		id, now, threshold, now.Add(lockFor),
	).Scan(&f.FailedCount, &f.LockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record login failure: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) RecordLoginSuccess(ctx context.Context, id uuid.UUID, ip string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET failed_login_count = 0, locked_until = NULL, login_count = login_count + 1,
		   last_login_at = $2, last_ip = $3, updated_at = $2
		 WHERE id = $1`, id, now, ip)
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetAccountStats(ctx context.Context, id uuid.UUID) (*models.AccountStats, error) {
	var st models.AccountStats
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM otp_secrets WHERE owner_id = $1),
		   (SELECT COUNT(*) FROM categories WHERE owner_id = $1),
		   (SELECT COUNT(*) FROM tags WHERE owner_id = $1)`, id,
	).Scan(&st.Secrets, &st.Categories, &st.Tags)
	if err != nil {
		return nil, fmt.Errorf("get account stats: %w", err)
	}
	return &st, nil
}

// --- Audit logs ---

func (s *PostgresStore) CreateLoginLog(ctx context.Context, entry *models.LoginLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO login_logs (id, account_id, username, ip, user_agent, success, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.AccountID, entry.Username, entry.IP, entry.UserAgent, entry.Success, entry.Reason, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("create login log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLoginLogs(ctx context.Context, limit int) ([]*models.LoginLog, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, username, ip, user_agent, success, reason, created_at
		 FROM login_logs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list login logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.LoginLog
	for rows.Next() {
		var l models.LoginLog
		if err := rows.Scan(&l.ID, &l.AccountID, &l.Username, &l.IP, &l.UserAgent, &l.Success, &l.Reason, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan login log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

func (s *PostgresStore) CreateOperationLog(ctx context.Context, entry *models.OperationLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO operation_logs (id, account_id, action, resource_type, resource_id, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.AccountID, entry.Action, entry.ResourceType, entry.ResourceID, entry.Details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("create operation log: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// wrapWriteError maps unique violations to ErrDuplicateKey while keeping the
// driver error reachable for ConstraintName.
func wrapWriteError(op string, err error) error {
	if isDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrDuplicateKey, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
