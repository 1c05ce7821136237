package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrStaleGeneration is returned when the master password was rotated between
// the read that verified it and the write that depends on it.
var ErrStaleGeneration = errors.New("master password generation changed")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateAccount(ctx context.Context, acc *models.Account, defaultCategory *models.Category) error
	GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	UpdateAccount(ctx context.Context, id uuid.UUID, upd AccountUpdate) (*models.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration, now time.Time) (*LoginFailure, error)
	RecordLoginSuccess(ctx context.Context, id uuid.UUID, ip string, now time.Time) error
	GetAccountStats(ctx context.Context, id uuid.UUID) (*models.AccountStats, error)

	GetMasterPassword(ctx context.Context) (*models.MasterPassword, error)
	CreateMasterPassword(ctx context.Context, mp *models.MasterPassword) error
	RotateMasterPassword(ctx context.Context, expectedGeneration int64, mp *models.MasterPassword) (int64, error)
	CreateVaultSession(ctx context.Context, sess *models.VaultSession) error
	GetVaultSession(ctx context.Context, tokenHash string, now time.Time) (*models.VaultSession, error)
	DeleteVaultSession(ctx context.Context, tokenHash string) error
	PurgeExpiredVaultSessions(ctx context.Context, now time.Time) (int64, error)

	CreateSecret(ctx context.Context, sec *models.OTPSecret) error
	GetSecret(ctx context.Context, id uuid.UUID) (*models.OTPSecret, error)
	ListSecrets(ctx context.Context, filter SecretFilter) ([]*models.OTPSecret, error)
	UpdateSecret(ctx context.Context, sec *models.OTPSecret, replaceTags bool) error
	DeleteSecret(ctx context.Context, id uuid.UUID) error
	SetSecretCategory(ctx context.Context, id uuid.UUID, categoryID *uuid.UUID) error
	SetSecretSortOrder(ctx context.Context, id uuid.UUID, sortOrder int) error
	ToggleSecretFavorite(ctx context.Context, id uuid.UUID) (bool, error)
	ToggleSecretPinned(ctx context.Context, id uuid.UUID) (bool, error)
	RecordSecretUse(ctx context.Context, id uuid.UUID, now time.Time) error
	CreateUsageLog(ctx context.Context, entry *models.UsageLog) error

	ListCategories(ctx context.Context, ownerID *uuid.UUID) ([]*models.Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error)
	GetDefaultCategory(ctx context.Context, ownerID uuid.UUID) (*models.Category, error)
	CreateCategory(ctx context.Context, cat *models.Category) error
	UpdateCategory(ctx context.Context, cat *models.Category) error
	DeleteCategory(ctx context.Context, id uuid.UUID, reassignTo uuid.UUID) (int64, error)

	ListTags(ctx context.Context, ownerID *uuid.UUID) ([]*models.Tag, error)
	GetTag(ctx context.Context, id uuid.UUID) (*models.Tag, error)
	CreateTag(ctx context.Context, tag *models.Tag) error
	UpdateTag(ctx context.Context, tag *models.Tag) error
	DeleteTag(ctx context.Context, id uuid.UUID) error

	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetAPIKey(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	ListAPIKeys(ctx context.Context, ownerID uuid.UUID) ([]*models.APIKey, error)
	UpdateAPIKey(ctx context.Context, key *models.APIKey) error
	DeleteAPIKey(ctx context.Context, id uuid.UUID) error
	ValidateAPIKey(ctx context.Context, keyHash string, now time.Time) (*models.APIKeyIdentity, error)

	ListSettings(ctx context.Context) ([]*models.Setting, error)
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
	UpdateSettings(ctx context.Context, values map[string]string, now time.Time) error

	CreateLoginLog(ctx context.Context, entry *models.LoginLog) error
	ListLoginLogs(ctx context.Context, limit int) ([]*models.LoginLog, error)
	CreateOperationLog(ctx context.Context, entry *models.OperationLog) error
}

// AccountUpdate carries the mutable account columns. Nil fields are left unchanged.
type AccountUpdate struct {
	Email        *string
	ClearEmail   bool
	Role         *string
	Active       *bool
	PasswordHash *string
}

// LoginFailure is the account lock state after a failed attempt was counted.
type LoginFailure struct {
	FailedCount int
	LockedUntil *time.Time
}

// SecretFilter narrows ListSecrets. A nil OwnerID lists every account's secrets.
type SecretFilter struct {
	OwnerID    *uuid.UUID
	Search     string
	CategoryID *uuid.UUID
	TagID      *uuid.UUID
	Favorite   *bool
	Pinned     *bool
}

// ConstraintName returns the violated constraint of a duplicate key error, or "".
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
