// Package secrets owns the per-account collection of OTP secrets together with
// the categories and tags that organize them. Every operation runs as an
// explicit principal and checks ownership before it writes.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/internal/store"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// MaskedSecret replaces the shared secret in list responses. Sending it back
// on update keeps the stored secret unchanged.
const MaskedSecret = "***encrypted***"

// Repository is the storage the secret service needs.
type Repository interface {
	CreateSecret(ctx context.Context, sec *models.OTPSecret) error
	GetSecret(ctx context.Context, id uuid.UUID) (*models.OTPSecret, error)
	ListSecrets(ctx context.Context, filter store.SecretFilter) ([]*models.OTPSecret, error)
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

	CreateOperationLog(ctx context.Context, entry *models.OperationLog) error
}

// UsageSwitch reports whether code usage is currently being logged.
type UsageSwitch interface {
	UsageStatsEnabled(ctx context.Context) bool
}

// Options tunes the service.
type Options struct {
	// UsageLogEnabled appends a usage_logs row every time a code is used.
	// It applies only when Usage is nil.
	UsageLogEnabled bool
	// Usage is consulted on every use, so admins can toggle logging at runtime.
	Usage UsageSwitch
}

// Service is the secret store adapter.
type Service struct {
	repo Repository
	opts Options
	now  func() time.Time
}

func NewService(repo Repository, opts Options) *Service {
	return &Service{repo: repo, opts: opts, now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) usageLogEnabled(ctx context.Context) bool {
	if s.opts.Usage != nil {
		return s.opts.Usage.UsageStatsEnabled(ctx)
	}
	return s.opts.UsageLogEnabled
}

// ItemResult reports the outcome of one entry of a batch operation.
type ItemResult struct {
	ID    uuid.UUID `json:"id"`
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
}

// authorize checks that p may act on a record owned by ownerID. An admin
// acting on someone else's record is logged and audited here.
func (s *Service) authorize(ctx context.Context, p auth.Principal, ownerID uuid.UUID, allowAdmin bool, resource string, id uuid.UUID, action string) error {
	access, err := auth.CheckOwner(p, ownerID, allowAdmin)
	if err != nil {
		return err
	}
	if access == auth.AccessAdminOverride {
		slog.Warn("admin ownership override",
			"actor", p.AccountID, "owner", ownerID, "resource", resource, "resource_id", id, "action", action)
		s.logOperation(ctx, p, "admin_override:"+action, resource, &id, ownerID.String())
	}
	return nil
}

func (s *Service) logOperation(ctx context.Context, p auth.Principal, action, resource string, resourceID *uuid.UUID, details string) {
	actor := p.AccountID
	entry := &models.OperationLog{
		ID:           uuid.New(),
		AccountID:    &actor,
		Action:       action,
		ResourceType: resource,
		ResourceID:   resourceID,
		Details:      details,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateOperationLog(ctx, entry); err != nil {
		slog.Error("operation log write failed", "action", action, "error", err)
	}
}

// notFound maps store.ErrNotFound to an apperr NotFound for the named
// resource and wraps anything else.
func notFound(err error, resource string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(resource + " not found")
	}
	return fmt.Errorf("%s: %w", resource, err)
}

func itemError(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
