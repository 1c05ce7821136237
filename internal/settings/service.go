// Package settings holds the system settings an admin can change at runtime,
// such as whether code usage is logged.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/internal/store"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// Setting keys.
const (
	KeyUsageStats      = "enable_usage_stats"
	KeyAutoLock        = "auto_lock_enabled"
	KeyAutoLockTimeout = "auto_lock_timeout"
	KeyTheme           = "theme"
	KeyLanguage        = "language"
)

var validators = map[string]func(string) error{
	KeyUsageStats:      validBool,
	KeyAutoLock:        validBool,
	KeyAutoLockTimeout: validIntRange(1, 1440),
	KeyTheme:           validOneOf("light", "dark", "auto"),
	KeyLanguage:        validNonEmpty,
}

// Repository is the storage the settings service needs.
type Repository interface {
	ListSettings(ctx context.Context) ([]*models.Setting, error)
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
	UpdateSettings(ctx context.Context, values map[string]string, now time.Time) error
	CreateOperationLog(ctx context.Context, entry *models.OperationLog) error
}

// Options supplies fallbacks for settings missing from storage.
type Options struct {
	UsageStatsDefault bool
}

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

// List returns every setting. Admin only.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]*models.Setting, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	settings, err := s.repo.ListSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	if settings == nil {
		settings = []*models.Setting{}
	}
	return settings, nil
}

// Update validates and writes values atomically, then returns every setting.
// Admin only; read-only API keys are refused.
func (s *Service) Update(ctx context.Context, p auth.Principal, values map[string]string) ([]*models.Setting, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	if err := auth.RequireWrite(p); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, apperr.Validation("settings must not be empty")
	}

	clean := make(map[string]string, len(values))
	for k, v := range values {
		validate, ok := validators[k]
		if !ok {
			return nil, apperr.Validation("unknown setting").WithDetail("key", k)
		}
		v = strings.TrimSpace(v)
		if err := validate(v); err != nil {
			return nil, apperr.Validation(err.Error()).WithDetail("key", k)
		}
		clean[k] = v
	}

	if err := s.repo.UpdateSettings(ctx, clean, s.now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("setting not found")
		}
		return nil, fmt.Errorf("update settings: %w", err)
	}
	s.logOperation(ctx, p, clean)
	return s.List(ctx, p)
}

// UsageStatsEnabled reports whether code usage should be logged. It falls
// back to the configured default when the setting is missing or unreadable.
func (s *Service) UsageStatsEnabled(ctx context.Context) bool {
	st, err := s.repo.GetSetting(ctx, KeyUsageStats)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("read usage stats setting failed", "error", err)
		}
		return s.opts.UsageStatsDefault
	}
	enabled, err := strconv.ParseBool(st.Value)
	if err != nil {
		slog.Warn("invalid usage stats setting", "value", st.Value)
		return s.opts.UsageStatsDefault
	}
	return enabled
}

func (s *Service) logOperation(ctx context.Context, p auth.Principal, values map[string]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k+"="+values[k])
	}
	sort.Strings(keys)

	actor := p.AccountID
	entry := &models.OperationLog{
		ID:           uuid.New(),
		AccountID:    &actor,
		Action:       "update_settings",
		ResourceType: "settings",
		Details:      strings.Join(keys, ","),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateOperationLog(ctx, entry); err != nil {
		slog.Error("operation log write failed", "action", entry.Action, "error", err)
	}
}

func validBool(v string) error {
	if _, err := strconv.ParseBool(v); err != nil {
		return errors.New("value must be true or false")
	}
	return nil
}

func validIntRange(lo, hi int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < lo || n > hi {
			return fmt.Errorf("value must be an integer between %d and %d", lo, hi)
		}
		return nil
	}
}

func validOneOf(allowed ...string) func(string) error {
	return func(v string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("value must be one of %s", strings.Join(allowed, ", "))
	}
}

func validNonEmpty(v string) error {
	if v == "" {
		return errors.New("value must not be empty")
	}
	return nil
}
