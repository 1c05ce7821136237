// Package apikey issues and validates long-lived API keys. Raw keys are
// returned once at creation; only their SHA-256 is stored.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/internal/store"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

const (
	// Prefix starts every raw key.
	Prefix = "sk_"

	keyBytes      = 32
	displayLen    = 12
	maxNameLength = 100
)

// Repository is the storage the API key service needs.
type Repository interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetAPIKey(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	ListAPIKeys(ctx context.Context, ownerID uuid.UUID) ([]*models.APIKey, error)
	UpdateAPIKey(ctx context.Context, key *models.APIKey) error
	DeleteAPIKey(ctx context.Context, id uuid.UUID) error
	ValidateAPIKey(ctx context.Context, keyHash string, now time.Time) (*models.APIKeyIdentity, error)
	CreateOperationLog(ctx context.Context, entry *models.OperationLog) error
}

// Service manages API keys.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateInput describes a new key. ExpiresIn is one of "", "30d", "90d", "1y".
type CreateInput struct {
	Name        string
	Permissions string
	ExpiresIn   string
}

// Created carries the one-time raw key alongside the stored record.
type Created struct {
	Key    string         `json:"key"`
	APIKey *models.APIKey `json:"api_key"`
}

// Create issues a key for the caller.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (*Created, error) {
	if err := requireSession(p); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > maxNameLength {
		return nil, apperr.Validation(fmt.Sprintf("name is required and must be at most %d characters", maxNameLength))
	}
	perms, err := parsePermissions(in.Permissions)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	expiresAt, err := parseExpiry(in.ExpiresIn, now)
	if err != nil {
		return nil, err
	}

	raw, err := generateKey()
	if err != nil {
		return nil, err
	}
	key := &models.APIKey{
		ID:          uuid.New(),
		OwnerID:     p.AccountID,
		Name:        name,
		KeyHash:     HashKey(raw),
		KeyPrefix:   raw[:displayLen] + "...",
		Permissions: perms,
		Active:      true,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	s.logOperation(ctx, p, "create_api_key", key.ID, key.Name)
	return &Created{Key: raw, APIKey: key}, nil
}

// Validate resolves a raw key to the principal it acts for. Malformed keys
// are rejected before hashing. A successful validation counts one use.
func (s *Service) Validate(ctx context.Context, raw string) (auth.Principal, error) {
	if !wellFormed(raw) {
		return auth.Principal{}, apperr.Unauthenticated("invalid api key")
	}
	id, err := s.repo.ValidateAPIKey(ctx, HashKey(raw), s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return auth.Principal{}, apperr.Unauthenticated("invalid or expired api key")
	}
	if err != nil {
		return auth.Principal{}, fmt.Errorf("validate api key: %w", err)
	}
	if !id.Account.Active {
		return auth.Principal{}, apperr.AccountDisabled()
	}
	return auth.FromAPIKey(id), nil
}

// List returns the caller's keys, newest first.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]*models.APIKey, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	keys, err := s.repo.ListAPIKeys(ctx, p.AccountID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	return keys, nil
}

// UpdateInput holds the editable fields. Nil means unchanged. An empty
// ExpiresIn removes the expiry.
type UpdateInput struct {
	Name        *string
	Permissions *string
	Active      *bool
	ExpiresIn   *string
}

// Update edits one of the caller's keys.
func (s *Service) Update(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateInput) (*models.APIKey, error) {
	if err := requireSession(p); err != nil {
		return nil, err
	}
	key, err := s.owned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" || len(name) > maxNameLength {
			return nil, apperr.Validation(fmt.Sprintf("name is required and must be at most %d characters", maxNameLength))
		}
		key.Name = name
	}
	if in.Permissions != nil {
		perms, err := parsePermissions(*in.Permissions)
		if err != nil {
			return nil, err
		}
		key.Permissions = perms
	}
	if in.Active != nil {
		key.Active = *in.Active
	}
	if in.ExpiresIn != nil {
		expiresAt, err := parseExpiry(*in.ExpiresIn, now)
		if err != nil {
			return nil, err
		}
		key.ExpiresAt = expiresAt
	}
	key.UpdatedAt = now

	if err := s.repo.UpdateAPIKey(ctx, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("api key not found")
		}
		return nil, fmt.Errorf("update api key: %w", err)
	}
	s.logOperation(ctx, p, "update_api_key", key.ID, key.Name)
	return key, nil
}

// Delete removes one of the caller's keys.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := requireSession(p); err != nil {
		return err
	}
	key, err := s.owned(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteAPIKey(ctx, key.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("api key not found")
		}
		return fmt.Errorf("delete api key: %w", err)
	}
	s.logOperation(ctx, p, "delete_api_key", key.ID, key.Name)
	return nil
}

// HashKey returns the hex SHA-256 of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// LooksLikeKey reports whether a credential should be treated as an API key
// rather than a bearer JWT.
func LooksLikeKey(credential string) bool {
	return strings.HasPrefix(credential, Prefix)
}

func (s *Service) owned(ctx context.Context, p auth.Principal, id uuid.UUID) (*models.APIKey, error) {
	key, err := s.repo.GetAPIKey(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("api key not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load api key: %w", err)
	}
	if _, err := auth.CheckOwner(p, key.OwnerID, false); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *Service) logOperation(ctx context.Context, p auth.Principal, action string, keyID uuid.UUID, name string) {
	actor := p.AccountID
	entry := &models.OperationLog{
		ID:           uuid.New(),
		AccountID:    &actor,
		Action:       action,
		ResourceType: "api_key",
		ResourceID:   &keyID,
		Details:      name,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateOperationLog(ctx, entry); err != nil {
		slog.Error("operation log write failed", "action", action, "error", err)
	}
}

// requireSession limits key management to bearer token sessions.
func requireSession(p auth.Principal) error {
	if err := auth.RequireWrite(p); err != nil {
		return err
	}
	if p.APIKeyID != nil {
		return apperr.Forbidden("api keys cannot manage api keys")
	}
	return nil
}

func generateKey() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return Prefix + hex.EncodeToString(b), nil
}

func wellFormed(raw string) bool {
	if !strings.HasPrefix(raw, Prefix) || len(raw) != len(Prefix)+keyBytes*2 {
		return false
	}
	for _, c := range raw[len(Prefix):] {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

func parsePermissions(v string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", models.PermissionRead:
		return models.PermissionRead, nil
	case models.PermissionWrite:
		return models.PermissionWrite, nil
	default:
		return "", apperr.Validation("permissions must be read or write")
	}
}

func parseExpiry(v string, now time.Time) (*time.Time, error) {
	var d time.Duration
	switch v {
	case "":
		return nil, nil
	case "30d":
		d = 30 * 24 * time.Hour
	case "90d":
		d = 90 * 24 * time.Hour
	case "1y":
		d = 365 * 24 * time.Hour
	default:
		return nil, apperr.Validation(`expires_in must be one of "", "30d", "90d", "1y"`)
	}
	t := now.Add(d)
	return &t, nil
}
