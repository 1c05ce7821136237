package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/internal/otp"
	"github.com/kiranshivaraju/totpvault/internal/store"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

const resourceSecret = "secret"

// CreateInput describes a new secret.
type CreateInput struct {
	Name       string
	Issuer     string
	Secret     string
	Algorithm  string
	Digits     int
	Period     int
	CategoryID *uuid.UUID
	Note       string
	Icon       string
	Favorite   bool
	Pinned     bool
	SortOrder  int
	TagIDs     []uuid.UUID
}

// Create validates and stores a new secret owned by the caller. Secrets that
// would not decode are rejected before anything is written. Without a
// category the caller's default category is used.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (*models.OTPSecret, error) {
	if err := auth.RequireWrite(p); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	secret := otp.NormalizeSecret(in.Secret)
	if secret == "" {
		return nil, apperr.Validation("secret is required")
	}
	if err := otp.ValidateSecret(secret); err != nil {
		return nil, apperr.InvalidSecretFormat(err)
	}
	params, err := validParams(otp.Params{Digits: in.Digits, Period: in.Period, Algorithm: in.Algorithm})
	if err != nil {
		return nil, err
	}

	categoryID, err := s.resolveCategory(ctx, p.AccountID, in.CategoryID)
	if err != nil {
		return nil, err
	}
	tagIDs, err := s.checkTags(ctx, p.AccountID, in.TagIDs)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sec := &models.OTPSecret{
		ID:         uuid.New(),
		OwnerID:    p.AccountID,
		Name:       name,
		Issuer:     strings.TrimSpace(in.Issuer),
		Secret:     secret,
		Algorithm:  params.Algorithm,
		Digits:     params.Digits,
		Period:     params.Period,
		CategoryID: categoryID,
		Note:       in.Note,
		Icon:       in.Icon,
		Favorite:   in.Favorite,
		Pinned:     in.Pinned,
		SortOrder:  in.SortOrder,
		TagIDs:     tagIDs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateSecret(ctx, sec); err != nil {
		return nil, fmt.Errorf("create secret: %w", err)
	}
	return s.repo.GetSecret(ctx, sec.ID)
}

// ImportURI creates a secret from an otpauth:// provisioning URI.
func (s *Service) ImportURI(ctx context.Context, p auth.Principal, uri string, categoryID *uuid.UUID) (*models.OTPSecret, error) {
	if err := auth.RequireWrite(p); err != nil {
		return nil, err
	}
	key, err := otp.ParseURI(uri)
	if err != nil {
		if errors.Is(err, otp.ErrInvalidSecret) {
			return nil, apperr.InvalidSecretFormat(err)
		}
		return nil, apperr.Validation(err.Error())
	}
	name := key.Name
	if name == "" {
		name = key.Issuer
	}
	return s.Create(ctx, p, CreateInput{
		Name:       name,
		Issuer:     key.Issuer,
		Secret:     key.Secret,
		Algorithm:  key.Params.Algorithm,
		Digits:     key.Params.Digits,
		Period:     key.Params.Period,
		CategoryID: categoryID,
	})
}

// Get returns one secret including its raw shared secret.
func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*models.OTPSecret, error) {
	return s.load(ctx, p, id, true, "read")
}

// URI returns the otpauth:// provisioning URI of a secret.
func (s *Service) URI(ctx context.Context, p auth.Principal, id uuid.UUID) (string, error) {
	sec, err := s.load(ctx, p, id, true, "export_uri")
	if err != nil {
		return "", err
	}
	return otp.BuildURI(otp.Key{
		Type:   "totp",
		Name:   sec.Name,
		Issuer: sec.Issuer,
		Secret: sec.Secret,
		Params: otp.Params{Digits: sec.Digits, Period: sec.Period, Algorithm: sec.Algorithm},
	}), nil
}

// ListFilter narrows List. AllOwners is honored for admins only.
type ListFilter struct {
	Search     string
	CategoryID *uuid.UUID
	TagID      *uuid.UUID
	Favorite   *bool
	Pinned     *bool
	AllOwners  bool
}

// List returns the caller's secrets in display order with the shared secret
// masked.
func (s *Service) List(ctx context.Context, p auth.Principal, f ListFilter) ([]*models.OTPSecret, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	filter := store.SecretFilter{
		Search:     f.Search,
		CategoryID: f.CategoryID,
		TagID:      f.TagID,
		Favorite:   f.Favorite,
		Pinned:     f.Pinned,
	}
	if f.AllOwners && p.IsAdmin() {
		slog.Warn("admin ownership override", "actor", p.AccountID, "resource", resourceSecret, "action", "list_all")
		s.logOperation(ctx, p, "admin_override:list_all", resourceSecret, nil, "")
	} else {
		owner := p.AccountID
		filter.OwnerID = &owner
	}

	list, err := s.repo.ListSecrets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	return mask(list), nil
}

// UpdateInput holds the editable fields of a secret. Nil means unchanged.
// Secret set to MaskedSecret also means unchanged.
type UpdateInput struct {
	Name          *string
	Issuer        *string
	Secret        *string
	Algorithm     *string
	Digits        *int
	Period        *int
	CategoryID    *uuid.UUID
	ClearCategory bool
	Note          *string
	Icon          *string
	Favorite      *bool
	Pinned        *bool
	SortOrder     *int
	TagIDs        *[]uuid.UUID
}

// Update edits a secret. Admins may edit any secret; that path is audited.
func (s *Service) Update(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateInput) (*models.OTPSecret, error) {
	if err := auth.RequireWrite(p); err != nil {
		return nil, err
	}
	sec, err := s.load(ctx, p, id, true, "update")
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperr.Validation("name is required")
		}
		sec.Name = name
	}
	if in.Issuer != nil {
		sec.Issuer = strings.TrimSpace(*in.Issuer)
	}
	if in.Secret != nil && *in.Secret != MaskedSecret {
		secret := otp.NormalizeSecret(*in.Secret)
		if secret == "" {
			return nil, apperr.Validation("secret is required")
		}
		if err := otp.ValidateSecret(secret); err != nil {
			return nil, apperr.InvalidSecretFormat(err)
		}
		sec.Secret = secret
	}

	params := otp.Params{Digits: sec.Digits, Period: sec.Period, Algorithm: sec.Algorithm}
	if in.Digits != nil {
		params.Digits = *in.Digits
	}
	if in.Period != nil {
		params.Period = *in.Period
	}
	if in.Algorithm != nil {
		params.Algorithm = *in.Algorithm
	}
	params, err = validParams(params)
	if err != nil {
		return nil, err
	}
	sec.Digits, sec.Period, sec.Algorithm = params.Digits, params.Period, params.Algorithm

	switch {
	case in.ClearCategory:
		sec.CategoryID = nil
	case in.CategoryID != nil:
		if _, err := s.visibleCategory(ctx, sec.OwnerID, *in.CategoryID); err != nil {
			return nil, err
		}
		sec.CategoryID = in.CategoryID
	}
	if in.Note != nil {
		sec.Note = *in.Note
	}
	if in.Icon != nil {
		sec.Icon = *in.Icon
	}
	if in.Favorite != nil {
		sec.Favorite = *in.Favorite
	}
	if in.Pinned != nil {
		sec.Pinned = *in.Pinned
	}
	if in.SortOrder != nil {
		sec.SortOrder = *in.SortOrder
	}
	if in.TagIDs != nil {
		tagIDs, err := s.checkTags(ctx, sec.OwnerID, *in.TagIDs)
		if err != nil {
			return nil, err
		}
		sec.TagIDs = tagIDs
	}
	sec.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateSecret(ctx, sec, in.TagIDs != nil); err != nil {
		return nil, notFound(err, resourceSecret)
	}
	return s.repo.GetSecret(ctx, sec.ID)
}

// Delete removes a secret. Admins may delete any secret; that path is audited.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := auth.RequireWrite(p); err != nil {
		return err
	}
	if _, err := s.load(ctx, p, id, true, "delete"); err != nil {
		return err
	}
	if err := s.repo.DeleteSecret(ctx, id); err != nil {
		return notFound(err, resourceSecret)
	}
	return nil
}

// BatchDelete deletes each secret independently and reports per-item results.
func (s *Service) BatchDelete(ctx context.Context, p auth.Principal, ids []uuid.UUID) ([]ItemResult, error) {
	if err := auth.RequireWrite(p); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperr.Validation("ids are required")
	}
	results := make([]ItemResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, toResult(id, s.Delete(ctx, p, id)))
	}
	return results, nil
}

// BatchSetCategory moves each secret to categoryID independently. A nil
// categoryID clears the category.
func (s *Service) BatchSetCategory(ctx context.Context, p auth.Principal, ids []uuid.UUID, categoryID *uuid.UUID) ([]ItemResult, error) {
	if err := auth.RequireWrite(p); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperr.Validation("ids are required")
	}
	results := make([]ItemResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, toResult(id, s.setCategory(ctx, p, id, categoryID)))
	}
	return results, nil
}

func (s *Service) setCategory(ctx context.Context, p auth.Principal, id uuid.UUID, categoryID *uuid.UUID) error {
	sec, err := s.load(ctx, p, id, true, "set_category")
	if err != nil {
		return err
	}
	if categoryID != nil {
		if _, err := s.visibleCategory(ctx, sec.OwnerID, *categoryID); err != nil {
			return err
		}
	}
	if err := s.repo.SetSecretCategory(ctx, id, categoryID); err != nil {
		return notFound(err, resourceSecret)
	}
	return nil
}

// OrderItem assigns a sort position to one secret.
type OrderItem struct {
	ID        uuid.UUID `json:"id"`
	SortOrder int       `json:"sort_order"`
}

// Reorder sets sort_order on the caller's secrets. Every id is checked before
// any position is written.
func (s *Service) Reorder(ctx context.Context, p auth.Principal, items []OrderItem) error {
	if err := auth.RequireWrite(p); err != nil {
		return err
	}
	for _, it := range items {
		if _, err := s.load(ctx, p, it.ID, false, "reorder"); err != nil {
			return err
		}
	}
	for _, it := range items {
		if err := s.repo.SetSecretSortOrder(ctx, it.ID, it.SortOrder); err != nil {
			return notFound(err, resourceSecret)
		}
	}
	return nil
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *Service) ToggleFavorite(ctx context.Context, p auth.Principal, id uuid.UUID) (bool, error) {
	if err := auth.RequireWrite(p); err != nil {
		return false, err
	}
	if _, err := s.load(ctx, p, id, true, "toggle_favorite"); err != nil {
		return false, err
	}
	v, err := s.repo.ToggleSecretFavorite(ctx, id)
	if err != nil {
		return false, notFound(err, resourceSecret)
	}
	return v, nil
}

// TogglePinned flips the pinned flag and returns the new value.
func (s *Service) TogglePinned(ctx context.Context, p auth.Principal, id uuid.UUID) (bool, error) {
	if err := auth.RequireWrite(p); err != nil {
		return false, err
	}
	if _, err := s.load(ctx, p, id, true, "toggle_pinned"); err != nil {
		return false, err
	}
	v, err := s.repo.ToggleSecretPinned(ctx, id)
	if err != nil {
		return false, notFound(err, resourceSecret)
	}
	return v, nil
}

// RecordUse counts one use of the caller's secret. The usage log entry is
// best effort and never fails the call.
func (s *Service) RecordUse(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if _, err := s.load(ctx, p, id, false, "use"); err != nil {
		return err
	}
	return s.recordUse(ctx, p, id, "use")
}

func (s *Service) recordUse(ctx context.Context, p auth.Principal, id uuid.UUID, action string) error {
	now := s.now().UTC()
	if err := s.repo.RecordSecretUse(ctx, id, now); err != nil {
		return notFound(err, resourceSecret)
	}
	if !s.usageLogEnabled(ctx) {
		return nil
	}
	entry := &models.UsageLog{
		ID:        uuid.New(),
		SecretID:  id,
		AccountID: p.AccountID,
		Action:    action,
		CreatedAt: now,
	}
	if err := s.repo.CreateUsageLog(ctx, entry); err != nil {
		slog.Error("usage log write failed", "secret_id", id, "error", err)
	}
	return nil
}

// load fetches a secret and checks ownership before returning it.
func (s *Service) load(ctx context.Context, p auth.Principal, id uuid.UUID, allowAdmin bool, action string) (*models.OTPSecret, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	sec, err := s.repo.GetSecret(ctx, id)
	if err != nil {
		return nil, notFound(err, resourceSecret)
	}
	if err := s.authorize(ctx, p, sec.OwnerID, allowAdmin, resourceSecret, id, action); err != nil {
		return nil, err
	}
	return sec, nil
}

// resolveCategory returns the category a new secret should land in.
func (s *Service) resolveCategory(ctx context.Context, ownerID uuid.UUID, requested *uuid.UUID) (*uuid.UUID, error) {
	if requested != nil {
		cat, err := s.visibleCategory(ctx, ownerID, *requested)
		if err != nil {
			return nil, err
		}
		return &cat.ID, nil
	}
	cat, err := s.repo.GetDefaultCategory(ctx, ownerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load default category: %w", err)
	}
	return &cat.ID, nil
}

// visibleCategory loads a category that ownerID may file secrets under.
func (s *Service) visibleCategory(ctx context.Context, ownerID, id uuid.UUID) (*models.Category, error) {
	cat, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return nil, notFound(err, "category")
	}
	if cat.OwnerID != nil && *cat.OwnerID != ownerID {
		return nil, apperr.Forbidden("category belongs to another account")
	}
	return cat, nil
}

// checkTags verifies every tag belongs to ownerID and drops duplicates.
func (s *Service) checkTags(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		tag, err := s.repo.GetTag(ctx, id)
		if err != nil {
			return nil, notFound(err, "tag")
		}
		if tag.OwnerID != ownerID {
			return nil, apperr.Forbidden("tag belongs to another account")
		}
		out = append(out, id)
	}
	return out, nil
}

func validParams(p otp.Params) (otp.Params, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return p, apperr.Validation(err.Error())
	}
	return p, nil
}

func mask(list []*models.OTPSecret) []*models.OTPSecret {
	for _, sec := range list {
		sec.Secret = MaskedSecret
	}
	return list
}

func toResult(id uuid.UUID, err error) ItemResult {
	if err != nil {
		return ItemResult{ID: id, Error: itemError(err)}
	}
	return ItemResult{ID: id, OK: true}
}
