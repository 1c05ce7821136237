package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/internal/store"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

const (
	resourceCategory = "category"
	resourceTag      = "tag"

	defaultColor = "#1890ff"
	maxLabelName = 50
)

// --- Categories ---

// ListCategories returns the global categories plus the caller's own.
func (s *Service) ListCategories(ctx context.Context, p auth.Principal) ([]*models.Category, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	owner := p.AccountID
	cats, err := s.repo.ListCategories(ctx, &owner)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// CategoryInput describes a category. Global requires admin.
type CategoryInput struct {
	Name        string
	Description string
	Icon        string
	Color       string
	SortOrder   int
	Global      bool
}

// CreateCategory adds a private category, or a global one for admins.
func (s *Service) CreateCategory(ctx context.Context, p auth.Principal, in CategoryInput) (*models.Category, error) {
	if err := auth.RequireWrite(p); err != nil {
		return nil, err
	}
	name, err := labelName(in.Name)
	if err != nil {
		return nil, err
	}
	cat := &models.Category{
		ID:          uuid.New(),
		Name:        name,
		Description: in.Description,
		Icon:        in.Icon,
		Color:       colorOrDefault(in.Color),
		SortOrder:   in.SortOrder,
		CreatedAt:   s.now().UTC(),
	}
	if in.Global {
		if err := auth.RequireAdmin(p); err != nil {
			return nil, err
		}
	} else {
		owner := p.AccountID
		cat.OwnerID = &owner
	}

	if err := s.repo.CreateCategory(ctx, cat); err != nil {
		return nil, labelWriteError(err, resourceCategory)
	}
	return cat, nil
}

// CategoryUpdate holds editable category fields. Nil means unchanged.
type CategoryUpdate struct {
	Name        *string
	Description *string
	Icon        *string
	Color       *string
	SortOrder   *int
}

// UpdateCategory edits a category. Global categories are admin only.
func (s *Service) UpdateCategory(ctx context.Context, p auth.Principal, id uuid.UUID, in CategoryUpdate) (*models.Category, error) {
	if err := auth.RequireWrite(p); err != nil {
		return nil, err
	}
	cat, err := s.loadCategory(ctx, p, id, "update")
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name, err := labelName(*in.Name)
		if err != nil {
			return nil, err
		}
		cat.Name = name
	}
	if in.Description != nil {
		cat.Description = *in.Description
	}
	if in.Icon != nil {
		cat.Icon = *in.Icon
	}
	if in.Color != nil {
		cat.Color = colorOrDefault(*in.Color)
	}
	if in.SortOrder != nil {
		cat.SortOrder = *in.SortOrder
	}
	if err := s.repo.UpdateCategory(ctx, cat); err != nil {
		return nil, labelWriteError(err, resourceCategory)
	}
	return cat, nil
}

// DeleteCategory removes a category and moves its secrets to the owner's
// default category. Default categories cannot be deleted. It returns how many
// secrets were moved.
func (s *Service) DeleteCategory(ctx context.Context, p auth.Principal, id uuid.UUID) (int64, error) {
	if err := auth.RequireWrite(p); err != nil {
		return 0, err
	}
	cat, err := s.loadCategory(ctx, p, id, "delete")
	if err != nil {
		return 0, err
	}
	if cat.IsDefault {
		return 0, apperr.Validation("the default category cannot be deleted")
	}

	owner := uuid.Nil
	if cat.OwnerID != nil {
		owner = *cat.OwnerID
	}
	target, err := s.repo.GetDefaultCategory(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("load default category: %w", err)
	}
	moved, err := s.repo.DeleteCategory(ctx, cat.ID, target.ID)
	if err != nil {
		return 0, notFound(err, resourceCategory)
	}
	s.logOperation(ctx, p, "delete_category", resourceCategory, &cat.ID, fmt.Sprintf("moved %d secrets", moved))
	return moved, nil
}

// loadCategory fetches a category the caller may modify.
func (s *Service) loadCategory(ctx context.Context, p auth.Principal, id uuid.UUID, action string) (*models.Category, error) {
	cat, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return nil, notFound(err, resourceCategory)
	}
	if cat.IsGlobal() {
		if err := auth.RequireAdmin(p); err != nil {
			return nil, err
		}
		return cat, nil
	}
	if err := s.authorize(ctx, p, *cat.OwnerID, true, resourceCategory, id, action); err != nil {
		return nil, err
	}
	return cat, nil
}

// --- Tags ---

// ListTags returns the caller's tags with secret counts.
func (s *Service) ListTags(ctx context.Context, p auth.Principal) ([]*models.Tag, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	owner := p.AccountID
	tags, err := s.repo.ListTags(ctx, &owner)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// TagInput describes a tag. Nil fields are unchanged on update.
type TagInput struct {
	Name  *string
	Color *string
}

// CreateTag adds a tag owned by the caller.
func (s *Service) CreateTag(ctx context.Context, p auth.Principal, in TagInput) (*models.Tag, error) {
	if err := auth.RequireWrite(p); err != nil {
		return nil, err
	}
	var raw, color string
	if in.Name != nil {
		raw = *in.Name
	}
	if in.Color != nil {
		color = *in.Color
	}
	name, err := labelName(raw)
	if err != nil {
		return nil, err
	}
	tag := &models.Tag{
		ID:        uuid.New(),
		OwnerID:   p.AccountID,
		Name:      name,
		Color:     colorOrDefault(color),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateTag(ctx, tag); err != nil {
		return nil, labelWriteError(err, resourceTag)
	}
	return tag, nil
}

// UpdateTag renames or recolors a tag.
func (s *Service) UpdateTag(ctx context.Context, p auth.Principal, id uuid.UUID, in TagInput) (*models.Tag, error) {
	if err := auth.RequireWrite(p); err != nil {
		return nil, err
	}
	tag, err := s.loadTag(ctx, p, id, "update")
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name, err := labelName(*in.Name)
		if err != nil {
			return nil, err
		}
		tag.Name = name
	}
	if in.Color != nil {
		tag.Color = colorOrDefault(*in.Color)
	}
	if err := s.repo.UpdateTag(ctx, tag); err != nil {
		return nil, labelWriteError(err, resourceTag)
	}
	return tag, nil
}

// DeleteTag removes a tag and its secret associations.
func (s *Service) DeleteTag(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := auth.RequireWrite(p); err != nil {
		return err
	}
	if _, err := s.loadTag(ctx, p, id, "delete"); err != nil {
		return err
	}
	if err := s.repo.DeleteTag(ctx, id); err != nil {
		return notFound(err, resourceTag)
	}
	return nil
}

// TagSecrets lists the secrets carrying a tag, masked.
func (s *Service) TagSecrets(ctx context.Context, p auth.Principal, id uuid.UUID) ([]*models.OTPSecret, error) {
	tag, err := s.loadTag(ctx, p, id, "list_secrets")
	if err != nil {
		return nil, err
	}
	owner := tag.OwnerID
	list, err := s.repo.ListSecrets(ctx, store.SecretFilter{OwnerID: &owner, TagID: &tag.ID})
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	return mask(list), nil
}

func (s *Service) loadTag(ctx context.Context, p auth.Principal, id uuid.UUID, action string) (*models.Tag, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	tag, err := s.repo.GetTag(ctx, id)
	if err != nil {
		return nil, notFound(err, resourceTag)
	}
	if err := s.authorize(ctx, p, tag.OwnerID, true, resourceTag, id, action); err != nil {
		return nil, err
	}
	return tag, nil
}

func labelName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len(name) > maxLabelName {
		return "", apperr.Validation(fmt.Sprintf("name is required and must be at most %d characters", maxLabelName))
	}
	return name, nil
}

func colorOrDefault(c string) string {
	if c = strings.TrimSpace(c); c == "" {
		return defaultColor
	}
	return c
}

func labelWriteError(err error, resource string) error {
	if errors.Is(err, store.ErrDuplicateKey) {
		return apperr.Conflict(resource + " name already exists")
	}
	return notFound(err, resource)
}
