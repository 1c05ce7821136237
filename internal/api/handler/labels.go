package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/totpvault/internal/api/middleware"
	"github.com/kiranshivaraju/totpvault/internal/api/response"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/internal/secrets"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// Labels is the category and tag surface of the secret store adapter.
type Labels interface {
	ListCategories(ctx context.Context, p auth.Principal) ([]*models.Category, error)
	CreateCategory(ctx context.Context, p auth.Principal, in secrets.CategoryInput) (*models.Category, error)
	UpdateCategory(ctx context.Context, p auth.Principal, id uuid.UUID, in secrets.CategoryUpdate) (*models.Category, error)
	DeleteCategory(ctx context.Context, p auth.Principal, id uuid.UUID) (int64, error)

	ListTags(ctx context.Context, p auth.Principal) ([]*models.Tag, error)
	CreateTag(ctx context.Context, p auth.Principal, in secrets.TagInput) (*models.Tag, error)
	UpdateTag(ctx context.Context, p auth.Principal, id uuid.UUID, in secrets.TagInput) (*models.Tag, error)
	DeleteTag(ctx context.Context, p auth.Principal, id uuid.UUID) error
	TagSecrets(ctx context.Context, p auth.Principal, id uuid.UUID) ([]*models.OTPSecret, error)
}

// NewListCategoriesHandler returns an http.HandlerFunc for GET /api/v1/categories.
func NewListCategoriesHandler(svc Labels) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cats, err := svc.ListCategories(r.Context(), mw.PrincipalFrom(r))
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Collection(w, cats, len(cats))
	}
}

// NewCreateCategoryHandler returns an http.HandlerFunc for POST /api/v1/categories.
func NewCreateCategoryHandler(svc Labels) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Icon        string `json:"icon"`
			Color       string `json:"color"`
			SortOrder   int    `json:"sort_order"`
			Global      bool   `json:"global"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		cat, err := svc.CreateCategory(r.Context(), mw.PrincipalFrom(r), secrets.CategoryInput{
			Name:        req.Name,
			Description: req.Description,
			Icon:        req.Icon,
			Color:       req.Color,
			SortOrder:   req.SortOrder,
			Global:      req.Global,
		})
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Created(w, cat)
	}
}

// NewUpdateCategoryHandler returns an http.HandlerFunc for PUT /api/v1/categories/{id}.
func NewUpdateCategoryHandler(svc Labels) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		var req struct {
			Name        *string `json:"name"`
			Description *string `json:"description"`
			Icon        *string `json:"icon"`
			Color       *string `json:"color"`
			SortOrder   *int    `json:"sort_order"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		cat, err := svc.UpdateCategory(r.Context(), mw.PrincipalFrom(r), id, secrets.CategoryUpdate{
			Name:        req.Name,
			Description: req.Description,
			Icon:        req.Icon,
			Color:       req.Color,
			SortOrder:   req.SortOrder,
		})
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, cat)
	})
}

// NewDeleteCategoryHandler returns an http.HandlerFunc for
// DELETE /api/v1/categories/{id}. Secrets in the category move to the
// default category.
func NewDeleteCategoryHandler(svc Labels) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		moved, err := svc.DeleteCategory(r.Context(), mw.PrincipalFrom(r), id)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, map[string]int64{"moved_secrets": moved})
	})
}

// NewListTagsHandler returns an http.HandlerFunc for GET /api/v1/tags.
func NewListTagsHandler(svc Labels) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := svc.ListTags(r.Context(), mw.PrincipalFrom(r))
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Collection(w, tags, len(tags))
	}
}

type tagRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

// NewCreateTagHandler returns an http.HandlerFunc for POST /api/v1/tags.
func NewCreateTagHandler(svc Labels) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tagRequest
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		tag, err := svc.CreateTag(r.Context(), mw.PrincipalFrom(r), secrets.TagInput{Name: req.Name, Color: req.Color})
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Created(w, tag)
	}
}

// NewUpdateTagHandler returns an http.HandlerFunc for PUT /api/v1/tags/{id}.
func NewUpdateTagHandler(svc Labels) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		var req tagRequest
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		tag, err := svc.UpdateTag(r.Context(), mw.PrincipalFrom(r), id, secrets.TagInput{Name: req.Name, Color: req.Color})
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, tag)
	})
}

// NewDeleteTagHandler returns an http.HandlerFunc for DELETE /api/v1/tags/{id}.
func NewDeleteTagHandler(svc Labels) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		if err := svc.DeleteTag(r.Context(), mw.PrincipalFrom(r), id); err != nil {
			response.Fail(w, err)
			return
		}
		response.NoContent(w)
	})
}

// NewTagSecretsHandler returns an http.HandlerFunc for GET /api/v1/tags/{id}/secrets.
func NewTagSecretsHandler(svc Labels) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		list, err := svc.TagSecrets(r.Context(), mw.PrincipalFrom(r), id)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Collection(w, list, len(list))
	})
}
