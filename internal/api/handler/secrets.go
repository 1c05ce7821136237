package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/totpvault/internal/api/middleware"
	"github.com/kiranshivaraju/totpvault/internal/api/response"
	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/internal/secrets"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// Secrets is the secret store adapter as seen by the /secrets and /tokens
// handlers.
type Secrets interface {
	Create(ctx context.Context, p auth.Principal, in secrets.CreateInput) (*models.OTPSecret, error)
	ImportURI(ctx context.Context, p auth.Principal, uri string, categoryID *uuid.UUID) (*models.OTPSecret, error)
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*models.OTPSecret, error)
	URI(ctx context.Context, p auth.Principal, id uuid.UUID) (string, error)
	List(ctx context.Context, p auth.Principal, f secrets.ListFilter) ([]*models.OTPSecret, error)
	Update(ctx context.Context, p auth.Principal, id uuid.UUID, in secrets.UpdateInput) (*models.OTPSecret, error)
	Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error
	BatchDelete(ctx context.Context, p auth.Principal, ids []uuid.UUID) ([]secrets.ItemResult, error)
	BatchSetCategory(ctx context.Context, p auth.Principal, ids []uuid.UUID, categoryID *uuid.UUID) ([]secrets.ItemResult, error)
	Reorder(ctx context.Context, p auth.Principal, items []secrets.OrderItem) error
	ToggleFavorite(ctx context.Context, p auth.Principal, id uuid.UUID) (bool, error)
	TogglePinned(ctx context.Context, p auth.Principal, id uuid.UUID) (bool, error)
	RecordUse(ctx context.Context, p auth.Principal, id uuid.UUID) error
	Token(ctx context.Context, p auth.Principal, id uuid.UUID) (*secrets.Token, error)
	Tokens(ctx context.Context, p auth.Principal, f secrets.ListFilter) ([]secrets.Token, error)
}

// optionalUUID tells an absent field apart from an explicit null.
type optionalUUID struct {
	Set   bool
	Value *uuid.UUID
}

func (o *optionalUUID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(b, []byte("null")) {
		o.Value = nil
		return nil
	}
	var id uuid.UUID
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	o.Value = &id
	return nil
}

// listFilter reads the shared query parameters of the list endpoints.
func listFilter(r *http.Request) (secrets.ListFilter, error) {
	var (
		f   secrets.ListFilter
		err error
	)
	q := r.URL.Query()
	f.Search = q.Get("search")
	if f.CategoryID, err = queryUUID(r, "category_id"); err != nil {
		return f, err
	}
	if f.TagID, err = queryUUID(r, "tag_id"); err != nil {
		return f, err
	}
	if f.Favorite, err = queryBool(r, "favorite"); err != nil {
		return f, err
	}
	if f.Pinned, err = queryBool(r, "pinned"); err != nil {
		return f, err
	}
	all, err := queryBool(r, "all")
	if err != nil {
		return f, err
	}
	f.AllOwners = all != nil && *all
	return f, nil
}

// NewListSecretsHandler returns an http.HandlerFunc for GET /api/v1/secrets.
func NewListSecretsHandler(svc Secrets) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := listFilter(r)
		if err != nil {
			response.Fail(w, err)
			return
		}
		list, err := svc.List(r.Context(), mw.PrincipalFrom(r), f)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Collection(w, list, len(list))
	}
}

// NewCreateSecretHandler returns an http.HandlerFunc for POST /api/v1/secrets.
func NewCreateSecretHandler(svc Secrets) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name       string      `json:"name"`
			Issuer     string      `json:"issuer"`
			Secret     string      `json:"secret"`
			Algorithm  string      `json:"algorithm"`
			Digits     int         `json:"digits"`
			Period     int         `json:"period"`
			CategoryID *uuid.UUID  `json:"category_id"`
			Note       string      `json:"note"`
			Icon       string      `json:"icon"`
			Favorite   bool        `json:"favorite"`
			Pinned     bool        `json:"pinned"`
			SortOrder  int         `json:"sort_order"`
			TagIDs     []uuid.UUID `json:"tag_ids"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}

		sec, err := svc.Create(r.Context(), mw.PrincipalFrom(r), secrets.CreateInput{
			Name:       req.Name,
			Issuer:     req.Issuer,
			Secret:     req.Secret,
			Algorithm:  req.Algorithm,
			Digits:     req.Digits,
			Period:     req.Period,
			CategoryID: req.CategoryID,
			Note:       req.Note,
			Icon:       req.Icon,
			Favorite:   req.Favorite,
			Pinned:     req.Pinned,
			SortOrder:  req.SortOrder,
			TagIDs:     req.TagIDs,
		})
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Created(w, sec)
	}
}

// NewImportURIHandler returns an http.HandlerFunc for
// POST /api/v1/secrets/import-uri.
func NewImportURIHandler(svc Secrets) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL        string     `json:"url"`
			CategoryID *uuid.UUID `json:"category_id"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		if req.URL == "" {
			response.Fail(w, apperr.Validation("url is required"))
			return
		}
		sec, err := svc.ImportURI(r.Context(), mw.PrincipalFrom(r), req.URL, req.CategoryID)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Created(w, sec)
	}
}

// NewGetSecretHandler returns an http.HandlerFunc for GET /api/v1/secrets/{id}.
func NewGetSecretHandler(svc Secrets) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		sec, err := svc.Get(r.Context(), mw.PrincipalFrom(r), id)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, sec)
	})
}

// NewSecretURIHandler returns an http.HandlerFunc for GET /api/v1/secrets/{id}/uri.
func NewSecretURIHandler(svc Secrets) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		uri, err := svc.URI(r.Context(), mw.PrincipalFrom(r), id)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, map[string]string{"uri": uri})
	})
}

// NewUpdateSecretHandler returns an http.HandlerFunc for PUT /api/v1/secrets/{id}.
// Fields left out of the body are unchanged; "category_id": null clears the
// category.
func NewUpdateSecretHandler(svc Secrets) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		var req struct {
			Name       *string      `json:"name"`
			Issuer     *string      `json:"issuer"`
			Secret     *string      `json:"secret"`
			Algorithm  *string      `json:"algorithm"`
			Digits     *int         `json:"digits"`
			Period     *int         `json:"period"`
			CategoryID optionalUUID `json:"category_id"`
			Note       *string      `json:"note"`
			Icon       *string      `json:"icon"`
			Favorite   *bool        `json:"favorite"`
			Pinned     *bool        `json:"pinned"`
			SortOrder  *int         `json:"sort_order"`
			TagIDs     *[]uuid.UUID `json:"tag_ids"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}

		sec, err := svc.Update(r.Context(), mw.PrincipalFrom(r), id, secrets.UpdateInput{
			Name:          req.Name,
			Issuer:        req.Issuer,
			Secret:        req.Secret,
			Algorithm:     req.Algorithm,
			Digits:        req.Digits,
			Period:        req.Period,
			CategoryID:    req.CategoryID.Value,
			ClearCategory: req.CategoryID.Set && req.CategoryID.Value == nil,
			Note:          req.Note,
			Icon:          req.Icon,
			Favorite:      req.Favorite,
			Pinned:        req.Pinned,
			SortOrder:     req.SortOrder,
			TagIDs:        req.TagIDs,
		})
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, sec)
	})
}

// NewDeleteSecretHandler returns an http.HandlerFunc for DELETE /api/v1/secrets/{id}.
func NewDeleteSecretHandler(svc Secrets) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		if err := svc.Delete(r.Context(), mw.PrincipalFrom(r), id); err != nil {
			response.Fail(w, err)
			return
		}
		response.NoContent(w)
	})
}

// NewBatchDeleteHandler returns an http.HandlerFunc for
// POST /api/v1/secrets/batch-delete.
func NewBatchDeleteHandler(svc Secrets) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []uuid.UUID `json:"ids"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		results, err := svc.BatchDelete(r.Context(), mw.PrincipalFrom(r), req.IDs)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, results)
	}
}

// NewBatchCategoryHandler returns an http.HandlerFunc for
// POST /api/v1/secrets/batch-category.
func NewBatchCategoryHandler(svc Secrets) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs        []uuid.UUID `json:"ids"`
			CategoryID *uuid.UUID  `json:"category_id"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		results, err := svc.BatchSetCategory(r.Context(), mw.PrincipalFrom(r), req.IDs, req.CategoryID)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, results)
	}
}

// NewReorderHandler returns an http.HandlerFunc for PUT /api/v1/secrets/reorder.
func NewReorderHandler(svc Secrets) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Items []secrets.OrderItem `json:"items"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		if len(req.Items) == 0 {
			response.Fail(w, apperr.Validation("items are required"))
			return
		}
		if err := svc.Reorder(r.Context(), mw.PrincipalFrom(r), req.Items); err != nil {
			response.Fail(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewToggleFavoriteHandler returns an http.HandlerFunc for
// POST /api/v1/secrets/{id}/favorite.
func NewToggleFavoriteHandler(svc Secrets) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		v, err := svc.ToggleFavorite(r.Context(), mw.PrincipalFrom(r), id)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, map[string]bool{"favorite": v})
	})
}

// NewTogglePinnedHandler returns an http.HandlerFunc for
// POST /api/v1/secrets/{id}/pin.
func NewTogglePinnedHandler(svc Secrets) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		v, err := svc.TogglePinned(r.Context(), mw.PrincipalFrom(r), id)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, map[string]bool{"pinned": v})
	})
}

// NewRecordUseHandler returns an http.HandlerFunc for POST /api/v1/secrets/{id}/use.
func NewRecordUseHandler(svc Secrets) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		if err := svc.RecordUse(r.Context(), mw.PrincipalFrom(r), id); err != nil {
			response.Fail(w, err)
			return
		}
		response.NoContent(w)
	})
}

// NewTokenHandler returns an http.HandlerFunc for GET /api/v1/secrets/{id}/token.
func NewTokenHandler(svc Secrets) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		tok, err := svc.Token(r.Context(), mw.PrincipalFrom(r), id)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, tok)
	})
}

// NewTokensHandler returns an http.HandlerFunc for GET /api/v1/tokens.
func NewTokensHandler(svc Secrets) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := listFilter(r)
		if err != nil {
			response.Fail(w, err)
			return
		}
		toks, err := svc.Tokens(r.Context(), mw.PrincipalFrom(r), f)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Collection(w, toks, len(toks))
	}
}

// withID parses the {id} URL parameter before calling fn.
func withID(fn func(w http.ResponseWriter, r *http.Request, id uuid.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			response.Fail(w, err)
			return
		}
		fn(w, r, id)
	}
}
