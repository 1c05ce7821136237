package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/totpvault/internal/api/middleware"
	"github.com/kiranshivaraju/totpvault/internal/api/response"
	"github.com/kiranshivaraju/totpvault/internal/apikey"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// APIKeys is the API key service as seen by the /api-keys handlers.
type APIKeys interface {
	Create(ctx context.Context, p auth.Principal, in apikey.CreateInput) (*apikey.Created, error)
	List(ctx context.Context, p auth.Principal) ([]*models.APIKey, error)
	Update(ctx context.Context, p auth.Principal, id uuid.UUID, in apikey.UpdateInput) (*models.APIKey, error)
	Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error
}

// NewListAPIKeysHandler returns an http.HandlerFunc for GET /api/v1/api-keys.
func NewListAPIKeysHandler(svc APIKeys) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := svc.List(r.Context(), mw.PrincipalFrom(r))
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Collection(w, keys, len(keys))
	}
}

// NewCreateAPIKeyHandler returns an http.HandlerFunc for POST /api/v1/api-keys.
// The plaintext key appears in this response only.
func NewCreateAPIKeyHandler(svc APIKeys) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name        string `json:"name"`
			Permissions string `json:"permissions"`
			ExpiresIn   string `json:"expires_in"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		created, err := svc.Create(r.Context(), mw.PrincipalFrom(r), apikey.CreateInput{
			Name:        req.Name,
			Permissions: req.Permissions,
			ExpiresIn:   req.ExpiresIn,
		})
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Created(w, created)
	}
}

// NewUpdateAPIKeyHandler returns an http.HandlerFunc for PUT /api/v1/api-keys/{id}.
func NewUpdateAPIKeyHandler(svc APIKeys) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		var req struct {
			Name        *string `json:"name"`
			Permissions *string `json:"permissions"`
			Active      *bool   `json:"active"`
			ExpiresIn   *string `json:"expires_in"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		key, err := svc.Update(r.Context(), mw.PrincipalFrom(r), id, apikey.UpdateInput{
			Name:        req.Name,
			Permissions: req.Permissions,
			Active:      req.Active,
			ExpiresIn:   req.ExpiresIn,
		})
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, key)
	})
}

// NewDeleteAPIKeyHandler returns an http.HandlerFunc for DELETE /api/v1/api-keys/{id}.
func NewDeleteAPIKeyHandler(svc APIKeys) http.HandlerFunc {
	return withID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
		if err := svc.Delete(r.Context(), mw.PrincipalFrom(r), id); err != nil {
			response.Fail(w, err)
			return
		}
		response.NoContent(w)
	})
}
