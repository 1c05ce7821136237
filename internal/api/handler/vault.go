package handler

import (
	"context"
	"net/http"

	mw "github.com/kiranshivaraju/totpvault/internal/api/middleware"
	"github.com/kiranshivaraju/totpvault/internal/api/response"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/internal/vault"
)

// Vault is the vault session service as seen by the /auth handlers.
type Vault interface {
	Set(ctx context.Context, p auth.Principal, password, hint string) error
	Unlock(ctx context.Context, password string) (*vault.Session, error)
	Change(ctx context.Context, p auth.Principal, oldPassword, newPassword, hint string) error
	Lock(ctx context.Context, token string) error
	Status(ctx context.Context, token string) (*vault.Status, error)
	Hint(ctx context.Context) (string, error)
}

// NewSetMasterPasswordHandler returns an http.HandlerFunc for
// POST /api/v1/auth/set-master-password.
func NewSetMasterPasswordHandler(svc Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Password string `json:"password"`
			Hint     string `json:"hint"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		if err := svc.Set(r.Context(), mw.PrincipalFrom(r), req.Password, req.Hint); err != nil {
			response.Fail(w, err)
			return
		}
		response.Created(w, map[string]bool{"has_master_password": true})
	}
}

// NewUnlockHandler returns an http.HandlerFunc for POST /api/v1/auth/unlock.
func NewUnlockHandler(svc Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Password string `json:"password"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		sess, err := svc.Unlock(r.Context(), req.Password)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, sess)
	}
}

// NewLockHandler returns an http.HandlerFunc for POST /api/v1/auth/lock.
func NewLockHandler(svc Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Lock(r.Context(), mw.VaultToken(r)); err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, map[string]bool{"locked": true})
	}
}

// NewChangeMasterPasswordHandler returns an http.HandlerFunc for
// POST /api/v1/auth/change-master-password.
func NewChangeMasterPasswordHandler(svc Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OldPassword string `json:"old_password"`
			NewPassword string `json:"new_password"`
			Hint        string `json:"hint"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		err := svc.Change(r.Context(), mw.PrincipalFrom(r), req.OldPassword, req.NewPassword, req.Hint)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, map[string]bool{"sessions_invalidated": true})
	}
}

// NewVaultStatusHandler returns an http.HandlerFunc for GET /api/v1/auth/status.
func NewVaultStatusHandler(svc Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Status(r.Context(), mw.VaultToken(r))
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, st)
	}
}

// NewPasswordHintHandler returns an http.HandlerFunc for
// GET /api/v1/auth/password-hint.
func NewPasswordHintHandler(svc Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hint, err := svc.Hint(r.Context())
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, map[string]string{"hint": hint})
	}
}
