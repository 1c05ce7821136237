package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/totpvault/internal/api/middleware"
	"github.com/kiranshivaraju/totpvault/internal/api/response"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// Accounts is the credential service as seen by the account handlers.
type Accounts interface {
	Register(ctx context.Context, in auth.RegisterInput) (*models.Account, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error)
	Profile(ctx context.Context, p auth.Principal) (*models.Account, *models.AccountStats, error)
	UpdateProfile(ctx context.Context, p auth.Principal, email string) (*models.Account, error)
	ChangePassword(ctx context.Context, p auth.Principal, oldPassword, newPassword string) error
}

type registerResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    *string   `json:"email,omitempty"`
}

// NewRegisterHandler returns an http.HandlerFunc for POST /api/v1/users/register.
func NewRegisterHandler(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Email    string `json:"email"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}

		acc, err := svc.Register(r.Context(), auth.RegisterInput{
			Username: req.Username,
			Password: req.Password,
			Email:    req.Email,
		})
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Created(w, registerResponse{ID: acc.ID, Username: acc.Username, Email: acc.Email})
	}
}

type loginResponse struct {
	Token     string          `json:"token"`
	TokenType string          `json:"token_type"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      *models.Account `json:"user"`
}

// NewLoginHandler returns an http.HandlerFunc for POST /api/v1/users/login.
func NewLoginHandler(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}

		res, err := svc.Login(r.Context(), auth.LoginInput{
			Username:  req.Username,
			Password:  req.Password,
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		})
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, loginResponse{
			Token:     res.Token,
			TokenType: "Bearer",
			ExpiresAt: res.ExpiresAt,
			User:      res.Account,
		})
	}
}

type profileResponse struct {
	*models.Account
	Stats *models.AccountStats `json:"stats"`
}

// NewProfileHandler returns an http.HandlerFunc for GET /api/v1/users/me.
func NewProfileHandler(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, stats, err := svc.Profile(r.Context(), mw.PrincipalFrom(r))
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, profileResponse{Account: acc, Stats: stats})
	}
}

// NewUpdateProfileHandler returns an http.HandlerFunc for PUT /api/v1/users/me.
func NewUpdateProfileHandler(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		acc, err := svc.UpdateProfile(r.Context(), mw.PrincipalFrom(r), req.Email)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, acc)
	}
}

// NewChangePasswordHandler returns an http.HandlerFunc for
// POST /api/v1/users/change-password.
func NewChangePasswordHandler(svc Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OldPassword string `json:"old_password"`
			NewPassword string `json:"new_password"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		if err := svc.ChangePassword(r.Context(), mw.PrincipalFrom(r), req.OldPassword, req.NewPassword); err != nil {
			response.Fail(w, err)
			return
		}
		response.NoContent(w)
	}
}
