package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/totpvault/internal/api/middleware"
	"github.com/kiranshivaraju/totpvault/internal/api/response"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

const (
	defaultLoginLogLimit = 100
	maxLoginLogLimit     = 1000
)

// Admin is the account administration surface of the credential service.
type Admin interface {
	ListUsers(ctx context.Context, p auth.Principal) ([]*models.Account, error)
	CreateUser(ctx context.Context, p auth.Principal, in auth.CreateUserInput) (*models.Account, error)
	UpdateUser(ctx context.Context, p auth.Principal, id uuid.UUID, in auth.UpdateUserInput) (*models.Account, error)
	DeleteUser(ctx context.Context, p auth.Principal, id uuid.UUID) error
	LoginLogs(ctx context.Context, p auth.Principal, limit int) ([]*models.LoginLog, error)
}

// SessionPurger removes expired vault sessions.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// NewListUsersHandler returns an http.HandlerFunc for GET /api/v1/admin/users.
func NewListUsersHandler(svc Admin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := svc.ListUsers(r.Context(), mw.PrincipalFrom(r))
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Collection(w, users, len(users))
	}
}

// NewCreateUserHandler returns an http.HandlerFunc for POST /api/v1/admin/users.
func NewCreateUserHandler(svc Admin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Email    string `json:"email"`
			Role     string `json:"role"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		acc, err := svc.CreateUser(r.Context(), mw.PrincipalFrom(r), auth.CreateUserInput{
			RegisterInput: auth.RegisterInput{Username: req.Username, Password: req.Password, Email: req.Email},
			Role:          req.Role,
		})
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Created(w, acc)
	}
}

// NewUpdateUserHandler returns an http.HandlerFunc for PUT /api/v1/admin/users/{id}.
func NewUpdateUserHandler(svc Admin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			response.Fail(w, err)
			return
		}
		var req struct {
			Email    *string `json:"email"`
			Role     *string `json:"role"`
			Active   *bool   `json:"active"`
			Password *string `json:"password"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		acc, err := svc.UpdateUser(r.Context(), mw.PrincipalFrom(r), id, auth.UpdateUserInput{
			Email:    req.Email,
			Role:     req.Role,
			Active:   req.Active,
			Password: req.Password,
		})
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, acc)
	}
}

// NewDeleteUserHandler returns an http.HandlerFunc for DELETE /api/v1/admin/users/{id}.
func NewDeleteUserHandler(svc Admin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			response.Fail(w, err)
			return
		}
		if err := svc.DeleteUser(r.Context(), mw.PrincipalFrom(r), id); err != nil {
			response.Fail(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewLoginLogsHandler returns an http.HandlerFunc for GET /api/v1/admin/login-logs.
func NewLoginLogsHandler(svc Admin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit", defaultLoginLogLimit)
		if err != nil {
			response.Fail(w, err)
			return
		}
		if limit < 1 {
			limit = 1
		}
		if limit > maxLoginLogLimit {
			limit = maxLoginLogLimit
		}
		logs, err := svc.LoginLogs(r.Context(), mw.PrincipalFrom(r), limit)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.Collection(w, logs, len(logs))
	}
}

// NewPurgeSessionsHandler returns an http.HandlerFunc for
// POST /api/v1/admin/vault/purge-sessions. The route is mounted behind
// RequireAdmin.
func NewPurgeSessionsHandler(svc SessionPurger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.PurgeExpired(r.Context())
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, map[string]int64{"purged": n})
	}
}
