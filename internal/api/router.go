package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/totpvault/internal/api/handler"
	mw "github.com/kiranshivaraju/totpvault/internal/api/middleware"
	"github.com/kiranshivaraju/totpvault/internal/api/response"
)

// VaultService is everything the router needs from the vault session
// service: the /auth handlers, the vault gate and session purging.
type VaultService interface {
	handler.Vault
	handler.SessionPurger
	mw.VaultChecker
}

// Dependencies holds all service and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	Accounts handler.Accounts
	Admin    handler.Admin
	Vault    VaultService
	Secrets  handler.Secrets
	Labels   handler.Labels
	APIKeys  handler.APIKeys
	Settings handler.Settings
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public health check
		r.Get("/health", orNotImplemented(deps.HealthHandler))

		// Public routes. A valid credential is still resolved so rate limiting
		// can key on it; a stale one is ignored.
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.IdentifyOptional)
			r.Use(deps.RateLimit.Limit)

			r.Post("/users/register", handler.NewRegisterHandler(deps.Accounts))
			r.Post("/users/login", handler.NewLoginHandler(deps.Accounts))

			r.Post("/auth/unlock", handler.NewUnlockHandler(deps.Vault))
			r.Post("/auth/lock", handler.NewLockHandler(deps.Vault))
			r.Get("/auth/status", handler.NewVaultStatusHandler(deps.Vault))
			r.Get("/auth/password-hint", handler.NewPasswordHintHandler(deps.Vault))
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Authenticate)
			r.Use(deps.RateLimit.Limit)
			r.Use(mw.RequireWrite)

			r.Get("/users/me", handler.NewProfileHandler(deps.Accounts))
			r.Put("/users/me", handler.NewUpdateProfileHandler(deps.Accounts))
			r.Post("/users/change-password", handler.NewChangePasswordHandler(deps.Accounts))

			r.Post("/auth/set-master-password", handler.NewSetMasterPasswordHandler(deps.Vault))
			r.Post("/auth/change-master-password", handler.NewChangeMasterPasswordHandler(deps.Vault))

			r.Get("/categories", handler.NewListCategoriesHandler(deps.Labels))
			r.Post("/categories", handler.NewCreateCategoryHandler(deps.Labels))
			r.Put("/categories/{id}", handler.NewUpdateCategoryHandler(deps.Labels))
			r.Delete("/categories/{id}", handler.NewDeleteCategoryHandler(deps.Labels))

			r.Get("/tags", handler.NewListTagsHandler(deps.Labels))
			r.Post("/tags", handler.NewCreateTagHandler(deps.Labels))
			r.Put("/tags/{id}", handler.NewUpdateTagHandler(deps.Labels))
			r.Delete("/tags/{id}", handler.NewDeleteTagHandler(deps.Labels))

			r.Get("/api-keys", handler.NewListAPIKeysHandler(deps.APIKeys))
			r.Post("/api-keys", handler.NewCreateAPIKeyHandler(deps.APIKeys))
			r.Put("/api-keys/{id}", handler.NewUpdateAPIKeyHandler(deps.APIKeys))
			r.Delete("/api-keys/{id}", handler.NewDeleteAPIKeyHandler(deps.APIKeys))

			// Secret material requires an unlocked vault
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireVault(deps.Vault))

				r.Get("/secrets", handler.NewListSecretsHandler(deps.Secrets))
				r.Post("/secrets", handler.NewCreateSecretHandler(deps.Secrets))
				r.Post("/secrets/import-uri", handler.NewImportURIHandler(deps.Secrets))
				r.Post("/secrets/batch-delete", handler.NewBatchDeleteHandler(deps.Secrets))
				r.Post("/secrets/batch-category", handler.NewBatchCategoryHandler(deps.Secrets))
				r.Put("/secrets/reorder", handler.NewReorderHandler(deps.Secrets))
				r.Get("/secrets/{id}", handler.NewGetSecretHandler(deps.Secrets))
				r.Put("/secrets/{id}", handler.NewUpdateSecretHandler(deps.Secrets))
				r.Delete("/secrets/{id}", handler.NewDeleteSecretHandler(deps.Secrets))
				r.Get("/secrets/{id}/token", handler.NewTokenHandler(deps.Secrets))
				r.Get("/secrets/{id}/uri", handler.NewSecretURIHandler(deps.Secrets))
				r.Post("/secrets/{id}/favorite", handler.NewToggleFavoriteHandler(deps.Secrets))
				r.Post("/secrets/{id}/pin", handler.NewTogglePinnedHandler(deps.Secrets))
				r.Post("/secrets/{id}/use", handler.NewRecordUseHandler(deps.Secrets))

				r.Get("/tokens", handler.NewTokensHandler(deps.Secrets))
				r.Get("/tags/{id}/secrets", handler.NewTagSecretsHandler(deps.Labels))
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(mw.RequireAdmin)

				r.Get("/users", handler.NewListUsersHandler(deps.Admin))
				r.Post("/users", handler.NewCreateUserHandler(deps.Admin))
				r.Put("/users/{id}", handler.NewUpdateUserHandler(deps.Admin))
				r.Delete("/users/{id}", handler.NewDeleteUserHandler(deps.Admin))
				r.Get("/login-logs", handler.NewLoginLogsHandler(deps.Admin))
				r.Post("/vault/purge-sessions", handler.NewPurgeSessionsHandler(deps.Vault))
				r.Get("/settings", handler.NewGetSettingsHandler(deps.Settings))
				r.Put("/settings", handler.NewUpdateSettingsHandler(deps.Settings))
			})
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
