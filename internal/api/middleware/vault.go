package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/totpvault/internal/api/response"
)

// VaultTokenHeader carries the vault session token returned by unlock.
const VaultTokenHeader = "X-Session-Token"

// VaultChecker reports whether a vault session token currently unlocks the
// vault.
type VaultChecker interface {
	Check(ctx context.Context, token string) error
}

// VaultToken returns the vault session token presented with the request.
func VaultToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(VaultTokenHeader))
}

// RequireVault rejects requests with VAULT_LOCKED while a master password is
// set and the request carries no valid vault session.
func RequireVault(v VaultChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := v.Check(r.Context(), VaultToken(r)); err != nil {
				response.Fail(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
