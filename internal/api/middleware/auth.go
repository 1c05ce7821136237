package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/totpvault/internal/api/response"
	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/kiranshivaraju/totpvault/internal/apikey"
	"github.com/kiranshivaraju/totpvault/internal/auth"
)

// APIKeyHeader carries an API key as an alternative to the Authorization header.
const APIKeyHeader = "X-API-Key"

// TokenAuthenticator resolves a session token into a principal.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// KeyValidator resolves a raw API key into a principal.
type KeyValidator interface {
	Validate(ctx context.Context, raw string) (auth.Principal, error)
}

// Auth resolves request credentials into an auth.Principal.
type Auth struct {
	tokens TokenAuthenticator
	keys   KeyValidator
}

// NewAuth creates a new Auth middleware.
func NewAuth(tokens TokenAuthenticator, keys KeyValidator) *Auth {
	return &Auth{tokens: tokens, keys: keys}
}

// Identify resolves any presented credential and stores the principal in the
// request context. Requests without credentials continue as Anonymous; a
// credential that fails to resolve is rejected.
func (a *Auth) Identify(next http.Handler) http.Handler {
	return a.identify(next, false)
}

// IdentifyOptional is Identify for routes open to anonymous callers. A
// credential that is unknown, expired or malformed is ignored and the request
// continues as Anonymous, so a client holding a stale token can still log in.
// Other failures, such as a disabled account, are still reported.
func (a *Auth) IdentifyOptional(next http.Handler) http.Handler {
	return a.identify(next, true)
}

func (a *Auth) identify(next http.Handler, optional bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.resolve(r)
		if err != nil {
			if !optional || apperr.KindOf(err) != apperr.KindUnauthenticated {
				response.Fail(w, err)
				return
			}
			slog.Debug("ignoring unresolved credential", "path", r.URL.Path, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !p.Authenticated() {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(SetPrincipal(r.Context(), p)))
	})
}

// resolve returns the principal behind the request credential, or Anonymous
// when none was presented.
func (a *Auth) resolve(r *http.Request) (auth.Principal, error) {
	if r.Header.Get("Authorization") != "" && extractBearerToken(r) == "" {
		return auth.Principal{}, apperr.Unauthenticated("malformed Authorization header")
	}
	credential := extractCredential(r)
	if credential == "" {
		return auth.Principal{}, nil
	}
	if apikey.LooksLikeKey(credential) {
		return a.keys.Validate(r.Context(), credential)
	}
	return a.tokens.Authenticate(r.Context(), credential)
}

// Authenticate is Identify followed by a check that a principal was resolved.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return a.Identify(RequireAuth(next))
}

// RequireAuth rejects anonymous requests.
func RequireAuth(next http.Handler) http.Handler {
	return require(auth.RequireAuthenticated, next)
}

// RequireAdmin rejects everyone but admins.
func RequireAdmin(next http.Handler) http.Handler {
	return require(auth.RequireAdmin, next)
}

// RequireWrite rejects read-only API keys on every method that is not a read.
func RequireWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if err := auth.RequireWrite(PrincipalFrom(r)); err != nil {
			response.Fail(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func require(check func(auth.Principal) error, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := check(PrincipalFrom(r)); err != nil {
			response.Fail(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractCredential(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
