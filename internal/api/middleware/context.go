package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/totpvault/internal/auth"
)

type contextKey string

const (
	principalKey   contextKey = "principal"
	requestInfoKey contextKey = "request_info"
)

// requestInfo is shared by every middleware of one request. Logger and
// Recovery wrap the auth middleware, so they cannot see the context it
// derives; SetPrincipal records the identity here as well.
type requestInfo struct {
	principal auth.Principal
}

// SetPrincipal stores the resolved identity of the request.
func SetPrincipal(ctx context.Context, p auth.Principal) context.Context {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.principal = p
	}
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the request principal, Anonymous if none was resolved.
func PrincipalFrom(r *http.Request) auth.Principal {
	p, _ := r.Context().Value(principalKey).(auth.Principal)
	return p
}

// withRequestInfo returns r carrying a requestInfo, reusing one attached by
// an outer middleware.
func withRequestInfo(r *http.Request) (*http.Request, *requestInfo) {
	if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
		return r, info
	}
	info := &requestInfo{}
	return r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)), info
}

// attrs describes the caller for log lines. Only identifiers are logged.
func (i *requestInfo) attrs() []any {
	p := i.principal
	attrs := []any{"principal", p.Kind.String()}
	if !p.Authenticated() {
		return attrs
	}
	attrs = append(attrs, "account_id", p.AccountID.String())
	if p.APIKeyID != nil {
		attrs = append(attrs, "api_key_id", p.APIKeyID.String())
	}
	return attrs
}
