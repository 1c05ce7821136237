package auth

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// Kind is the resolved role of a request.
type Kind int

const (
	Anonymous Kind = iota
	User
	Admin
)

func (k Kind) String() string {
	switch k {
	case User:
		return "user"
	case Admin:
		return "admin"
	default:
		return "anonymous"
	}
}

// Principal is the identity every service operation runs as. The zero value
// is Anonymous.
type Principal struct {
	Kind        Kind
	AccountID   uuid.UUID
	Username    string
	APIKeyID    *uuid.UUID
	Permissions string
}

// FromAccount builds a principal from a freshly loaded account.
func FromAccount(acc *models.Account) Principal {
	kind := User
	if acc.IsAdmin() {
		kind = Admin
	}
	return Principal{
		Kind:        kind,
		AccountID:   acc.ID,
		Username:    acc.Username,
		Permissions: models.PermissionWrite,
	}
}

// FromAPIKey builds a principal acting for the key's owner, limited to the
// key's permissions.
func FromAPIKey(id *models.APIKeyIdentity) Principal {
	p := FromAccount(&id.Account)
	keyID := id.KeyID
	p.APIKeyID = &keyID
	p.Permissions = id.Permissions
	return p
}

func (p Principal) Authenticated() bool { return p.Kind != Anonymous }
func (p Principal) IsAdmin() bool       { return p.Kind == Admin }

// CanWrite is false only for read-only API keys.
func (p Principal) CanWrite() bool {
	return p.Authenticated() && p.Permissions == models.PermissionWrite
}

// RateKey identifies the principal for request rate limiting.
func (p Principal) RateKey() string {
	if p.APIKeyID != nil {
		return fmt.Sprintf("apikey:%s", *p.APIKeyID)
	}
	return fmt.Sprintf("account:%s", p.AccountID)
}

// RequireAuthenticated rejects anonymous principals.
func RequireAuthenticated(p Principal) error {
	if !p.Authenticated() {
		return apperr.Unauthenticated("authentication required")
	}
	return nil
}

// RequireAdmin rejects everyone but admins.
func RequireAdmin(p Principal) error {
	if err := RequireAuthenticated(p); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return apperr.Forbidden("admin role required")
	}
	return nil
}

// RequireWrite rejects anonymous principals and read-only API keys.
func RequireWrite(p Principal) error {
	if err := RequireAuthenticated(p); err != nil {
		return err
	}
	if !p.CanWrite() {
		return apperr.Forbidden("api key is read-only")
	}
	return nil
}

// Access is the outcome of an ownership check.
type Access int

const (
	// AccessOwner means the principal owns the record.
	AccessOwner Access = iota
	// AccessAdminOverride means an admin is acting on someone else's record.
	// Callers must audit this path.
	AccessAdminOverride
)

// CheckOwner decides whether p may act on a record owned by ownerID. Admins
// pass only when allowAdmin is set.
func CheckOwner(p Principal, ownerID uuid.UUID, allowAdmin bool) (Access, error) {
	if err := RequireAuthenticated(p); err != nil {
		return 0, err
	}
	if p.AccountID == ownerID {
		return AccessOwner, nil
	}
	if allowAdmin && p.IsAdmin() {
		return AccessAdminOverride, nil
	}
	return 0, apperr.Forbidden("not the owner of this resource")
}
