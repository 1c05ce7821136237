package models

import (
	"time"

	"github.com/google/uuid"
)

// API key permissions.
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
)

// APIKey represents a long-lived credential for programmatic access.
// Raw keys are shown once at creation; only the SHA-256 hash is stored.
type APIKey struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	OwnerID     uuid.UUID  `db:"owner_id"     json:"owner_id"`
	Name        string     `db:"name"         json:"name"`
	KeyHash     string     `db:"key_hash"     json:"-"`
	KeyPrefix   string     `db:"key_prefix"   json:"key_prefix"`
	Permissions string     `db:"permissions"  json:"permissions"`
	Active      bool       `db:"active"       json:"active"`
	ExpiresAt   *time.Time `db:"expires_at"   json:"expires_at,omitempty"`
	UseCount    int64      `db:"use_count"    json:"use_count"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"   json:"updated_at"`
}

// APIKeyIdentity is the result of a successful key validation: the key and
// the account it acts for.
type APIKeyIdentity struct {
	KeyID       uuid.UUID
	Permissions string
	Account     Account
}
