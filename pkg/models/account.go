package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is a login identity. Every secret, category, tag and API key that
// is not global belongs to exactly one account.
type Account struct {
	ID               uuid.UUID  `db:"id"                 json:"id"`
	Username         string     `db:"username"           json:"username"`
	PasswordHash     string     `db:"password_hash"      json:"-"`
	Email            *string    `db:"email"              json:"email,omitempty"`
	Role             string     `db:"role"               json:"role"`
	Active           bool       `db:"active"             json:"active"`
	FailedLoginCount int        `db:"failed_login_count" json:"-"`
	LockedUntil      *time.Time `db:"locked_until"       json:"locked_until,omitempty"`
	LoginCount       int        `db:"login_count"        json:"login_count"`
	LastLoginAt      *time.Time `db:"last_login_at"      json:"last_login_at,omitempty"`
	LastIP           *string    `db:"last_ip"            json:"last_ip,omitempty"`
	CreatedAt        time.Time  `db:"created_at"         json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"         json:"updated_at"`
}

// IsAdmin reports whether the account holds the admin role.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// AccountStats holds per-account record counts shown on the profile page.
type AccountStats struct {
	Secrets    int `json:"secrets"`
	Categories int `json:"categories"`
	Tags       int `json:"tags"`
}
