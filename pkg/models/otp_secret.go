package models

import (
	"time"

	"github.com/google/uuid"
)

// OTPSecret is a stored TOTP credential. Secret holds the base32 shared key.
type OTPSecret struct {
	ID           uuid.UUID   `db:"id"            json:"id"`
	OwnerID      uuid.UUID   `db:"owner_id"      json:"owner_id"`
	Name         string      `db:"name"          json:"name"`
	Issuer       string      `db:"issuer"        json:"issuer"`
	Secret       string      `db:"secret"        json:"secret"`
	Algorithm    string      `db:"algorithm"     json:"algorithm"`
	Digits       int         `db:"digits"        json:"digits"`
	Period       int         `db:"period"        json:"period"`
	CategoryID   *uuid.UUID  `db:"category_id"   json:"category_id,omitempty"`
	CategoryName *string     `db:"category_name" json:"category_name,omitempty"`
	Note         string      `db:"note"          json:"note"`
	Icon         string      `db:"icon"          json:"icon"`
	Favorite     bool        `db:"favorite"      json:"favorite"`
	Pinned       bool        `db:"pinned"        json:"pinned"`
	SortOrder    int         `db:"sort_order"    json:"sort_order"`
	UseCount     int64       `db:"use_count"     json:"use_count"`
	LastUsedAt   *time.Time  `db:"last_used_at"  json:"last_used_at,omitempty"`
	TagIDs       []uuid.UUID `db:"-"             json:"tag_ids"`
	CreatedAt    time.Time   `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"    json:"updated_at"`
}

// UsageLog is an append-only record of a code being generated for a secret.
type UsageLog struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	SecretID  uuid.UUID `db:"secret_id"  json:"secret_id"`
	AccountID uuid.UUID `db:"account_id" json:"account_id"`
	Action    string    `db:"action"     json:"action"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
