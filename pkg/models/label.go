package models

import (
	"time"

	"github.com/google/uuid"
)

// Category groups secrets. A nil OwnerID marks a global category visible to
// every account. IsDefault categories receive secrets orphaned by deletes.
type Category struct {
	ID          uuid.UUID  `db:"id"          json:"id"`
	OwnerID     *uuid.UUID `db:"owner_id"    json:"owner_id,omitempty"`
	Name        string     `db:"name"        json:"name"`
	Description string     `db:"description" json:"description"`
	Icon        string     `db:"icon"        json:"icon"`
	Color       string     `db:"color"       json:"color"`
	IsDefault   bool       `db:"is_default"  json:"is_default"`
	SortOrder   int        `db:"sort_order"  json:"sort_order"`
	CreatedAt   time.Time  `db:"created_at"  json:"created_at"`
}

// IsGlobal reports whether the category is shared by all accounts.
func (c *Category) IsGlobal() bool {
	return c.OwnerID == nil
}

// Tag is a private label attached to secrets through secret_tags.
type Tag struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	OwnerID     uuid.UUID `db:"owner_id"     json:"owner_id"`
	Name        string    `db:"name"         json:"name"`
	Color       string    `db:"color"        json:"color"`
	SecretCount int       `db:"secret_count" json:"secret_count"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}
