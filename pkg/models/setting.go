package models

import "time"

// Setting is one runtime-adjustable system setting. Values are stored as text
// and validated per key by the settings service.
type Setting struct {
	Key         string    `db:"key"         json:"key"`
	Value       string    `db:"value"       json:"value"`
	Description string    `db:"description" json:"description"`
	UpdatedAt   time.Time `db:"updated_at"  json:"updated_at"`
}
