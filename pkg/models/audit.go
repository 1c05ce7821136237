package models

import (
	"time"

	"github.com/google/uuid"
)

// Login audit reason codes.
const (
	LoginReasonSuccess        = "success"
	LoginReasonUnknownUser    = "unknown_user"
	LoginReasonWrongPassword  = "wrong_password"
	LoginReasonAccountLocked  = "account_locked"
	LoginReasonAccountDisable = "account_disabled"
)

// LoginLog is an append-only record of one login attempt.
type LoginLog struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	AccountID *uuid.UUID `db:"account_id" json:"account_id,omitempty"`
	Username  string     `db:"username"   json:"username"`
	IP        string     `db:"ip"         json:"ip"`
	UserAgent string     `db:"user_agent" json:"user_agent"`
	Success   bool       `db:"success"    json:"success"`
	Reason    string     `db:"reason"     json:"reason"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// OperationLog records security-relevant mutations and admin overrides.
type OperationLog struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	AccountID    *uuid.UUID `db:"account_id"    json:"account_id,omitempty"`
	Action       string     `db:"action"        json:"action"`
	ResourceType string     `db:"resource_type" json:"resource_type"`
	ResourceID   *uuid.UUID `db:"resource_id"   json:"resource_id,omitempty"`
	Details      string     `db:"details"       json:"details"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
}
