package models

import "time"

// MasterPassword is the installation-wide vault credential. At most one row
// exists. Generation increases on every rotation; sessions minted under an
// older generation are no longer valid.
type MasterPassword struct {
	PasswordHash string    `db:"password_hash"`
	Salt         []byte    `db:"salt"`
	Hint         string    `db:"hint"`
	Generation   int64     `db:"generation"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// VaultSession is an unlock grant. Only the SHA-256 of the token is stored.
type VaultSession struct {
	TokenHash  string    `db:"token_hash"`
	Unlocked   bool      `db:"unlocked"`
	Generation int64     `db:"generation"`
	ExpiresAt  time.Time `db:"expires_at"`
	CreatedAt  time.Time `db:"created_at"`
}
