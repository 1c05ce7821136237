// Package apperr defines the error taxonomy shared by services and the HTTP
// boundary. Callers match on kind with errors.Is, never on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindUnauthenticated
	KindAccountDisabled
	KindAccountLocked
	KindVaultLocked
	KindInvalidSecretFormat
	KindConflict
	KindWrongPassword
)

var kindNames = map[Kind]string{
	KindInternal:            "internal",
	KindValidation:          "validation",
	KindNotFound:            "not_found",
	KindForbidden:           "forbidden",
	KindUnauthenticated:     "unauthenticated",
	KindAccountDisabled:     "account_disabled",
	KindAccountLocked:       "account_locked",
	KindVaultLocked:         "vault_locked",
	KindInvalidSecretFormat: "invalid_secret_format",
	KindConflict:            "conflict",
	KindWrongPassword:       "wrong_password",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure with a user-safe message and optional details.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels below can
// be used as errors.Is targets.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// WithDetail returns e with key set in Details.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is matching.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrUnauthenticated     = &Error{Kind: KindUnauthenticated}
	ErrAccountDisabled     = &Error{Kind: KindAccountDisabled}
	ErrAccountLocked       = &Error{Kind: KindAccountLocked}
	ErrVaultLocked         = &Error{Kind: KindVaultLocked}
	ErrInvalidSecretFormat = &Error{Kind: KindInvalidSecretFormat}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrWrongPassword       = &Error{Kind: KindWrongPassword}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Validation(msg string) *Error      { return New(KindValidation, msg) }
func NotFound(msg string) *Error        { return New(KindNotFound, msg) }
func Forbidden(msg string) *Error       { return New(KindForbidden, msg) }
func Unauthenticated(msg string) *Error { return New(KindUnauthenticated, msg) }
func Conflict(msg string) *Error        { return New(KindConflict, msg) }
func VaultLocked() *Error               { return New(KindVaultLocked, "vault is locked") }
func AccountDisabled() *Error           { return New(KindAccountDisabled, "account is disabled") }

// WrongPassword is shared by account login and vault unlock; the message never
// says whether the user or the password was wrong.
func WrongPassword() *Error {
	return New(KindWrongPassword, "invalid credentials")
}

// InvalidSecretFormat wraps a decoding failure of a base32 shared secret.
func InvalidSecretFormat(err error) *Error {
	return &Error{Kind: KindInvalidSecretFormat, Message: "secret is not valid base32", Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
