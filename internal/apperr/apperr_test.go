package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := apperr.Conflict("username already taken")
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.False(t, errors.Is(err, apperr.ErrNotFound))
}

func TestIs_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("create secret: %w", apperr.VaultLocked())
	assert.ErrorIs(t, err, apperr.ErrVaultLocked)
	assert.Equal(t, apperr.KindVaultLocked, apperr.KindOf(err))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(errors.New("boom")))
}

func TestWithDetail(t *testing.T) {
	err := apperr.WrongPassword().WithDetail("remaining_attempts", 3)
	assert.Equal(t, 3, err.Details["remaining_attempts"])
	assert.NotContains(t, err.Error(), "user")
}

func TestInvalidSecretFormat_Unwraps(t *testing.T) {
	cause := errors.New("illegal base32 data at input byte 0")
	err := apperr.InvalidSecretFormat(cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, apperr.ErrInvalidSecretFormat)
}
