package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/totpvault/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtTestSecret = "0123456789abcdef0123456789abcdef"

func TestNewTokenManager_RejectsShortSecret(t *testing.T) {
	_, err := NewTokenManager("short", time.Hour, "totpvault")
	assert.Error(t, err)

	_, err = NewTokenManager(jwtTestSecret, 0, "totpvault")
	assert.Error(t, err)
}

func TestTokenManager_RoundTrip(t *testing.T) {
	m, err := NewTokenManager(jwtTestSecret, time.Hour, "totpvault")
	require.NoError(t, err)
	acc := &models.Account{ID: uuid.New(), Username: "alice", Role: models.RoleUser}

	token, exp, err := m.Issue(acc)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	id, claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, acc.ID.String(), claims.Subject)
}

func TestTokenManager_Expired(t *testing.T) {
	m, err := NewTokenManager(jwtTestSecret, time.Minute, "totpvault")
	require.NoError(t, err)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }

	token, _, err := m.Issue(&models.Account{ID: uuid.New(), Username: "alice"})
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, _, err = m.Parse(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenManager_WrongIssuer(t *testing.T) {
	issuer, err := NewTokenManager(jwtTestSecret, time.Hour, "someone-else")
	require.NoError(t, err)
	verifier, err := NewTokenManager(jwtTestSecret, time.Hour, "totpvault")
	require.NoError(t, err)

	token, _, err := issuer.Issue(&models.Account{ID: uuid.New(), Username: "alice"})
	require.NoError(t, err)

	_, _, err = verifier.Parse(token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestTokenManager_RejectsNoneAlgorithm(t *testing.T) {
	m, err := NewTokenManager(jwtTestSecret, time.Hour, "totpvault")
	require.NoError(t, err)

	claims := Claims{
		ID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "totpvault",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = m.Parse(token)
	assert.Error(t, err)
}
