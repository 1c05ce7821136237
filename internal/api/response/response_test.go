package response_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/totpvault/internal/api/response"
	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]string{"name": "test"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "test", data["name"])
}

func TestCreated(t *testing.T) {
	w := httptest.NewRecorder()
	response.Created(w, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "abc", data["id"])
}

func TestCollection(t *testing.T) {
	w := httptest.NewRecorder()
	items := []map[string]string{{"id": "1"}, {"id": "2"}}

	response.Collection(w, items, len(items))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["data"].([]any), 2)
	assert.Equal(t, float64(2), body["meta"].(map[string]any)["total"])
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	response.NoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid params", map[string][]string{
		"name": {"name is required"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	assert.Equal(t, "Invalid params", errObj["message"])
	assert.NotNil(t, errObj["details"])
}

func TestError_NoDetails(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)

	errObj := decode(t, w)["error"].(map[string]any)
	_, hasDetails := errObj["details"]
	assert.False(t, hasDetails)
}

func TestFail_MapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("name is required"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{apperr.InvalidSecretFormat(errors.New("illegal base32")), http.StatusBadRequest, "INVALID_SECRET_FORMAT"},
		{apperr.Unauthenticated("missing token"), http.StatusUnauthorized, "UNAUTHENTICATED"},
		{apperr.WrongPassword(), http.StatusUnauthorized, "WRONG_PASSWORD"},
		{apperr.AccountDisabled(), http.StatusForbidden, "ACCOUNT_DISABLED"},
		{apperr.Forbidden("admin only"), http.StatusForbidden, "FORBIDDEN"},
		{apperr.NotFound("secret not found"), http.StatusNotFound, "NOT_FOUND"},
		{apperr.Conflict("username already taken"), http.StatusConflict, "CONFLICT"},
		{apperr.VaultLocked(), http.StatusLocked, "VAULT_LOCKED"},
		{apperr.New(apperr.KindAccountLocked, "account is locked"), http.StatusLocked, "ACCOUNT_LOCKED"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			response.Fail(w, fmt.Errorf("wrapped: %w", tc.err))

			assert.Equal(t, tc.status, w.Code)
			errObj := decode(t, w)["error"].(map[string]any)
			assert.Equal(t, tc.code, errObj["code"])
		})
	}
}

func TestFail_IncludesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	response.Fail(w, apperr.WrongPassword().WithDetail("remaining_attempts", 3))

	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "invalid credentials", errObj["message"])
	assert.Equal(t, float64(3), errObj["details"].(map[string]any)["remaining_attempts"])
}

func TestFail_InternalHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	response.Fail(w, errors.New("pq: connection refused to 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
	assert.NotContains(t, errObj["message"], "10.0.0.3")
}
