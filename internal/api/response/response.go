package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/totpvault/internal/apperr"
)

type envelope struct {
	Data any `json:"data"`
}

type collectionEnvelope struct {
	Data any            `json:"data"`
	Meta CollectionMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type CollectionMeta struct {
	Total int `json:"total"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func Collection(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, collectionEnvelope{Data: data, Meta: CollectionMeta{Total: total}})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

type mapping struct {
	status int
	code   string
}

var kindMappings = map[apperr.Kind]mapping{
	apperr.KindValidation:          {http.StatusBadRequest, "VALIDATION_ERROR"},
	apperr.KindInvalidSecretFormat: {http.StatusBadRequest, "INVALID_SECRET_FORMAT"},
	apperr.KindUnauthenticated:     {http.StatusUnauthorized, "UNAUTHENTICATED"},
	apperr.KindWrongPassword:       {http.StatusUnauthorized, "WRONG_PASSWORD"},
	apperr.KindAccountDisabled:     {http.StatusForbidden, "ACCOUNT_DISABLED"},
	apperr.KindForbidden:           {http.StatusForbidden, "FORBIDDEN"},
	apperr.KindNotFound:            {http.StatusNotFound, "NOT_FOUND"},
	apperr.KindConflict:            {http.StatusConflict, "CONFLICT"},
	apperr.KindVaultLocked:         {http.StatusLocked, "VAULT_LOCKED"},
	apperr.KindAccountLocked:       {http.StatusLocked, "ACCOUNT_LOCKED"},
}

// Fail writes err as a structured error. Unclassified errors are logged and
// reported as a generic INTERNAL_ERROR.
func Fail(w http.ResponseWriter, err error) {
	var e *apperr.Error
	if errors.As(err, &e) {
		if m, ok := kindMappings[e.Kind]; ok {
			var details any
			if len(e.Details) > 0 {
				details = e.Details
			}
			Error(w, m.status, m.code, e.Message, details)
			return
		}
	}
	slog.Error("request failed", "error", err)
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
