package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	mw "github.com/kiranshivaraju/totpvault/internal/api/middleware"
	"github.com/kiranshivaraju/totpvault/internal/api/response"
	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

// Settings is the runtime system settings surface.
type Settings interface {
	List(ctx context.Context, p auth.Principal) ([]*models.Setting, error)
	Update(ctx context.Context, p auth.Principal, values map[string]string) ([]*models.Setting, error)
}

type settingView struct {
	Value       string    `json:"value"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func settingsByKey(list []*models.Setting) map[string]settingView {
	out := make(map[string]settingView, len(list))
	for _, st := range list {
		out[st.Key] = settingView{Value: st.Value, Description: st.Description, UpdatedAt: st.UpdatedAt}
	}
	return out
}

// NewGetSettingsHandler returns an http.HandlerFunc for GET /api/v1/admin/settings.
func NewGetSettingsHandler(svc Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context(), mw.PrincipalFrom(r))
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, settingsByKey(list))
	}
}

// NewUpdateSettingsHandler returns an http.HandlerFunc for PUT /api/v1/admin/settings.
// Values may be sent as JSON strings, booleans or numbers.
func NewUpdateSettingsHandler(svc Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Settings map[string]any `json:"settings"`
		}
		if err := decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		values := make(map[string]string, len(req.Settings))
		for k, v := range req.Settings {
			switch v := v.(type) {
			case string:
				values[k] = v
			case bool:
				values[k] = strconv.FormatBool(v)
			case float64:
				values[k] = strconv.FormatFloat(v, 'f', -1, 64)
			default:
				response.Fail(w, apperr.Validation("setting values must be strings, booleans or numbers").WithDetail("key", k))
				return
			}
		}
		list, err := svc.Update(r.Context(), mw.PrincipalFrom(r), values)
		if err != nil {
			response.Fail(w, err)
			return
		}
		response.JSON(w, settingsByKey(list))
	}
}
