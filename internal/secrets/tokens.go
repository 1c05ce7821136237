package secrets

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/internal/otp"
	"github.com/kiranshivaraju/totpvault/internal/store"
)

// Token is a generated code for one secret.
type Token struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Issuer           string    `json:"issuer"`
	Code             string    `json:"code,omitempty"`
	SecondsRemaining int       `json:"seconds_remaining"`
	Period           int       `json:"period"`
	Error            string    `json:"error,omitempty"`
}

// Token generates the current code for one of the caller's secrets and counts
// the use. Admins get no override here: codes are only ever generated for the
// owner.
func (s *Service) Token(ctx context.Context, p auth.Principal, id uuid.UUID) (*Token, error) {
	sec, err := s.load(ctx, p, id, false, "token")
	if err != nil {
		return nil, err
	}
	params := otp.Params{Digits: sec.Digits, Period: sec.Period, Algorithm: sec.Algorithm}
	code, err := otp.Generate(sec.Secret, s.now().Unix(), params)
	if err != nil {
		return nil, apperr.InvalidSecretFormat(err)
	}
	if err := s.recordUse(ctx, p, sec.ID, "generate_token"); err != nil {
		slog.Error("record secret use failed", "secret_id", sec.ID, "error", err)
	}
	return &Token{
		ID:               sec.ID,
		Name:             sec.Name,
		Issuer:           sec.Issuer,
		Code:             code.Code,
		SecondsRemaining: code.SecondsRemaining,
		Period:           params.Normalize().Period,
	}, nil
}

// Tokens generates codes for all of the caller's secrets at one shared
// instant. A secret that fails to generate is reported in its own entry.
func (s *Service) Tokens(ctx context.Context, p auth.Principal, f ListFilter) ([]Token, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	owner := p.AccountID
	list, err := s.repo.ListSecrets(ctx, store.SecretFilter{
		OwnerID:    &owner,
		Search:     f.Search,
		CategoryID: f.CategoryID,
		TagID:      f.TagID,
		Favorite:   f.Favorite,
		Pinned:     f.Pinned,
	})
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}

	reqs := make([]otp.Request, len(list))
	for i, sec := range list {
		reqs[i] = otp.Request{
			Key:    sec.ID.String(),
			Secret: sec.Secret,
			Params: otp.Params{Digits: sec.Digits, Period: sec.Period, Algorithm: sec.Algorithm},
		}
	}
	results := otp.GenerateBatch(reqs, s.now().Unix())

	out := make([]Token, len(list))
	for i, sec := range list {
		res := results[i]
		out[i] = Token{
			ID:               sec.ID,
			Name:             sec.Name,
			Issuer:           sec.Issuer,
			Code:             res.Code.Code,
			SecondsRemaining: res.SecondsRemaining,
			Period:           reqs[i].Params.Normalize().Period,
		}
		if res.Err != nil {
			out[i].Code = ""
			out[i].Error = "invalid secret"
			slog.Warn("token generation failed", "secret_id", sec.ID, "error", res.Err)
		}
	}
	return out, nil
}
