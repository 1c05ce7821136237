// Package vault implements the master password gate. A correct master
// password mints an unlock session token with a fixed expiry; every secret
// bearing operation checks that token before it runs.
package vault

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/kiranshivaraju/totpvault/internal/store"
	"github.com/kiranshivaraju/totpvault/pkg/models"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	saltLen  = 16
	tokenLen = 32
)

// Repository is the storage the vault service needs.
type Repository interface {
	GetMasterPassword(ctx context.Context) (*models.MasterPassword, error)
	CreateMasterPassword(ctx context.Context, mp *models.MasterPassword) error
	RotateMasterPassword(ctx context.Context, expectedGeneration int64, mp *models.MasterPassword) (int64, error)
	CreateVaultSession(ctx context.Context, sess *models.VaultSession) error
	GetVaultSession(ctx context.Context, tokenHash string, now time.Time) (*models.VaultSession, error)
	DeleteVaultSession(ctx context.Context, tokenHash string) error
	PurgeExpiredVaultSessions(ctx context.Context, now time.Time) (int64, error)
	CreateOperationLog(ctx context.Context, entry *models.OperationLog) error
}

// Options tunes session lifetime and password policy.
type Options struct {
	SessionTTL     time.Duration
	MinPasswordLen int
	BcryptCost     int
}

// Service is the vault session service.
type Service struct {
	repo Repository
	opts Options
	now  func() time.Time
}

// Session is a freshly minted unlock token. Token is shown once; only its
// SHA-256 is stored.
type Session struct {
	Token     string    `json:"session_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Status describes the vault gate as seen by one session token.
type Status struct {
	HasMasterPassword bool       `json:"has_master_password"`
	Unlocked          bool       `json:"unlocked"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// NewService creates a vault Service.
func NewService(repo Repository, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.MinPasswordLen < 1 {
		opts.MinPasswordLen = 6
	}
	if opts.BcryptCost < bcrypt.DefaultCost {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, opts: opts, now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Set stores the first master password. It fails with Conflict once a master
// password exists.
func (s *Service) Set(ctx context.Context, p auth.Principal, password, hint string) error {
	if err := auth.RequireWrite(p); err != nil {
		return err
	}
	if err := s.checkPassword(password); err != nil {
		return err
	}

	_, err := s.repo.GetMasterPassword(ctx)
	switch {
	case err == nil:
		return apperr.Conflict("master password already set")
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("load master password: %w", err)
	}

	mp, err := s.newRecord(password, hint)
	if err != nil {
		return err
	}
	if err := s.repo.CreateMasterPassword(ctx, mp); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return apperr.Conflict("master password already set")
		}
		return fmt.Errorf("create master password: %w", err)
	}
	slog.Info("master password set", "account_id", p.AccountID)
	s.logOperation(ctx, p, "set_master_password")
	return nil
}

// Unlock verifies password and mints a new unlock session.
func (s *Service) Unlock(ctx context.Context, password string) (*Session, error) {
	if password == "" {
		return nil, apperr.Validation("password is required")
	}
	mp, err := s.repo.GetMasterPassword(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Validation("master password is not set")
	}
	if err != nil {
		return nil, fmt.Errorf("load master password: %w", err)
	}
	if !verify(mp, password) {
		return nil, apperr.WrongPassword()
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &models.VaultSession{
		TokenHash:  hashToken(token),
		Unlocked:   true,
		Generation: mp.Generation,
		ExpiresAt:  now.Add(s.opts.SessionTTL),
		CreatedAt:  now,
	}
	if err := s.repo.CreateVaultSession(ctx, sess); err != nil {
		// The password was rotated after we verified it.
		if errors.Is(err, store.ErrStaleGeneration) {
			return nil, apperr.WrongPassword()
		}
		return nil, fmt.Errorf("create vault session: %w", err)
	}
	slog.Info("vault unlocked", "expires_at", sess.ExpiresAt)
	return &Session{Token: token, ExpiresAt: sess.ExpiresAt}, nil
}

// Change verifies oldPassword, rotates salt and hash, and invalidates every
// existing session in the same transaction.
func (s *Service) Change(ctx context.Context, p auth.Principal, oldPassword, newPassword, hint string) error {
	if err := auth.RequireWrite(p); err != nil {
		return err
	}
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	current, err := s.repo.GetMasterPassword(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Validation("master password is not set")
	}
	if err != nil {
		return fmt.Errorf("load master password: %w", err)
	}
	if !verify(current, oldPassword) {
		return apperr.WrongPassword()
	}

	next, err := s.newRecord(newPassword, hint)
	if err != nil {
		return err
	}
	generation, err := s.repo.RotateMasterPassword(ctx, current.Generation, next)
	if errors.Is(err, store.ErrStaleGeneration) {
		return apperr.Conflict("master password was changed concurrently")
	}
	if err != nil {
		return fmt.Errorf("rotate master password: %w", err)
	}
	slog.Warn("vault sessions invalidated", "account_id", p.AccountID, "generation", generation)
	s.logOperation(ctx, p, "change_master_password")
	return nil
}

// Lock deletes the session behind token. Locking an unknown or empty token
// succeeds.
func (s *Service) Lock(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.DeleteVaultSession(ctx, hashToken(token)); err != nil {
		return fmt.Errorf("lock vault: %w", err)
	}
	return nil
}

// Check returns VaultLocked unless token names a live unlock session. When no
// master password exists the vault is open.
func (s *Service) Check(ctx context.Context, token string) error {
	status, err := s.Status(ctx, token)
	if err != nil {
		return err
	}
	if status.HasMasterPassword && !status.Unlocked {
		return apperr.VaultLocked()
	}
	return nil
}

// Status reports whether a master password exists and whether token unlocks it.
func (s *Service) Status(ctx context.Context, token string) (*Status, error) {
	_, err := s.repo.GetMasterPassword(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load master password: %w", err)
	}
	st := &Status{HasMasterPassword: true}
	if token == "" {
		return st, nil
	}
	sess, err := s.repo.GetVaultSession(ctx, hashToken(token), s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load vault session: %w", err)
	}
	st.Unlocked = true
	st.ExpiresAt = &sess.ExpiresAt
	return st, nil
}

// Hint returns the master password hint.
func (s *Service) Hint(ctx context.Context) (string, error) {
	mp, err := s.repo.GetMasterPassword(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return "", apperr.NotFound("master password is not set")
	}
	if err != nil {
		return "", fmt.Errorf("load master password: %w", err)
	}
	return mp.Hint, nil
}

// PurgeExpired deletes expired and superseded sessions.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeExpiredVaultSessions(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	slog.Info("vault sessions purged", "count", n)
	return n, nil
}

func (s *Service) checkPassword(password string) error {
	if len(password) < s.opts.MinPasswordLen {
		return apperr.Validation(fmt.Sprintf("master password must be at least %d characters", s.opts.MinPasswordLen))
	}
	return nil
}

func (s *Service) newRecord(password, hint string) (*models.MasterPassword, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword(deriveKey(password, salt), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash master key: %w", err)
	}
	now := s.now().UTC()
	return &models.MasterPassword{
		PasswordHash: string(hash),
		Salt:         salt,
		Hint:         hint,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *Service) logOperation(ctx context.Context, p auth.Principal, action string) {
	actor := p.AccountID
	entry := &models.OperationLog{
		ID:           uuid.New(),
		AccountID:    &actor,
		Action:       action,
		ResourceType: "vault",
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateOperationLog(ctx, entry); err != nil {
		slog.Error("operation log write failed", "action", action, "error", err)
	}
}

// deriveKey stretches the password with Argon2id and returns the key hex
// encoded, which keeps it inside bcrypt's 72 byte input limit.
func deriveKey(password string, salt []byte) []byte {
	key := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return []byte(hex.EncodeToString(key))
}

func verify(mp *models.MasterPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(mp.PasswordHash), deriveKey(password, mp.Salt)) == nil
}

func newToken() (string, error) {
	b := make([]byte, tokenLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
