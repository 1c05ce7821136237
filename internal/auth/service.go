package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/kiranshivaraju/totpvault/internal/store"
	"github.com/kiranshivaraju/totpvault/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	minUsernameLen = 3
	minPasswordLen = 6

	defaultCategoryName = "Uncategorized"
)

// Repository is the storage the credential service needs.
type Repository interface {
	CreateAccount(ctx context.Context, acc *models.Account, defaultCategory *models.Category) error
	GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	UpdateAccount(ctx context.Context, id uuid.UUID, upd store.AccountUpdate) (*models.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration, now time.Time) (*store.LoginFailure, error)
	RecordLoginSuccess(ctx context.Context, id uuid.UUID, ip string, now time.Time) error
	GetAccountStats(ctx context.Context, id uuid.UUID) (*models.AccountStats, error)
	CreateLoginLog(ctx context.Context, entry *models.LoginLog) error
	ListLoginLogs(ctx context.Context, limit int) ([]*models.LoginLog, error)
	CreateOperationLog(ctx context.Context, entry *models.OperationLog) error
}

// Options tunes hashing and lockout.
type Options struct {
	MaxFailures  int
	LockDuration time.Duration
	BcryptCost   int
}

// Service is the credential service: registration, login with lockout,
// bearer token verification and account administration.
type Service struct {
	repo   Repository
	tokens *TokenManager
	opts   Options
	now    func() time.Time

	// dummyHash is compared against when the username is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

// NewService creates a credential Service.
func NewService(repo Repository, tokens *TokenManager, opts Options) (*Service, error) {
	if opts.MaxFailures < 1 {
		opts.MaxFailures = 5
	}
	if opts.LockDuration <= 0 {
		opts.LockDuration = 30 * time.Minute
	}
	if opts.BcryptCost < bcrypt.DefaultCost {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Service{repo: repo, tokens: tokens, opts: opts, now: time.Now, dummyHash: dummy}, nil
}

// SetClock replaces the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.tokens.now = now
}

// RegisterInput is the payload of a self-service registration.
type RegisterInput struct {
	Username string
	Password string
	Email    string
}

// Register creates a user account together with its private default category.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	return s.createAccount(ctx, in, models.RoleUser)
}

// CreateAdmin bootstraps an admin account. It bypasses principal checks and
// is meant for operator tooling.
func (s *Service) CreateAdmin(ctx context.Context, in RegisterInput) (*models.Account, error) {
	return s.createAccount(ctx, in, models.RoleAdmin)
}

func (s *Service) createAccount(ctx context.Context, in RegisterInput, role string) (*models.Account, error) {
	username := strings.TrimSpace(in.Username)
	if len(username) < minUsernameLen {
		return nil, apperr.Validation(fmt.Sprintf("username must be at least %d characters", minUsernameLen))
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	acc := &models.Account{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		Email:        email,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	owner := acc.ID
	category := &models.Category{
		ID:          uuid.New(),
		OwnerID:     &owner,
		Name:        defaultCategoryName,
		Description: "Default category",
		Icon:        "folder",
		Color:       "#1890ff",
		IsDefault:   true,
		CreatedAt:   now,
	}

	if err := s.repo.CreateAccount(ctx, acc, category); err != nil {
		return nil, accountWriteError(err)
	}
	slog.Info("account created", "account_id", acc.ID, "username", acc.Username, "role", acc.Role)
	return acc, nil
}

// LoginInput is one login attempt.
type LoginInput struct {
	Username  string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *models.Account
}

// Login verifies credentials. The lock is checked against locked_until before
// the password, so a locked account is refused even with the right password.
// Unknown users and wrong passwords both report WrongPassword.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, apperr.Validation("username and password are required")
	}
	now := s.now().UTC()

	acc, err := s.repo.GetAccountByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(in.Password))
		s.audit(ctx, in, nil, false, models.LoginReasonUnknownUser, now)
		return nil, apperr.WrongPassword()
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	if acc.LockedUntil != nil && acc.LockedUntil.After(now) {
		s.audit(ctx, in, &acc.ID, false, models.LoginReasonAccountLocked, now)
		return nil, lockedError(*acc.LockedUntil, now)
	}

	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(in.Password)) != nil {
		s.audit(ctx, in, &acc.ID, false, models.LoginReasonWrongPassword, now)
		failure, err := s.repo.RecordLoginFailure(ctx, acc.ID, s.opts.MaxFailures, s.opts.LockDuration, now)
		if err != nil {
			return nil, fmt.Errorf("record login failure: %w", err)
		}
		if failure.LockedUntil != nil && failure.LockedUntil.After(now) {
			slog.Warn("account locked", "account_id", acc.ID, "username", acc.Username,
				"locked_until", failure.LockedUntil)
			return nil, lockedError(*failure.LockedUntil, now)
		}
		remaining := s.opts.MaxFailures - failure.FailedCount
		if remaining < 0 {
			remaining = 0
		}
		return nil, apperr.WrongPassword().WithDetail("remaining_attempts", remaining)
	}

	if !acc.Active {
		s.audit(ctx, in, &acc.ID, false, models.LoginReasonAccountDisable, now)
		return nil, apperr.AccountDisabled()
	}

	if err := s.repo.RecordLoginSuccess(ctx, acc.ID, in.IP, now); err != nil {
		return nil, fmt.Errorf("record login success: %w", err)
	}
	token, exp, err := s.tokens.Issue(acc)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, in, &acc.ID, true, models.LoginReasonSuccess, now)

	acc.FailedLoginCount = 0
	acc.LockedUntil = nil
	acc.LoginCount++
	acc.LastLoginAt = &now
	if in.IP != "" {
		ip := in.IP
		acc.LastIP = &ip
	}
	return &LoginResult{Token: token, ExpiresAt: exp, Account: acc}, nil
}

// Authenticate verifies a bearer token and re-reads the account so that
// deactivation and role changes take effect immediately.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	id, _, err := s.tokens.Parse(token)
	if err != nil {
		return Principal{}, apperr.Unauthenticated("invalid or expired token")
	}
	acc, err := s.repo.GetAccountByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Principal{}, apperr.Unauthenticated("account no longer exists")
	}
	if err != nil {
		return Principal{}, fmt.Errorf("load account: %w", err)
	}
	if !acc.Active {
		return Principal{}, apperr.AccountDisabled()
	}
	return FromAccount(acc), nil
}

// Profile returns the caller's account and record counts.
func (s *Service) Profile(ctx context.Context, p Principal) (*models.Account, *models.AccountStats, error) {
	if err := RequireAuthenticated(p); err != nil {
		return nil, nil, err
	}
	acc, err := s.getAccount(ctx, p.AccountID)
	if err != nil {
		return nil, nil, err
	}
	stats, err := s.repo.GetAccountStats(ctx, p.AccountID)
	if err != nil {
		return nil, nil, fmt.Errorf("load account stats: %w", err)
	}
	return acc, stats, nil
}

// UpdateProfile changes the caller's email. An empty email clears it.
func (s *Service) UpdateProfile(ctx context.Context, p Principal, email string) (*models.Account, error) {
	if err := RequireWrite(p); err != nil {
		return nil, err
	}
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	upd := store.AccountUpdate{Email: normalized, ClearEmail: normalized == nil}
	acc, err := s.repo.UpdateAccount(ctx, p.AccountID, upd)
	if err != nil {
		return nil, accountWriteError(err)
	}
	return acc, nil
}

// ChangePassword replaces the caller's password after verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, p Principal, oldPassword, newPassword string) error {
	if err := RequireWrite(p); err != nil {
		return err
	}
	if len(newPassword) < minPasswordLen {
		return apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	acc, err := s.getAccount(ctx, p.AccountID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(oldPassword)) != nil {
		return apperr.WrongPassword()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	h := string(hash)
	if _, err := s.repo.UpdateAccount(ctx, p.AccountID, store.AccountUpdate{PasswordHash: &h}); err != nil {
		return accountWriteError(err)
	}
	s.logOperation(ctx, p, "change_password", &p.AccountID, "")
	return nil
}

// --- Administration ---

// ListUsers returns every account. Admin only.
func (s *Service) ListUsers(ctx context.Context, p Principal) ([]*models.Account, error) {
	if err := RequireAdmin(p); err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	return accounts, nil
}

// CreateUserInput is an admin-created account.
type CreateUserInput struct {
	RegisterInput
	Role string
}

// CreateUser creates an account with the given role. Admin only.
func (s *Service) CreateUser(ctx context.Context, p Principal, in CreateUserInput) (*models.Account, error) {
	if err := RequireAdmin(p); err != nil {
		return nil, err
	}
	if err := RequireWrite(p); err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, apperr.Validation("role must be user or admin")
	}
	acc, err := s.createAccount(ctx, in.RegisterInput, role)
	if err != nil {
		return nil, err
	}
	s.logOperation(ctx, p, "create_user", &acc.ID, acc.Username)
	return acc, nil
}

// UpdateUserInput holds the admin-editable account fields. Nil means unchanged.
type UpdateUserInput struct {
	Email    *string
	Role     *string
	Active   *bool
	Password *string
}

// UpdateUser edits another account. Admin only. Admins cannot deactivate or
// demote themselves.
func (s *Service) UpdateUser(ctx context.Context, p Principal, id uuid.UUID, in UpdateUserInput) (*models.Account, error) {
	if err := RequireAdmin(p); err != nil {
		return nil, err
	}
	if err := RequireWrite(p); err != nil {
		return nil, err
	}

	var upd store.AccountUpdate
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		upd.Email = email
		upd.ClearEmail = email == nil
	}
	if in.Role != nil {
		if *in.Role != models.RoleUser && *in.Role != models.RoleAdmin {
			return nil, apperr.Validation("role must be user or admin")
		}
		if id == p.AccountID && *in.Role != models.RoleAdmin {
			return nil, apperr.Validation("cannot remove your own admin role")
		}
		upd.Role = in.Role
	}
	if in.Active != nil {
		if id == p.AccountID && !*in.Active {
			return nil, apperr.Validation("cannot deactivate your own account")
		}
		upd.Active = in.Active
	}
	if in.Password != nil {
		if len(*in.Password) < minPasswordLen {
			return nil, apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), s.opts.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		h := string(hash)
		upd.PasswordHash = &h
	}

	acc, err := s.repo.UpdateAccount(ctx, id, upd)
	if err != nil {
		return nil, accountWriteError(err)
	}
	s.logOperation(ctx, p, "update_user", &id, acc.Username)
	return acc, nil
}

// DeleteUser removes an account and everything it owns. Admin only. Admins
// cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, p Principal, id uuid.UUID) error {
	if err := RequireAdmin(p); err != nil {
		return err
	}
	if err := RequireWrite(p); err != nil {
		return err
	}
	if id == p.AccountID {
		return apperr.Validation("cannot delete your own account")
	}
	if err := s.repo.DeleteAccount(ctx, id); err != nil {
		return accountWriteError(err)
	}
	s.logOperation(ctx, p, "delete_user", &id, "")
	return nil
}

// LoginLogs returns the most recent login attempts. Admin only.
func (s *Service) LoginLogs(ctx context.Context, p Principal, limit int) ([]*models.LoginLog, error) {
	if err := RequireAdmin(p); err != nil {
		return nil, err
	}
	logs, err := s.repo.ListLoginLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list login logs: %w", err)
	}
	if logs == nil {
		logs = []*models.LoginLog{}
	}
	return logs, nil
}

func (s *Service) getAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	acc, err := s.repo.GetAccountByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return acc, nil
}

// audit records a login attempt. Failures to write are logged, never returned.
func (s *Service) audit(ctx context.Context, in LoginInput, accountID *uuid.UUID, success bool, reason string, now time.Time) {
	if !success {
		slog.Warn("login failed", "username", in.Username, "ip", in.IP, "reason", reason)
	}
	entry := &models.LoginLog{
		ID:        uuid.New(),
		AccountID: accountID,
		Username:  in.Username,
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Success:   success,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := s.repo.CreateLoginLog(ctx, entry); err != nil {
		slog.Error("login log write failed", "error", err)
	}
}

func (s *Service) logOperation(ctx context.Context, p Principal, action string, resourceID *uuid.UUID, details string) {
	actor := p.AccountID
	entry := &models.OperationLog{
		ID:           uuid.New(),
		AccountID:    &actor,
		Action:       action,
		ResourceType: "account",
		ResourceID:   resourceID,
		Details:      details,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateOperationLog(ctx, entry); err != nil {
		slog.Error("operation log write failed", "action", action, "error", err)
	}
}

func lockedError(until, now time.Time) error {
	secs := int(math.Ceil(until.Sub(now).Seconds()))
	return apperr.New(apperr.KindAccountLocked, "account is temporarily locked").
		WithDetail("locked_until", until.UTC()).
		WithDetail("lock_seconds", secs)
}

func normalizeEmail(email string) (*string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, apperr.Validation("email address is invalid")
	}
	return &email, nil
}

func accountWriteError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("account not found")
	case errors.Is(err, store.ErrDuplicateKey):
		if store.ConstraintName(err) == "accounts_email_key" {
			return apperr.Conflict("email already in use")
		}
		return apperr.Conflict("username already exists")
	default:
		return fmt.Errorf("write account: %w", err)
	}
}
