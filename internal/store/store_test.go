package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/totpvault/internal/store"
	"github.com/kiranshivaraju/totpvault/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("totpvault_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newStore(t *testing.T) *store.PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	return store.NewPostgresStore(setupTestDB(t))
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func createAccount(t *testing.T, s store.Store, username string) *models.Account {
	t.Helper()
	ts := now()
	acc := &models.Account{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: "bcrypt-hash",
		Role:         models.RoleUser,
		Active:       true,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	owner := acc.ID
	cat := &models.Category{
		ID:        uuid.New(),
		OwnerID:   &owner,
		Name:      "Uncategorized",
		IsDefault: true,
		Icon:      "folder",
		Color:     "#1890ff",
		CreatedAt: ts,
	}
	require.NoError(t, s.CreateAccount(context.Background(), acc, cat))
	return acc
}

func createSecret(t *testing.T, s store.Store, owner uuid.UUID, name string, mutate func(*models.OTPSecret)) *models.OTPSecret {
	t.Helper()
	ts := now()
	sec := &models.OTPSecret{
		ID:        uuid.New(),
		OwnerID:   owner,
		Name:      name,
		Secret:    "JBSWY3DPEHPK3PXP",
		Algorithm: "SHA1",
		Digits:    6,
		Period:    30,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if mutate != nil {
		mutate(sec)
	}
	require.NoError(t, s.CreateSecret(context.Background(), sec))
	return sec
}

// --- Account Tests ---

func TestAccount_CreateAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	acc := createAccount(t, s, "alice")

	got, err := s.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, models.RoleUser, got.Role)
	assert.True(t, got.Active)

	byID, err := s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	def, err := s.GetDefaultCategory(ctx, acc.ID)
	require.NoError(t, err)
	require.NotNil(t, def.OwnerID)
	assert.Equal(t, acc.ID, *def.OwnerID)
}

func TestAccount_DuplicateUsername(t *testing.T) {
	s := newStore(t)
	createAccount(t, s, "alice")

	ts := now()
	err := s.CreateAccount(context.Background(), &models.Account{
		ID: uuid.New(), Username: "alice", PasswordHash: "x", Role: models.RoleUser, Active: true,
		CreatedAt: ts, UpdatedAt: ts,
	}, nil)
	require.ErrorIs(t, err, store.ErrDuplicateKey)
	assert.Equal(t, "accounts_username_key", store.ConstraintName(err))
}

func TestAccount_GetNotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.GetAccountByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAccount_LoginFailureLocksAtThreshold(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "bob")
	ts := now()

	for i := 1; i <= 4; i++ {
		f, err := s.RecordLoginFailure(ctx, acc.ID, 5, 30*time.Minute, ts)
		require.NoError(t, err)
		assert.Equal(t, i, f.FailedCount)
		assert.Nil(t, f.LockedUntil)
	}

	f, err := s.RecordLoginFailure(ctx, acc.ID, 5, 30*time.Minute, ts)
	require.NoError(t, err)
	assert.Equal(t, 5, f.FailedCount)
	require.NotNil(t, f.LockedUntil)
	assert.WithinDuration(t, ts.Add(30*time.Minute), *f.LockedUntil, time.Second)

	// After the lock expires the next failure restarts the count.
	later := ts.Add(31 * time.Minute)
	f, err = s.RecordLoginFailure(ctx, acc.ID, 5, 30*time.Minute, later)
	require.NoError(t, err)
	assert.Equal(t, 1, f.FailedCount)
	assert.Nil(t, f.LockedUntil)
}

func TestAccount_ConcurrentLoginFailuresAreCounted(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "carol")
	ts := now()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordLoginFailure(ctx, acc.ID, 100, time.Minute, ts)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.FailedLoginCount)
}

func TestAccount_LoginSuccessResetsCounters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "dave")
	ts := now()

	_, err := s.RecordLoginFailure(ctx, acc.ID, 5, time.Minute, ts)
	require.NoError(t, err)
	require.NoError(t, s.RecordLoginSuccess(ctx, acc.ID, "10.0.0.1", ts))

	got, err := s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailedLoginCount)
	assert.Nil(t, got.LockedUntil)
	assert.Equal(t, 1, got.LoginCount)
	require.NotNil(t, got.LastIP)
	assert.Equal(t, "10.0.0.1", *got.LastIP)
}

func TestAccount_UpdateAndDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "erin")

	email := "erin@example.com"
	role := models.RoleAdmin
	active := false
	got, err := s.UpdateAccount(ctx, acc.ID, store.AccountUpdate{Email: &email, Role: &role, Active: &active})
	require.NoError(t, err)
	require.NotNil(t, got.Email)
	assert.Equal(t, email, *got.Email)
	assert.Equal(t, models.RoleAdmin, got.Role)
	assert.False(t, got.Active)

	createSecret(t, s, acc.ID, "GitHub", nil)
	require.NoError(t, s.DeleteAccount(ctx, acc.ID))

	_, err = s.GetAccountByID(ctx, acc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	secrets, err := s.ListSecrets(ctx, store.SecretFilter{OwnerID: &acc.ID})
	require.NoError(t, err)
	assert.Empty(t, secrets)
}

// --- Vault Tests ---

func TestVault_MasterPasswordSingleton(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetMasterPassword(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	mp := &models.MasterPassword{PasswordHash: "h1", Salt: []byte("salt-1"), Hint: "pet", CreatedAt: now()}
	require.NoError(t, s.CreateMasterPassword(ctx, mp))
	assert.Equal(t, int64(1), mp.Generation)

	err = s.CreateMasterPassword(ctx, &models.MasterPassword{PasswordHash: "h2", Salt: []byte("s"), CreatedAt: now()})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestVault_RotationInvalidatesSessions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ts := now()

	mp := &models.MasterPassword{PasswordHash: "h1", Salt: []byte("salt-1"), CreatedAt: ts}
	require.NoError(t, s.CreateMasterPassword(ctx, mp))

	sess := &models.VaultSession{TokenHash: "tok-1", Unlocked: true, Generation: mp.Generation,
		ExpiresAt: ts.Add(24 * time.Hour), CreatedAt: ts}
	require.NoError(t, s.CreateVaultSession(ctx, sess))

	_, err := s.GetVaultSession(ctx, "tok-1", ts)
	require.NoError(t, err)

	gen, err := s.RotateMasterPassword(ctx, mp.Generation,
		&models.MasterPassword{PasswordHash: "h2", Salt: []byte("salt-2"), UpdatedAt: ts})
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)

	_, err = s.GetVaultSession(ctx, "tok-1", ts)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A session minted against the old generation is refused.
	err = s.CreateVaultSession(ctx, &models.VaultSession{TokenHash: "tok-2", Unlocked: true,
		Generation: mp.Generation, ExpiresAt: ts.Add(time.Hour), CreatedAt: ts})
	assert.ErrorIs(t, err, store.ErrStaleGeneration)

	// A rotation based on a stale read is refused.
	_, err = s.RotateMasterPassword(ctx, mp.Generation,
		&models.MasterPassword{PasswordHash: "h3", Salt: []byte("salt-3"), UpdatedAt: ts})
	assert.ErrorIs(t, err, store.ErrStaleGeneration)
}

func TestVault_ExpiredSessionRejectedAndPurged(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ts := now()

	mp := &models.MasterPassword{PasswordHash: "h1", Salt: []byte("salt"), CreatedAt: ts}
	require.NoError(t, s.CreateMasterPassword(ctx, mp))
	require.NoError(t, s.CreateVaultSession(ctx, &models.VaultSession{TokenHash: "old", Unlocked: true,
		Generation: mp.Generation, ExpiresAt: ts.Add(time.Minute), CreatedAt: ts}))
	require.NoError(t, s.CreateVaultSession(ctx, &models.VaultSession{TokenHash: "fresh", Unlocked: true,
		Generation: mp.Generation, ExpiresAt: ts.Add(time.Hour), CreatedAt: ts}))

	later := ts.Add(2 * time.Minute)
	_, err := s.GetVaultSession(ctx, "old", later)
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.PurgeExpiredVaultSessions(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetVaultSession(ctx, "fresh", later)
	assert.NoError(t, err)

	require.NoError(t, s.DeleteVaultSession(ctx, "fresh"))
	require.NoError(t, s.DeleteVaultSession(ctx, "fresh"))
}

// --- Secret Tests ---

func TestSecret_ListOrdering(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "alice")
	base := now()

	createSecret(t, s, acc.ID, "old-unpinned", func(sec *models.OTPSecret) { sec.UpdatedAt = base.Add(-time.Hour) })
	createSecret(t, s, acc.ID, "new-unpinned", func(sec *models.OTPSecret) { sec.UpdatedAt = base })
	createSecret(t, s, acc.ID, "sorted-first", func(sec *models.OTPSecret) { sec.SortOrder = -1; sec.UpdatedAt = base.Add(-2 * time.Hour) })
	createSecret(t, s, acc.ID, "pinned", func(sec *models.OTPSecret) { sec.Pinned = true; sec.SortOrder = 10 })

	secrets, err := s.ListSecrets(ctx, store.SecretFilter{OwnerID: &acc.ID})
	require.NoError(t, err)
	require.Len(t, secrets, 4)

	names := make([]string, len(secrets))
	for i, sec := range secrets {
		names[i] = sec.Name
	}
	assert.Equal(t, []string{"pinned", "sorted-first", "new-unpinned", "old-unpinned"}, names)
}

func TestSecret_ListFilters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := createAccount(t, s, "alice")
	bob := createAccount(t, s, "bob")

	createSecret(t, s, alice.ID, "GitHub", func(sec *models.OTPSecret) { sec.Issuer = "GitHub Inc"; sec.Favorite = true })
	createSecret(t, s, alice.ID, "AWS", func(sec *models.OTPSecret) { sec.Note = "prod 100% root" })
	createSecret(t, s, bob.ID, "GitHub", nil)

	secrets, err := s.ListSecrets(ctx, store.SecretFilter{OwnerID: &alice.ID, Search: "github"})
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.Equal(t, alice.ID, secrets[0].OwnerID)

	secrets, err = s.ListSecrets(ctx, store.SecretFilter{OwnerID: &alice.ID, Search: "100%"})
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.Equal(t, "AWS", secrets[0].Name)

	fav := true
	secrets, err = s.ListSecrets(ctx, store.SecretFilter{OwnerID: &alice.ID, Favorite: &fav})
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.Equal(t, "GitHub", secrets[0].Name)

	all, err := s.ListSecrets(ctx, store.SecretFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSecret_TagsAndCascade(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "alice")

	tag := &models.Tag{ID: uuid.New(), OwnerID: acc.ID, Name: "work", Color: "#000", CreatedAt: now()}
	require.NoError(t, s.CreateTag(ctx, tag))

	sec := createSecret(t, s, acc.ID, "GitHub", func(sec *models.OTPSecret) { sec.TagIDs = []uuid.UUID{tag.ID} })

	got, err := s.GetSecret(ctx, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tag.ID}, got.TagIDs)

	tagged, err := s.ListSecrets(ctx, store.SecretFilter{OwnerID: &acc.ID, TagID: &tag.ID})
	require.NoError(t, err)
	assert.Len(t, tagged, 1)

	tags, err := s.ListTags(ctx, &acc.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, 1, tags[0].SecretCount)

	require.NoError(t, s.DeleteTag(ctx, tag.ID))
	got, err = s.GetSecret(ctx, sec.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TagIDs)
}

func TestSecret_UpdateReplacesTags(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "alice")

	t1 := &models.Tag{ID: uuid.New(), OwnerID: acc.ID, Name: "a", CreatedAt: now()}
	t2 := &models.Tag{ID: uuid.New(), OwnerID: acc.ID, Name: "b", CreatedAt: now()}
	require.NoError(t, s.CreateTag(ctx, t1))
	require.NoError(t, s.CreateTag(ctx, t2))

	sec := createSecret(t, s, acc.ID, "GitHub", func(sec *models.OTPSecret) { sec.TagIDs = []uuid.UUID{t1.ID} })
	sec.Name = "GitHub Enterprise"
	sec.TagIDs = []uuid.UUID{t2.ID}
	sec.UpdatedAt = now()
	require.NoError(t, s.UpdateSecret(ctx, sec, true))

	got, err := s.GetSecret(ctx, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, "GitHub Enterprise", got.Name)
	assert.Equal(t, []uuid.UUID{t2.ID}, got.TagIDs)

	err = s.UpdateSecret(ctx, &models.OTPSecret{ID: uuid.New(), Algorithm: "SHA1", Digits: 6, Period: 30}, false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSecret_TogglesAndUse(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "alice")
	sec := createSecret(t, s, acc.ID, "GitHub", nil)

	fav, err := s.ToggleSecretFavorite(ctx, sec.ID)
	require.NoError(t, err)
	assert.True(t, fav)
	fav, err = s.ToggleSecretFavorite(ctx, sec.ID)
	require.NoError(t, err)
	assert.False(t, fav)

	pinned, err := s.ToggleSecretPinned(ctx, sec.ID)
	require.NoError(t, err)
	assert.True(t, pinned)

	ts := now()
	require.NoError(t, s.RecordSecretUse(ctx, sec.ID, ts))
	require.NoError(t, s.RecordSecretUse(ctx, sec.ID, ts))
	require.NoError(t, s.CreateUsageLog(ctx, &models.UsageLog{ID: uuid.New(), SecretID: sec.ID, AccountID: acc.ID,
		Action: "generate", CreatedAt: ts}))

	got, err := s.GetSecret(ctx, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.UseCount)
	require.NotNil(t, got.LastUsedAt)

	require.NoError(t, s.SetSecretSortOrder(ctx, sec.ID, 7))
	require.NoError(t, s.DeleteSecret(ctx, sec.ID))
	assert.ErrorIs(t, s.DeleteSecret(ctx, sec.ID), store.ErrNotFound)
	assert.ErrorIs(t, s.RecordSecretUse(ctx, sec.ID, ts), store.ErrNotFound)
}

// --- Category Tests ---

func TestCategory_DeleteReassignsSecrets(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "alice")

	owner := acc.ID
	cat := &models.Category{ID: uuid.New(), OwnerID: &owner, Name: "Work", CreatedAt: now()}
	require.NoError(t, s.CreateCategory(ctx, cat))
	sec := createSecret(t, s, acc.ID, "GitHub", func(sec *models.OTPSecret) { sec.CategoryID = &cat.ID })

	got, err := s.GetSecret(ctx, sec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CategoryName)
	assert.Equal(t, "Work", *got.CategoryName)

	def, err := s.GetDefaultCategory(ctx, acc.ID)
	require.NoError(t, err)

	moved, err := s.DeleteCategory(ctx, cat.ID, def.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	got, err = s.GetSecret(ctx, sec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, def.ID, *got.CategoryID)

	_, err = s.DeleteCategory(ctx, def.ID, def.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCategory_VisibilityAndDuplicates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := createAccount(t, s, "alice")
	bob := createAccount(t, s, "bob")

	owner := alice.ID
	require.NoError(t, s.CreateCategory(ctx, &models.Category{ID: uuid.New(), OwnerID: &owner, Name: "Work", CreatedAt: now()}))
	err := s.CreateCategory(ctx, &models.Category{ID: uuid.New(), OwnerID: &owner, Name: "Work", CreatedAt: now()})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	aliceCats, err := s.ListCategories(ctx, &alice.ID)
	require.NoError(t, err)
	bobCats, err := s.ListCategories(ctx, &bob.ID)
	require.NoError(t, err)

	// global Uncategorized + private default (+ Work for alice)
	assert.Len(t, aliceCats, 3)
	assert.Len(t, bobCats, 2)
}

// --- API Key Tests ---

func TestAPIKey_ValidateCountsUse(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "alice")
	ts := now()

	key := &models.APIKey{ID: uuid.New(), OwnerID: acc.ID, Name: "ci", KeyHash: "hash-1", KeyPrefix: "sk_0123456789...",
		Permissions: models.PermissionRead, Active: true, CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.ValidateAPIKey(ctx, "hash-1", ts)
			assert.NoError(t, err)
			if id != nil {
				assert.Equal(t, acc.ID, id.Account.ID)
				assert.Equal(t, models.PermissionRead, id.Permissions)
			}
		}()
	}
	wg.Wait()

	got, err := s.GetAPIKey(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.UseCount)
	assert.NotNil(t, got.LastUsedAt)
}

func TestAPIKey_ValidateRejectsInactiveAndExpired(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "alice")
	ts := now()
	past := ts.Add(-time.Hour)

	require.NoError(t, s.CreateAPIKey(ctx, &models.APIKey{ID: uuid.New(), OwnerID: acc.ID, Name: "off", KeyHash: "off",
		KeyPrefix: "p", Permissions: models.PermissionRead, Active: false, CreatedAt: ts, UpdatedAt: ts}))
	require.NoError(t, s.CreateAPIKey(ctx, &models.APIKey{ID: uuid.New(), OwnerID: acc.ID, Name: "old", KeyHash: "old",
		KeyPrefix: "p", Permissions: models.PermissionRead, Active: true, ExpiresAt: &past, CreatedAt: ts, UpdatedAt: ts}))

	_, err := s.ValidateAPIKey(ctx, "off", ts)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.ValidateAPIKey(ctx, "old", ts)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.ValidateAPIKey(ctx, "missing", ts)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAPIKey_UpdateListDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "alice")
	ts := now()

	key := &models.APIKey{ID: uuid.New(), OwnerID: acc.ID, Name: "ci", KeyHash: "h", KeyPrefix: "p",
		Permissions: models.PermissionRead, Active: true, CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	key.Name = "deploy"
	key.Permissions = models.PermissionWrite
	key.UpdatedAt = now()
	require.NoError(t, s.UpdateAPIKey(ctx, key))

	keys, err := s.ListAPIKeys(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "deploy", keys[0].Name)
	assert.Equal(t, models.PermissionWrite, keys[0].Permissions)

	require.NoError(t, s.DeleteAPIKey(ctx, key.ID))
	assert.ErrorIs(t, s.DeleteAPIKey(ctx, key.ID), store.ErrNotFound)
}

// --- Audit Tests ---

func TestLoginLogs_NewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "alice")
	base := now()

	require.NoError(t, s.CreateLoginLog(ctx, &models.LoginLog{ID: uuid.New(), AccountID: &acc.ID, Username: "alice",
		Success: false, Reason: models.LoginReasonWrongPassword, CreatedAt: base}))
	require.NoError(t, s.CreateLoginLog(ctx, &models.LoginLog{ID: uuid.New(), Username: "ghost",
		Success: false, Reason: models.LoginReasonUnknownUser, CreatedAt: base.Add(time.Second)}))

	logs, err := s.ListLoginLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "ghost", logs[0].Username)
	assert.Nil(t, logs[0].AccountID)

	require.NoError(t, s.CreateOperationLog(ctx, &models.OperationLog{ID: uuid.New(), AccountID: &acc.ID,
		Action: "create", ResourceType: "api_key", CreatedAt: base}))
}

func TestAccountStats(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acc := createAccount(t, s, "alice")

	createSecret(t, s, acc.ID, "one", nil)
	createSecret(t, s, acc.ID, "two", nil)
	require.NoError(t, s.CreateTag(ctx, &models.Tag{ID: uuid.New(), OwnerID: acc.ID, Name: "t", CreatedAt: now()}))

	st, err := s.GetAccountStats(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Secrets)
	assert.Equal(t, 1, st.Categories)
	assert.Equal(t, 1, st.Tags)
}

func TestSettings_SeededAndUpdated(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	settings, err := s.ListSettings(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(settings))
	for _, st := range settings {
		keys = append(keys, st.Key)
	}
	assert.Contains(t, keys, "enable_usage_stats")

	st, err := s.GetSetting(ctx, "enable_usage_stats")
	require.NoError(t, err)
	assert.Equal(t, "true", st.Value)

	ts := now()
	require.NoError(t, s.UpdateSettings(ctx, map[string]string{"enable_usage_stats": "false", "theme": "dark"}, ts))
	st, err = s.GetSetting(ctx, "enable_usage_stats")
	require.NoError(t, err)
	assert.Equal(t, "false", st.Value)
	assert.True(t, st.UpdatedAt.Equal(ts))

	_, err = s.GetSetting(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSettings_UpdateIsAllOrNothing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.UpdateSettings(ctx, map[string]string{"theme": "dark", "zz_unknown": "x"}, now())
	assert.ErrorIs(t, err, store.ErrNotFound)

	st, err := s.GetSetting(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", st.Value)
}
