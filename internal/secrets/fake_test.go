package secrets_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/totpvault/internal/store"
	"github.com/kiranshivaraju/totpvault/pkg/models"
)

var globalDefaultID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// fakeRepo is an in-memory secrets.Repository.
type fakeRepo struct {
	mu         sync.Mutex
	secrets    map[uuid.UUID]*models.OTPSecret
	categories map[uuid.UUID]*models.Category
	tags       map[uuid.UUID]*models.Tag
	usageLogs  []*models.UsageLog
	opLogs     []*models.OperationLog
	usageErr   error
}

func newFakeRepo() *fakeRepo {
	f := &fakeRepo{
		secrets:    map[uuid.UUID]*models.OTPSecret{},
		categories: map[uuid.UUID]*models.Category{},
		tags:       map[uuid.UUID]*models.Tag{},
	}
	f.categories[globalDefaultID] = &models.Category{ID: globalDefaultID, Name: "Uncategorized", IsDefault: true}
	return f
}

func copySecret(s *models.OTPSecret) *models.OTPSecret {
	cp := *s
	cp.TagIDs = append([]uuid.UUID{}, s.TagIDs...)
	if cp.CategoryID != nil {
		id := *cp.CategoryID
		cp.CategoryID = &id
	}
	return &cp
}

func (f *fakeRepo) CreateSecret(_ context.Context, sec *models.OTPSecret) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets[sec.ID] = copySecret(sec)
	return nil
}

func (f *fakeRepo) GetSecret(_ context.Context, id uuid.UUID) (*models.OTPSecret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copySecret(s), nil
}

func (f *fakeRepo) ListSecrets(_ context.Context, filter store.SecretFilter) ([]*models.OTPSecret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.OTPSecret{}
	search := strings.ToLower(filter.Search)
	for _, s := range f.secrets {
		if filter.OwnerID != nil && s.OwnerID != *filter.OwnerID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(s.Name+" "+s.Issuer+" "+s.Note), search) {
			continue
		}
		if filter.CategoryID != nil && (s.CategoryID == nil || *s.CategoryID != *filter.CategoryID) {
			continue
		}
		if filter.TagID != nil && !containsID(s.TagIDs, *filter.TagID) {
			continue
		}
		if filter.Favorite != nil && s.Favorite != *filter.Favorite {
			continue
		}
		if filter.Pinned != nil && s.Pinned != *filter.Pinned {
			continue
		}
		out = append(out, copySecret(s))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
	return out, nil
}

func (f *fakeRepo) UpdateSecret(_ context.Context, sec *models.OTPSecret, replaceTags bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.secrets[sec.ID]
	if !ok {
		return store.ErrNotFound
	}
	next := copySecret(sec)
	if !replaceTags {
		next.TagIDs = old.TagIDs
	}
	f.secrets[sec.ID] = next
	return nil
}

func (f *fakeRepo) DeleteSecret(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.secrets[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.secrets, id)
	return nil
}

func (f *fakeRepo) SetSecretCategory(_ context.Context, id uuid.UUID, categoryID *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok {
		return store.ErrNotFound
	}
	s.CategoryID = categoryID
	return nil
}

func (f *fakeRepo) SetSecretSortOrder(_ context.Context, id uuid.UUID, sortOrder int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok {
		return store.ErrNotFound
	}
	s.SortOrder = sortOrder
	return nil
}

func (f *fakeRepo) ToggleSecretFavorite(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok {
		return false, store.ErrNotFound
	}
	s.Favorite = !s.Favorite
	return s.Favorite, nil
}

func (f *fakeRepo) ToggleSecretPinned(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok {
		return false, store.ErrNotFound
	}
	s.Pinned = !s.Pinned
	return s.Pinned, nil
}

func (f *fakeRepo) RecordSecretUse(_ context.Context, id uuid.UUID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok {
		return store.ErrNotFound
	}
	s.UseCount++
	s.LastUsedAt = &now
	return nil
}

func (f *fakeRepo) CreateUsageLog(_ context.Context, entry *models.UsageLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usageErr != nil {
		return f.usageErr
	}
	f.usageLogs = append(f.usageLogs, entry)
	return nil
}

func (f *fakeRepo) ListCategories(_ context.Context, ownerID *uuid.UUID) ([]*models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Category{}
	for _, c := range f.categories {
		if ownerID == nil || c.OwnerID == nil || *c.OwnerID == *ownerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRepo) GetCategory(_ context.Context, id uuid.UUID) (*models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRepo) GetDefaultCategory(_ context.Context, ownerID uuid.UUID) (*models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var global *models.Category
	for _, c := range f.categories {
		if !c.IsDefault {
			continue
		}
		if c.OwnerID != nil && *c.OwnerID == ownerID {
			cp := *c
			return &cp, nil
		}
		if c.OwnerID == nil {
			global = c
		}
	}
	if global == nil {
		return nil, store.ErrNotFound
	}
	cp := *global
	return &cp, nil
}

func sameOwner(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeRepo) CreateCategory(_ context.Context, cat *models.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.categories {
		if c.Name == cat.Name && sameOwner(c.OwnerID, cat.OwnerID) {
			return store.ErrDuplicateKey
		}
	}
	cp := *cat
	f.categories[cat.ID] = &cp
	return nil
}

func (f *fakeRepo) UpdateCategory(_ context.Context, cat *models.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.categories[cat.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *cat
	f.categories[cat.ID] = &cp
	return nil
}

func (f *fakeRepo) DeleteCategory(_ context.Context, id uuid.UUID, reassignTo uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.categories[id]
	if !ok || c.IsDefault {
		return 0, store.ErrNotFound
	}
	var moved int64
	for _, s := range f.secrets {
		if s.CategoryID != nil && *s.CategoryID == id {
			target := reassignTo
			s.CategoryID = &target
			moved++
		}
	}
	delete(f.categories, id)
	return moved, nil
}

func (f *fakeRepo) ListTags(_ context.Context, ownerID *uuid.UUID) ([]*models.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Tag{}
	for _, t := range f.tags {
		if ownerID != nil && t.OwnerID != *ownerID {
			continue
		}
		cp := *t
		for _, s := range f.secrets {
			if containsID(s.TagIDs, t.ID) {
				cp.SecretCount++
			}
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRepo) GetTag(_ context.Context, id uuid.UUID) (*models.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tags[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRepo) CreateTag(_ context.Context, tag *models.Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tags {
		if t.OwnerID == tag.OwnerID && t.Name == tag.Name {
			return store.ErrDuplicateKey
		}
	}
	cp := *tag
	f.tags[tag.ID] = &cp
	return nil
}

func (f *fakeRepo) UpdateTag(_ context.Context, tag *models.Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tags[tag.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *tag
	f.tags[tag.ID] = &cp
	return nil
}

func (f *fakeRepo) DeleteTag(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tags[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.tags, id)
	for _, s := range f.secrets {
		kept := s.TagIDs[:0]
		for _, t := range s.TagIDs {
			if t != id {
				kept = append(kept, t)
			}
		}
		s.TagIDs = kept
	}
	return nil
}

func (f *fakeRepo) CreateOperationLog(_ context.Context, entry *models.OperationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opLogs = append(f.opLogs, entry)
	return nil
}

func (f *fakeRepo) hasOperation(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.opLogs {
		if strings.HasPrefix(l.Action, prefix) {
			return true
		}
	}
	return false
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

var errUsageLogDown = errors.New("usage_logs unavailable")
