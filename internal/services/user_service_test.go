package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/homegrid/backend/internal/models"
	"github.com/homegrid/backend/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAdminStore struct {
	mockUserStore

	listResult []*models.User
	listErr    error

	updateRoleErr     error
	updatePasswordErr error
	updatedRole       models.Role
	updatedHash       string
}

func (m *mockAdminStore) List(ctx context.Context) ([]*models.User, error) {
	return m.listResult, m.listErr
}

func (m *mockAdminStore) UpdateRole(ctx context.Context, userID int, role models.Role) error {
	if m.updateRoleErr != nil {
		return m.updateRoleErr
	}
	m.updatedRole = role
	return nil
}

func (m *mockAdminStore) UpdatePassword(ctx context.Context, userID int, passwordHash string) error {
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	m.updatedHash = passwordHash
	return nil
}

func newTestUserService(t *testing.T, store *mockAdminStore) (*userService, *IdentityCache) {
	t.Helper()
	logger := zap.NewNop()
	_, client := newTestRedis(t)
	access := NewAccessService(StaticAllowlist([]string{"user@example.com"}))
	cache := NewIdentityCache(client, store, access, time.Hour, logger)
	return NewUserService(store, cache, NewBcryptHasher(), logger), cache
}

func TestUserService_Get(t *testing.T) {
	store := &mockAdminStore{mockUserStore: mockUserStore{
		user: &models.User{ID: 3, Email: "user@example.com"},
	}}
	svc, _ := newTestUserService(t, store)

	user, err := svc.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)

	_, err = svc.Get(context.Background(), 99)
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)
}

func TestUserService_List(t *testing.T) {
	store := &mockAdminStore{listResult: []*models.User{
		{ID: 1, Email: "a@example.com"},
		{ID: 2, Email: "b@example.com"},
	}}
	svc, _ := newTestUserService(t, store)

	users, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestUserService_UpdateRole(t *testing.T) {
	t.Run("updates the role and evicts the cached identity", func(t *testing.T) {
		store := &mockAdminStore{mockUserStore: mockUserStore{
			user: &models.User{ID: 3, Email: "user@example.com", Role: models.RoleUser},
		}}
		svc, cache := newTestUserService(t, store)

		// Warm the cache so the eviction is observable
		_, err := cache.Load(context.Background(), 3)
		require.NoError(t, err)

		require.NoError(t, svc.UpdateRole(context.Background(), 3, models.RoleAdmin))
		assert.Equal(t, models.RoleAdmin, store.updatedRole)

		// The next resolve must see the new role, not the cached one
		store.mu.Lock()
		store.user.Role = models.RoleAdmin
		store.mu.Unlock()
		loaded, err := cache.Load(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, loaded.Role)
	})

	t.Run("rejects unknown roles", func(t *testing.T) {
		store := &mockAdminStore{}
		svc, _ := newTestUserService(t, store)

		assert.Error(t, svc.UpdateRole(context.Background(), 3, models.Role(9)))
		assert.Zero(t, store.updatedRole)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		store := &mockAdminStore{updateRoleErr: errors.New("deadlock")}
		svc, _ := newTestUserService(t, store)

		assert.Error(t, svc.UpdateRole(context.Background(), 3, models.RoleAdmin))
	})
}

func TestUserService_ChangePassword(t *testing.T) {
	const current = "Password1!"

	newStore := func(t *testing.T) *mockAdminStore {
		return &mockAdminStore{mockUserStore: mockUserStore{
			user: &models.User{ID: 3, Email: "user@example.com", PasswordHash: hashPassword(t, current)},
		}}
	}

	t.Run("success stores a new hash", func(t *testing.T) {
		store := newStore(t)
		svc, _ := newTestUserService(t, store)

		require.NoError(t, svc.ChangePassword(context.Background(), 3, current, "Different2!"))
		require.NotEmpty(t, store.updatedHash)
		assert.True(t, NewBcryptHasher().Verify(store.updatedHash, "Different2!"))
	})

	t.Run("wrong current password", func(t *testing.T) {
		store := newStore(t)
		svc, _ := newTestUserService(t, store)

		err := svc.ChangePassword(context.Background(), 3, "not-the-password", "Different2!")
		assert.ErrorIs(t, err, ErrWrongPassword)
		assert.Empty(t, store.updatedHash)
	})

	t.Run("weak new password", func(t *testing.T) {
		store := newStore(t)
		svc, _ := newTestUserService(t, store)

		err := svc.ChangePassword(context.Background(), 3, current, "short")
		assert.ErrorIs(t, err, ErrWeakPassword)
		assert.Empty(t, store.updatedHash)
	})

	t.Run("unknown user", func(t *testing.T) {
		store := &mockAdminStore{}
		svc, _ := newTestUserService(t, store)

		err := svc.ChangePassword(context.Background(), 99, current, "Different2!")
		assert.ErrorIs(t, err, repositories.ErrUserNotFound)
	})
}
