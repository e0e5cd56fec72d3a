package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/homegrid/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockLockoutRepository applies the lockout mutations to an in-memory row
// under a mutex, mirroring the atomic UPDATE the real store performs
type mockLockoutRepository struct {
	mu          sync.Mutex
	attempts    int
	lockedUntil *time.Time
	lastFailed  *time.Time

	incrementErr error
	resetErr     error
}

func (m *mockLockoutRepository) IncrementFailedLogin(ctx context.Context, userID int, now time.Time, threshold int, lockedUntil time.Time) (int, *time.Time, error) {
	if m.incrementErr != nil {
		return 0, nil, m.incrementErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	m.lastFailed = &now
	if m.attempts >= threshold {
		t := lockedUntil
		m.lockedUntil = &t
	}
	return m.attempts, m.lockedUntil, nil
}

func (m *mockLockoutRepository) ResetLockout(ctx context.Context, userID int) error {
	if m.resetErr != nil {
		return m.resetErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts = 0
	m.lockedUntil = nil
	m.lastFailed = nil
	return nil
}

func TestLockoutPolicy_RegisterFailure(t *testing.T) {
	logger := zap.NewNop()

	t.Run("below threshold increments without locking", func(t *testing.T) {
		repo := &mockLockoutRepository{attempts: 2}
		policy := NewLockoutPolicy(repo, 5, 24*time.Hour, logger)
		user := &models.User{ID: 1, FailedLoginAttempts: 2}

		attempts, lockedUntil, err := policy.RegisterFailure(context.Background(), user)

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Nil(t, lockedUntil)
		assert.Equal(t, 3, user.FailedLoginAttempts)
		assert.Nil(t, user.LockedUntil)
		assert.NotNil(t, user.LastFailedLogin)
	})

	t.Run("reaching threshold locks the account", func(t *testing.T) {
		repo := &mockLockoutRepository{attempts: 4}
		policy := NewLockoutPolicy(repo, 5, 24*time.Hour, logger)
		user := &models.User{ID: 1, FailedLoginAttempts: 4}

		before := time.Now().UTC()
		attempts, lockedUntil, err := policy.RegisterFailure(context.Background(), user)

		require.NoError(t, err)
		assert.Equal(t, 5, attempts)
		require.NotNil(t, lockedUntil)
		assert.WithinDuration(t, before.Add(24*time.Hour), *lockedUntil, 5*time.Second)
		assert.True(t, policy.IsLocked(user))
	})

	t.Run("store error propagates", func(t *testing.T) {
		repo := &mockLockoutRepository{incrementErr: errors.New("connection refused")}
		policy := NewLockoutPolicy(repo, 5, 24*time.Hour, logger)
		user := &models.User{ID: 1}

		_, _, err := policy.RegisterFailure(context.Background(), user)

		assert.Error(t, err)
	})
}

func TestLockoutPolicy_Clear(t *testing.T) {
	logger := zap.NewNop()
	locked := time.Now().Add(time.Hour)
	repo := &mockLockoutRepository{attempts: 5, lockedUntil: &locked}
	policy := NewLockoutPolicy(repo, 5, 24*time.Hour, logger)
	user := &models.User{ID: 1, FailedLoginAttempts: 5, LockedUntil: &locked}

	require.NoError(t, policy.Clear(context.Background(), user))

	assert.Equal(t, 0, user.FailedLoginAttempts)
	assert.Nil(t, user.LockedUntil)
	assert.Nil(t, user.LastFailedLogin)
	assert.Equal(t, 0, repo.attempts)
	assert.Nil(t, repo.lockedUntil)
}

func TestLockoutPolicy_IsLocked(t *testing.T) {
	logger := zap.NewNop()
	policy := NewLockoutPolicy(&mockLockoutRepository{}, 5, 24*time.Hour, logger)

	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Minute)

	assert.True(t, policy.IsLocked(&models.User{LockedUntil: &future}))
	assert.False(t, policy.IsLocked(&models.User{LockedUntil: &past}))
	assert.False(t, policy.IsLocked(&models.User{}))
}

func TestLockoutPolicy_RemainingMinutes(t *testing.T) {
	logger := zap.NewNop()
	policy := NewLockoutPolicy(&mockLockoutRepository{}, 5, 24*time.Hour, logger)

	now := time.Now()
	policy.now = func() time.Time { return now }

	tests := []struct {
		name        string
		lockedUntil *time.Time
		expected    int
	}{
		{"not locked", nil, 0},
		{"expired lock", timePtr(now.Add(-time.Minute)), 0},
		{"exactly ninety minutes", timePtr(now.Add(90 * time.Minute)), 90},
		{"partial minute rounds up", timePtr(now.Add(30 * time.Second)), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &models.User{LockedUntil: tt.lockedUntil}

			assert.Equal(t, tt.expected, policy.RemainingMinutes(user))
		})
	}
}

func TestLockoutPolicy_ConcurrentFailures(t *testing.T) {
	// N concurrent failures below the threshold must all be counted
	logger := zap.NewNop()
	repo := &mockLockoutRepository{}
	policy := NewLockoutPolicy(repo, 10, 24*time.Hour, logger)

	const n = 4
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := &models.User{ID: 1}
			_, _, err := policy.RegisterFailure(context.Background(), user)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, n, repo.attempts)
	assert.Nil(t, repo.lockedUntil)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
