package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/homegrid/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestIdentityCache_Load(t *testing.T) {
	logger := zap.NewNop()
	user := &models.User{ID: 7, Email: "user@example.com", Role: models.RoleUser}

	t.Run("miss populates the cache", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := &mockUserStore{user: user}
		access := NewAccessService(StaticAllowlist([]string{"user@example.com"}))
		cache := NewIdentityCache(client, store, access, time.Hour, logger)

		loaded, err := cache.Load(context.Background(), 7)

		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, 7, loaded.ID)
		assert.Equal(t, "user@example.com", loaded.Email)

		payload, err := mr.Get("user_7")
		require.NoError(t, err)
		var cached cachedUser
		require.NoError(t, json.Unmarshal([]byte(payload), &cached))
		assert.Equal(t, cachedUserVersion, cached.Version)
		assert.Equal(t, 7, cached.ID)

		ttl := mr.TTL("user_7")
		assert.Equal(t, time.Hour, ttl)
	})

	t.Run("hit does not touch the store", func(t *testing.T) {
		_, client := newTestRedis(t)
		store := &mockUserStore{user: user}
		access := NewAccessService(StaticAllowlist([]string{"user@example.com"}))
		cache := NewIdentityCache(client, store, access, time.Hour, logger)

		_, err := cache.Load(context.Background(), 7)
		require.NoError(t, err)

		// Remove the backing row; the cached entry must still resolve
		store.mu.Lock()
		store.user = nil
		store.mu.Unlock()

		loaded, err := cache.Load(context.Background(), 7)

		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, "user@example.com", loaded.Email)
	})

	t.Run("revocation takes effect on a cache hit", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := &mockUserStore{user: user}
		allowed := []string{"user@example.com"}
		access := NewAccessService(func() []string { return allowed })
		cache := NewIdentityCache(client, store, access, time.Hour, logger)

		_, err := cache.Load(context.Background(), 7)
		require.NoError(t, err)
		require.True(t, mr.Exists("user_7"))

		allowed = []string{"someone-else@example.com"}

		loaded, err := cache.Load(context.Background(), 7)

		require.NoError(t, err)
		assert.Nil(t, loaded)
		assert.False(t, mr.Exists("user_7"))
	})

	t.Run("corrupt entry is evicted and refetched", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := &mockUserStore{user: user}
		access := NewAccessService(StaticAllowlist([]string{"user@example.com"}))
		cache := NewIdentityCache(client, store, access, time.Hour, logger)

		require.NoError(t, mr.Set("user_7", "not-json"))

		loaded, err := cache.Load(context.Background(), 7)

		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, "user@example.com", loaded.Email)

		// The rewritten entry is well-formed again
		payload, err := mr.Get("user_7")
		require.NoError(t, err)
		var cached cachedUser
		assert.NoError(t, json.Unmarshal([]byte(payload), &cached))
	})

	t.Run("stale schema version is treated as corrupt", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := &mockUserStore{user: user}
		access := NewAccessService(StaticAllowlist([]string{"user@example.com"}))
		cache := NewIdentityCache(client, store, access, time.Hour, logger)

		stale, _ := json.Marshal(cachedUser{Version: 0, ID: 7, Email: "user@example.com"})
		require.NoError(t, mr.Set("user_7", string(stale)))

		loaded, err := cache.Load(context.Background(), 7)

		require.NoError(t, err)
		require.NotNil(t, loaded)
	})

	t.Run("unknown user resolves to nil without caching", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := &mockUserStore{}
		access := NewAccessService(StaticAllowlist([]string{"user@example.com"}))
		cache := NewIdentityCache(client, store, access, time.Hour, logger)

		loaded, err := cache.Load(context.Background(), 42)

		require.NoError(t, err)
		assert.Nil(t, loaded)
		assert.False(t, mr.Exists("user_42"))
	})

	t.Run("non-allow-listed user is not cached", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := &mockUserStore{user: user}
		access := NewAccessService(StaticAllowlist([]string{"other@example.com"}))
		cache := NewIdentityCache(client, store, access, time.Hour, logger)

		loaded, err := cache.Load(context.Background(), 7)

		require.NoError(t, err)
		assert.Nil(t, loaded)
		assert.False(t, mr.Exists("user_7"))
	})

	t.Run("cache backend failure falls back to the store", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := &mockUserStore{user: user}
		access := NewAccessService(StaticAllowlist([]string{"user@example.com"}))
		cache := NewIdentityCache(client, store, access, time.Hour, logger)

		mr.SetError("backend down")

		loaded, err := cache.Load(context.Background(), 7)

		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, "user@example.com", loaded.Email)
	})
}

func TestIdentityCache_Invalidate(t *testing.T) {
	logger := zap.NewNop()
	mr, client := newTestRedis(t)
	store := &mockUserStore{user: &models.User{ID: 7, Email: "user@example.com"}}
	access := NewAccessService(StaticAllowlist([]string{"user@example.com"}))
	cache := NewIdentityCache(client, store, access, time.Hour, logger)

	_, err := cache.Load(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, mr.Exists("user_7"))

	require.NoError(t, cache.Invalidate(context.Background(), 7))
	assert.False(t, mr.Exists("user_7"))
}
