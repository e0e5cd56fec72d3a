package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/homegrid/backend/internal/models"
	"github.com/homegrid/backend/internal/repositories"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cachedUserVersion is bumped whenever the cached payload shape changes, so
// entries written by an older build are treated as corrupt instead of being
// misread.
const cachedUserVersion = 1

// cachedUser is the versioned cache payload for a user record
type cachedUser struct {
	Version int         `json:"v"`
	ID      int         `json:"id"`
	Email   string      `json:"email"`
	Role    models.Role `json:"role"`
}

// IdentityCache resolves a session's user id to a user record, serving from
// Redis when possible and falling back to the store. Cache failures never
// escape this component; only store failures do.
type IdentityCache struct {
	redis    *redis.Client
	userRepo UserRepository
	access   *AccessService
	ttl      time.Duration
	logger   *zap.Logger
}

// NewIdentityCache creates a new identity cache with the given TTL
func NewIdentityCache(redisClient *redis.Client, userRepo UserRepository, access *AccessService, ttl time.Duration, logger *zap.Logger) *IdentityCache {
	return &IdentityCache{
		redis:    redisClient,
		userRepo: userRepo,
		access:   access,
		ttl:      ttl,
		logger:   logger,
	}
}

// Load resolves a user id to a user record, or nil when the user does not
// exist or is no longer allow-listed. The allow-list is re-checked on every
// cache hit so a revoked address stops resolving without waiting for the TTL.
func (c *IdentityCache) Load(ctx context.Context, userID int) (*models.User, error) {
	payload, err := c.redis.Get(ctx, userCacheKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// Cache backend failure: treat as a miss, not an error
			c.logger.Warn("identity cache get failed", zap.Int("user_id", userID), zap.Error(err))
			c.evict(ctx, userID)
		}
		return c.fetchAndCache(ctx, userID)
	}

	var cached cachedUser
	if err := json.Unmarshal(payload, &cached); err != nil || cached.Version != cachedUserVersion || cached.ID != userID {
		// Corrupt or stale-schema entry: evict and fall back to the store
		c.logger.Warn("evicting corrupt identity cache entry", zap.Int("user_id", userID))
		c.evict(ctx, userID)
		return c.fetchAndCache(ctx, userID)
	}

	user := &models.User{
		ID:    cached.ID,
		Email: cached.Email,
		Role:  cached.Role,
	}

	// Cached data can outlive an allow-list change; revocation must take
	// effect on the next request
	if !c.access.Allowed(user) {
		c.evict(ctx, userID)
		return nil, nil
	}

	return user, nil
}

// Invalidate evicts the cached record for a user. Called on logout and on any
// change that affects the user's allow or role status.
func (c *IdentityCache) Invalidate(ctx context.Context, userID int) error {
	if err := c.redis.Del(ctx, userCacheKey(userID)).Err(); err != nil {
		c.logger.Warn("identity cache delete failed", zap.Int("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to invalidate identity cache: %w", err)
	}
	return nil
}

// fetchAndCache loads the user from the store and, when allow-listed,
// populates the cache for subsequent requests
func (c *IdentityCache) fetchAndCache(ctx context.Context, userID int) (*models.User, error) {
	user, err := c.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !c.access.Allowed(user) {
		return nil, nil
	}

	payload, err := json.Marshal(cachedUser{
		Version: cachedUserVersion,
		ID:      user.ID,
		Email:   user.Email,
		Role:    user.Role,
	})
	if err != nil {
		c.logger.Warn("failed to encode identity cache entry", zap.Int("user_id", userID), zap.Error(err))
		return user, nil
	}

	if err := c.redis.Set(ctx, userCacheKey(userID), payload, c.ttl).Err(); err != nil {
		// A failed write just means the next request pays a store round-trip
		c.logger.Warn("identity cache set failed", zap.Int("user_id", userID), zap.Error(err))
	}

	return user, nil
}

func (c *IdentityCache) evict(ctx context.Context, userID int) {
	if err := c.redis.Del(ctx, userCacheKey(userID)).Err(); err != nil {
		c.logger.Warn("identity cache eviction failed", zap.Int("user_id", userID), zap.Error(err))
	}
}

func userCacheKey(userID int) string {
	return fmt.Sprintf("user_%d", userID)
}
