package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/homegrid/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SessionManager stores login sessions in Redis: an opaque token maps to a
// user id with a bounded lifetime. Tokens are random UUIDs carried in an
// HTTP-only cookie; nothing about the user is stored client-side.
type SessionManager struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewSessionManager creates a new session manager with the given session lifetime
func NewSessionManager(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// TTL returns the configured session lifetime
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Create starts a new session for the user and returns its token
func (m *SessionManager) Create(ctx context.Context, userID int) (string, error) {
	token := uuid.New().String()

	if err := m.redis.Set(ctx, sessionKey(token), userID, m.ttl).Err(); err != nil {
		m.logger.Error("failed to create session", zap.Int("user_id", userID), zap.Error(err))
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	return token, nil
}

// Get resolves a session token to a user id. Returns 0 with a nil error when
// the session does not exist or has expired.
func (m *SessionManager) Get(ctx context.Context, token string) (int, error) {
	val, err := m.redis.Get(ctx, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read session: %w", err)
	}

	userID, err := strconv.Atoi(val)
	if err != nil {
		// Malformed entry; drop it so the client re-authenticates
		m.Destroy(ctx, token)
		return 0, nil
	}

	return userID, nil
}

// Destroy removes a session. Destroying an absent session is not an error.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if err := m.redis.Del(ctx, sessionKey(token)).Err(); err != nil {
		m.logger.Warn("failed to destroy session", zap.Error(err))
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

func sessionKey(token string) string {
	return "session_" + token
}

// SessionIdentity composes the session store and the identity cache into the
// per-request identity resolution used by the authentication guard.
type SessionIdentity struct {
	sessions *SessionManager
	cache    *IdentityCache
}

// NewSessionIdentity creates a new session identity resolver
func NewSessionIdentity(sessions *SessionManager, cache *IdentityCache) *SessionIdentity {
	return &SessionIdentity{
		sessions: sessions,
		cache:    cache,
	}
}

// ResolveSession resolves a session token to a user record. A nil user with a
// nil error means the session is invalid, expired, or its user is no longer
// allow-listed.
func (s *SessionIdentity) ResolveSession(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if userID == 0 {
		return nil, nil
	}

	return s.cache.Load(ctx, userID)
}
