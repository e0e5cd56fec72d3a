package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/homegrid/backend/internal/models"
	"go.uber.org/zap"
)

// ErrWrongPassword is returned by ChangePassword when the current password does not match
var ErrWrongPassword = errors.New("current password is incorrect")

// UserAdminRepository is the interface that wraps the user mutations reserved
// for administrative and self-service flows
type UserAdminRepository interface {
	UserRepository
	// Method List retrieves all users ordered by id.
	List(ctx context.Context) ([]*models.User, error)
	// Method UpdateRole updates a user's role.
	UpdateRole(ctx context.Context, userID int, role models.Role) error
	// Method UpdatePassword replaces a user's password hash.
	UpdatePassword(ctx context.Context, userID int, passwordHash string) error
}

// userService implements profile viewing and the administrative user mutations
type userService struct {
	userRepo UserAdminRepository
	cache    *IdentityCache
	hasher   PasswordHasher
	logger   *zap.Logger
}

// PasswordHasher is the one-way hashing contract used for password changes
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) bool
}

// NewUserService creates a new user service
func NewUserService(userRepo UserAdminRepository, cache *IdentityCache, hasher PasswordHasher, logger *zap.Logger) *userService {
	return &userService{
		userRepo: userRepo,
		cache:    cache,
		hasher:   hasher,
		logger:   logger,
	}
}

// Get retrieves a user by id. Returns repositories.ErrUserNotFound when absent.
func (s *userService) Get(ctx context.Context, userID int) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// List retrieves all users
func (s *userService) List(ctx context.Context) ([]*models.User, error) {
	return s.userRepo.List(ctx)
}

// UpdateRole changes a user's role and invalidates their cached identity so
// the change applies on their next request, not after cache expiry
func (s *userService) UpdateRole(ctx context.Context, userID int, role models.Role) error {
	if role != models.RoleUser && role != models.RoleAdmin {
		return fmt.Errorf("invalid role: %d", role)
	}

	if err := s.userRepo.UpdateRole(ctx, userID, role); err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		// Role already changed in the store; the stale cache entry expires on
		// its own, so log and move on
		s.logger.Warn("failed to invalidate identity cache after role change",
			zap.Int("user_id", userID), zap.Error(err))
	}

	s.logger.Info("user role updated", zap.Int("user_id", userID), zap.Int("role", int(role)))
	return nil
}

// ChangePassword verifies the current password and stores a new hash
func (s *userService) ChangePassword(ctx context.Context, userID int, currentPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(user.PasswordHash, currentPassword) {
		return ErrWrongPassword
	}

	for _, regex := range passwordRegex {
		if !regex.MatchString(newPassword) {
			return ErrWeakPassword
		}
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate identity cache after password change",
			zap.Int("user_id", userID), zap.Error(err))
	}

	return nil
}
