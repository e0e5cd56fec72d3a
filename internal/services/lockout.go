package services

import (
	"context"
	"time"

	"github.com/homegrid/backend/internal/models"
	"go.uber.org/zap"
)

// LockoutRepository is the interface that wraps the store operations the
// lockout policy needs. Both mutations are applied atomically at the store so
// concurrent login attempts against the same account observe consistent counts.
type LockoutRepository interface {
	// Method IncrementFailedLogin atomically increments the failed-login
	// counter and sets locked_until when the new count reaches the threshold.
	//
	// Returns the counter value and lock timestamp after the increment.
	IncrementFailedLogin(ctx context.Context, userID int, now time.Time, threshold int, lockedUntil time.Time) (int, *time.Time, error)
	// Method ResetLockout clears the failed-login counter and lock timestamps.
	ResetLockout(ctx context.Context, userID int) error
}

// LockoutPolicy tracks failed logins per account and locks the account once
// the failure count reaches the configured threshold.
type LockoutPolicy struct {
	repo      LockoutRepository
	threshold int
	duration  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewLockoutPolicy creates a lockout policy with the given threshold and lock duration
func NewLockoutPolicy(repo LockoutRepository, threshold int, duration time.Duration, logger *zap.Logger) *LockoutPolicy {
	return &LockoutPolicy{
		repo:      repo,
		threshold: threshold,
		duration:  duration,
		logger:    logger,
		now:       time.Now,
	}
}

// Threshold returns the number of failures that locks an account
func (p *LockoutPolicy) Threshold() int {
	return p.threshold
}

// RegisterFailure records one failed login attempt for the user. The returned
// values reflect the state after the increment; a non-nil lock timestamp in
// the future means this failure locked the account. A store error is returned
// as-is: a failure that cannot be persisted must not pass as a normal
// wrong-password outcome.
func (p *LockoutPolicy) RegisterFailure(ctx context.Context, user *models.User) (int, *time.Time, error) {
	now := p.now().UTC()
	attempts, lockedUntil, err := p.repo.IncrementFailedLogin(ctx, user.ID, now, p.threshold, now.Add(p.duration))
	if err != nil {
		return 0, nil, err
	}

	user.FailedLoginAttempts = attempts
	user.LockedUntil = lockedUntil
	user.LastFailedLogin = &now

	if lockedUntil != nil && lockedUntil.After(now) {
		p.logger.Warn("account locked after repeated failed logins",
			zap.Int("user_id", user.ID),
			zap.Int("attempts", attempts),
			zap.Time("locked_until", *lockedUntil),
		)
	}

	return attempts, lockedUntil, nil
}

// Clear resets the failed-login counter and lock timestamps after a
// successful authentication.
func (p *LockoutPolicy) Clear(ctx context.Context, user *models.User) error {
	if err := p.repo.ResetLockout(ctx, user.ID); err != nil {
		return err
	}

	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastFailedLogin = nil
	return nil
}

// IsLocked reports whether the account is currently locked
func (p *LockoutPolicy) IsLocked(user *models.User) bool {
	return user.LockedUntil != nil && user.LockedUntil.After(p.now())
}

// RemainingMinutes returns how many minutes of the lockout window are left,
// rounded up, or 0 when the account is not locked.
func (p *LockoutPolicy) RemainingMinutes(user *models.User) int {
	if !p.IsLocked(user) {
		return 0
	}

	remaining := user.LockedUntil.Sub(p.now())
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	if minutes < 0 {
		return 0
	}
	return minutes
}
