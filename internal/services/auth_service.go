package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/homegrid/backend/internal/models"
	"github.com/homegrid/backend/internal/repositories"
	"go.uber.org/zap"
)

// Signup failure reasons, distinguished so the handler can pick status codes
var (
	ErrEmailNotAllowed = errors.New("email is not authorized to use this application")
	ErrEmailExists     = errors.New("email already exists")
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrWeakPassword    = errors.New("password must be at least 8 characters long and contain at least one uppercase letter, one lowercase letter, one number, and one special character (!_?^&+-=|)")
)

// LoginOutcome is the tagged result of an authentication attempt
type LoginOutcome int

const (
	LoginSuccess LoginOutcome = iota
	LoginInvalidCredentials
	LoginLockedOut
	LoginNotAuthorized
)

// LoginResult carries the authentication outcome and its details. Denials are
// values, not errors; an error from Authenticate always means the store or
// cache failed, never that the credentials were wrong.
type LoginResult struct {
	Outcome LoginOutcome
	// User is set only on LoginSuccess
	User *models.User
	// AttemptsRemaining is set on LoginInvalidCredentials when the account
	// exists, so the response can warn before a lockout
	AttemptsRemaining int
	// RetryAfterMinutes is set on LoginLockedOut
	RetryAfterMinutes int
}

// UserRepository is the interface that wraps methods for user table data access
type UserRepository interface {
	// Method Create inserts a new user into the database.
	//
	// If a user with the same email already exists, the insert fails and the
	// error is returned.
	Create(ctx context.Context, user *models.User) error
	// Method GetByEmail retrieves a user by email.
	//
	// If no user with such email exists, repositories.ErrUserNotFound is returned.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// Method GetByID retrieves a user by ID.
	//
	// If no user with such ID exists, repositories.ErrUserNotFound is returned.
	GetByID(ctx context.Context, userID int) (*models.User, error)
	// Method ExistsByEmail checks if a user with such email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// Method Count returns the total number of users.
	Count(ctx context.Context) (int, error)
}

// authService implements the authentication flow: store lookup, lockout
// check, password verification and the final allow-list gate.
type authService struct {
	userRepo UserRepository
	lockout  *LockoutPolicy
	access   *AccessService
	hasher   PasswordHasher
	logger   *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(userRepo UserRepository, lockout *LockoutPolicy, access *AccessService, hasher PasswordHasher, logger *zap.Logger) *authService {
	return &authService{
		userRepo: userRepo,
		lockout:  lockout,
		access:   access,
		hasher:   hasher,
		logger:   logger,
	}
}

// emailRegex validates email format
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// passwordRegex validates password: at least 8 chars, uppercase, lowercase, number, special: !_?^&+-=|
var passwordRegex = []*regexp.Regexp{
	regexp.MustCompile(`.{8,}`),
	regexp.MustCompile(`[a-z]`),
	regexp.MustCompile(`[A-Z]`),
	regexp.MustCompile(`[0-9]`),
	regexp.MustCompile(`[!_?^&+\-=|]`),
}

// Authenticate validates the credentials and the account state for one login
// attempt. Unknown email and wrong password produce the same outcome so
// callers cannot probe which accounts exist. Credential validity and
// allow-list membership are checked in two phases: a correct password for a
// non-listed account clears the lockout counters but still ends in
// LoginNotAuthorized.
func (s *authService) Authenticate(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return &LoginResult{Outcome: LoginInvalidCredentials}, nil
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if s.lockout.IsLocked(user) {
		return &LoginResult{
			Outcome:           LoginLockedOut,
			RetryAfterMinutes: s.lockout.RemainingMinutes(user),
		}, nil
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		attempts, lockedUntil, err := s.lockout.RegisterFailure(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("failed to record failed login: %w", err)
		}

		if lockedUntil != nil && s.lockout.IsLocked(user) {
			return &LoginResult{
				Outcome:           LoginLockedOut,
				RetryAfterMinutes: s.lockout.RemainingMinutes(user),
			}, nil
		}

		remaining := s.lockout.Threshold() - attempts
		if remaining < 0 {
			remaining = 0
		}
		return &LoginResult{
			Outcome:           LoginInvalidCredentials,
			AttemptsRemaining: remaining,
		}, nil
	}

	// Skip the reset write when the counters are already clear, so a denied
	// allow-list check leaves the row untouched
	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil || user.LastFailedLogin != nil {
		if err := s.lockout.Clear(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to reset lockout state: %w", err)
		}
	}

	if !s.access.Allowed(user) {
		s.logger.Warn("valid credentials for non-allow-listed email", zap.Int("user_id", user.ID))
		return &LoginResult{Outcome: LoginNotAuthorized}, nil
	}

	return &LoginResult{Outcome: LoginSuccess, User: user}, nil
}

// Signup creates a new user account with the default role. The allow-list is
// checked before anything else: addresses outside it cannot register at all.
func (s *authService) Signup(ctx context.Context, req *models.SignupRequest) (*models.User, error) {
	email := NormalizeEmail(req.Email)

	if !emailRegex.MatchString(email) {
		return nil, ErrInvalidEmail
	}

	if !s.access.Allowed(&models.User{Email: email}) {
		return nil, ErrEmailNotAllowed
	}

	for _, regex := range passwordRegex {
		if !regex.MatchString(req.Password) {
			return nil, ErrWeakPassword
		}
	}

	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrEmailExists
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		Role:         models.RoleUser, // Default role
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user account created", zap.Int("user_id", user.ID))
	return user, nil
}

// EnsureDefaultAdmin seeds one admin account when the user table is empty.
// Called once at startup; a no-op when any user exists or no seed is configured.
func (s *authService) EnsureDefaultAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	count, err := s.userRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Role:         models.RoleAdmin,
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create default admin: %w", err)
	}

	s.logger.Info("default admin account created", zap.Int("user_id", admin.ID))
	return nil
}
