package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/homegrid/backend/internal/models"
	"go.uber.org/zap"
)

// ErrUserNotFound is returned when a lookup matches no user
var ErrUserNotFound = errors.New("user not found")

// userRepository implements UserRepository
type userRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *userRepository {
	return &userRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `id, email, password_hash, role, failed_login_attempts, locked_until, last_failed_login`

// Create inserts a new user into the database
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, role)
		VALUES (?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		r.logger.Error("failed to create user", zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		r.logger.Error("failed to get last insert id", zap.Error(err))
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	user.ID = int(id)
	return nil
}

// GetByEmail retrieves a user by email
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = ?
		LIMIT 1
	`

	return r.scanUser(ctx, query, email)
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, userID int) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = ?
		LIMIT 1
	`

	return r.scanUser(ctx, query, userID)
}

func (r *userRepository) scanUser(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	var lockedUntil, lastFailed sql.NullTime

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.FailedLoginAttempts,
		&lockedUntil,
		&lastFailed,
	)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		r.logger.Error("failed to get user", zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if lockedUntil.Valid {
		t := lockedUntil.Time
		user.LockedUntil = &t
	}
	if lastFailed.Valid {
		t := lastFailed.Time
		user.LastFailedLogin = &t
	}

	return user, nil
}

// ExistsByEmail checks if a user exists with the given email
func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT * FROM users WHERE email = ?)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	if err != nil {
		r.logger.Error("failed to check email existence", zap.Error(err), zap.String("email", email))
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}

	return exists, nil
}

// List retrieves all users ordered by id
func (r *userRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("failed to list users", zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		var lockedUntil, lastFailed sql.NullTime
		if err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.PasswordHash,
			&user.Role,
			&user.FailedLoginAttempts,
			&lockedUntil,
			&lastFailed,
		); err != nil {
			r.logger.Error("failed to scan user row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		if lockedUntil.Valid {
			t := lockedUntil.Time
			user.LockedUntil = &t
		}
		if lastFailed.Valid {
			t := lastFailed.Time
			user.LastFailedLogin = &t
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}

	return users, nil
}

// Count returns the total number of users
func (r *userRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		r.logger.Error("failed to count users", zap.Error(err))
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// IncrementFailedLogin atomically increments the failed-login counter and, when
// the new count reaches the threshold, sets locked_until. The increment is a
// single UPDATE so concurrent failures against the same account cannot lose
// updates. Returns the counter and lock state after the increment.
func (r *userRepository) IncrementFailedLogin(ctx context.Context, userID int, now time.Time, threshold int, lockedUntil time.Time) (int, *time.Time, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    last_failed_login = ?,
		    locked_until = CASE WHEN failed_login_attempts + 1 >= ? THEN ? ELSE locked_until END
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, now, threshold, lockedUntil, userID)
	if err != nil {
		r.logger.Error("failed to increment failed login counter", zap.Error(err), zap.Int("user_id", userID))
		return 0, nil, fmt.Errorf("failed to increment failed login counter: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return 0, nil, ErrUserNotFound
	}

	var attempts int
	var locked sql.NullTime
	err = r.db.QueryRowContext(ctx,
		`SELECT failed_login_attempts, locked_until FROM users WHERE id = ?`, userID,
	).Scan(&attempts, &locked)
	if err != nil {
		r.logger.Error("failed to read lockout state", zap.Error(err), zap.Int("user_id", userID))
		return 0, nil, fmt.Errorf("failed to read lockout state: %w", err)
	}

	if locked.Valid {
		t := locked.Time
		return attempts, &t, nil
	}
	return attempts, nil, nil
}

// ResetLockout clears the failed-login counter and lock timestamps
func (r *userRepository) ResetLockout(ctx context.Context, userID int) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    last_failed_login = NULL
		WHERE id = ?
	`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		r.logger.Error("failed to reset lockout state", zap.Error(err), zap.Int("user_id", userID))
		return fmt.Errorf("failed to reset lockout state: %w", err)
	}
	return nil
}

// UpdateRole updates a user's role
func (r *userRepository) UpdateRole(ctx context.Context, userID int, role models.Role) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, role, userID)
	if err != nil {
		r.logger.Error("failed to update role", zap.Error(err), zap.Int("user_id", userID))
		return fmt.Errorf("failed to update role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword replaces a user's password hash
func (r *userRepository) UpdatePassword(ctx context.Context, userID int, passwordHash string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, userID)
	if err != nil {
		r.logger.Error("failed to update password", zap.Error(err), zap.Int("user_id", userID))
		return fmt.Errorf("failed to update password: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}
