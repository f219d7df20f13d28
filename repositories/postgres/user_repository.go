package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danya/gymcrm/internal/shared"
	"github.com/danya/gymcrm/models"
	"github.com/danya/gymcrm/repositories"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// uniqueViolation is the postgres SQLSTATE for unique constraint failures
const uniqueViolation = "23505"

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// Create inserts the user row and one users_roles row per role.
// Call it inside TransactionManager.InTransaction to make both atomic.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, first_name, last_name, username, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Username,
		user.PasswordHash,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return shared.Wrap(shared.ErrDuplicateUsername, err)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	assign := `
		INSERT INTO users_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE role_name = $2
	`
	for _, role := range user.Roles {
		res, err := executor.ExecContext(ctx, assign, user.ID, string(role))
		if err != nil {
			return fmt.Errorf("failed to assign role %s: %w", role, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("unknown role: %s", role)
		}
	}

	r.logger.Debug("user created",
		zap.String("id", user.ID.String()),
		zap.String("username", user.Username))
	return nil
}

// GetByUsername retrieves a user and its roles ordered by name
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, first_name, last_name, username, password_hash, is_active, created_at, updated_at
		FROM users
		WHERE username = $1
	`

	executor := GetExecutor(ctx, r.db)
	user := &models.User{}

	err := executor.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Username,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	roles, err := r.rolesOf(ctx, executor, user)
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	return user, nil
}

func (r *UserRepository) rolesOf(ctx context.Context, executor Executor, user *models.User) ([]models.RoleName, error) {
	query := `
		SELECT r.role_name
		FROM roles r
		JOIN users_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.role_name
	`

	rows, err := executor.QueryContext(ctx, query, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var roles []models.RoleName
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, models.RoleName(name))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}

	return roles, nil
}

// ExistsByUsername reports whether a user with the username exists
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := GetExecutor(ctx, r.db).
		QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// UpdatePassword replaces the password hash of the user
func (r *UserRepository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2,
		    updated_at = $3
		WHERE username = $1
	`
	if err := r.updateOne(ctx, query, username, passwordHash, time.Now()); err != nil {
		return err
	}
	r.logger.Debug("user password updated", zap.String("username", username))
	return nil
}

// UpdateStatus sets the active flag of the user
func (r *UserRepository) UpdateStatus(ctx context.Context, username string, active bool) error {
	query := `
		UPDATE users
		SET is_active = $2,
		    updated_at = $3
		WHERE username = $1
	`
	if err := r.updateOne(ctx, query, username, active, time.Now()); err != nil {
		return err
	}
	r.logger.Debug("user status updated",
		zap.String("username", username),
		zap.Bool("active", active))
	return nil
}

func (r *UserRepository) updateOne(ctx context.Context, query string, args ...interface{}) error {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}
