package repositories

import (
	"context"

	"github.com/danya/gymcrm/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles user and role data operations.
// Lookups return shared.ErrUserNotFound when no row matches.
type UserRepository interface {
	// Create inserts the user and its role assignments
	Create(ctx context.Context, user *models.User) error

	// GetByUsername retrieves a user with its roles
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// ExistsByUsername reports whether the username is taken
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// UpdatePassword replaces the stored password hash
	UpdatePassword(ctx context.Context, username, passwordHash string) error

	// UpdateStatus sets the active flag
	UpdateStatus(ctx context.Context, username string, active bool) error
}

// Repositories groups all repository instances
type Repositories struct {
	Users UserRepository
}
