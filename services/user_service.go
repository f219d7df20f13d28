package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/danya/gymcrm/internal/shared"
	"github.com/danya/gymcrm/models"
	"github.com/danya/gymcrm/repositories"
	"go.uber.org/zap"
)

// UserService manages the profile, password and activation state of accounts
type UserService struct {
	users     repositories.UserRepository
	txManager repositories.TransactionManager
	hasher    PasswordHasher
	logger    *zap.Logger
}

// NewUserService creates a new UserService
func NewUserService(users repositories.UserRepository, txManager repositories.TransactionManager, hasher PasswordHasher, logger *zap.Logger) *UserService {
	return &UserService{
		users:     users,
		txManager: txManager,
		hasher:    hasher,
		logger:    logger,
	}
}

// GetProfile returns the account stored under username
func (s *UserService) GetProfile(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the caller's own password after checking the
// current one. A wrong current password yields shared.ErrInvalidCurrentPassword.
func (s *UserService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	return s.txManager.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		user, err := s.users.GetByUsername(ctx, username)
		if err != nil {
			return err
		}

		if err := s.hasher.Compare(user.PasswordHash, oldPassword); err != nil {
			if errors.Is(err, ErrPasswordMismatch) {
				return shared.ErrInvalidCurrentPassword
			}
			return fmt.Errorf("verify current password: %w", err)
		}

		if err := s.storePassword(ctx, username, newPassword); err != nil {
			return err
		}

		s.logger.Info("password changed", zap.String("username", username))
		return nil
	})
}

// SetPassword replaces a user's password without knowing the current one
func (s *UserService) SetPassword(ctx context.Context, username, newPassword string) error {
	return s.txManager.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		if err := s.storePassword(ctx, username, newPassword); err != nil {
			return err
		}

		s.logger.Info("password reset", zap.String("username", username))
		return nil
	})
}

// ChangeStatus activates or deactivates an account and returns the updated profile.
// Deactivated accounts can no longer log in; tokens already issued stay
// valid until they expire.
func (s *UserService) ChangeStatus(ctx context.Context, username string, status models.UserStatus) (*models.User, error) {
	return WithTransactionResult(ctx, s.txManager, func(ctx context.Context, tx repositories.Transaction) (*models.User, error) {
		if err := s.users.UpdateStatus(ctx, username, status.IsActive()); err != nil {
			return nil, err
		}

		user, err := s.users.GetByUsername(ctx, username)
		if err != nil {
			return nil, err
		}

		s.logger.Info("account status changed",
			zap.String("username", username),
			zap.String("status", string(status)))
		return user, nil
	})
}

// NewAccount describes a user to be created
type NewAccount struct {
	FirstName string
	LastName  string
	// Username is generated from the names when empty
	Username string
	Password string
	Roles    []models.RoleName
}

// CreateAccount stores a new active user with a hashed password. An explicit
// username that is already taken yields shared.ErrDuplicateUsername.
func (s *UserService) CreateAccount(ctx context.Context, account NewAccount) (*models.User, error) {
	if len(account.Roles) == 0 {
		return nil, shared.NewDomainError(shared.ErrorTypeValidation, "At least one role is required", nil)
	}
	for _, role := range account.Roles {
		if !role.Valid() {
			return nil, shared.NewDomainError(shared.ErrorTypeValidation, fmt.Sprintf("Unknown role %q", role), nil)
		}
	}

	hash, err := s.hasher.Hash(account.Password)
	if err != nil {
		return nil, shared.WrapInternal("hash password", err)
	}

	return WithTransactionResult(ctx, s.txManager, func(ctx context.Context, tx repositories.Transaction) (*models.User, error) {
		username := account.Username
		if username == "" {
			username, err = s.GenerateUsername(ctx, account.FirstName, account.LastName)
			if err != nil {
				return nil, err
			}
		} else {
			taken, err := s.users.ExistsByUsername(ctx, username)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, shared.ErrDuplicateUsername
			}
		}

		user := models.NewUser(account.FirstName, account.LastName, username, hash, account.Roles...)
		if err := s.users.Create(ctx, user); err != nil {
			return nil, err
		}

		s.logger.Info("account created",
			zap.String("username", username),
			zap.Any("roles", account.Roles))
		return user, nil
	})
}

// GenerateUsername returns "first.last", appending 1, 2, ... until the
// candidate is free.
func (s *UserService) GenerateUsername(ctx context.Context, firstName, lastName string) (string, error) {
	base := firstName + "." + lastName
	candidate := base
	for suffix := 1; ; suffix++ {
		taken, err := s.users.ExistsByUsername(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, suffix)
	}
}

func (s *UserService) storePassword(ctx context.Context, username, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return shared.WrapInternal("hash password", err)
	}
	return s.users.UpdatePassword(ctx, username, hash)
}
