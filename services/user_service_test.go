package services

import (
	"context"
	"errors"
	"testing"

	"github.com/danya/gymcrm/internal/shared"
	"github.com/danya/gymcrm/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockUserRepository is a mock implementation of repositories.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	args := m.Called(ctx, username, passwordHash)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateStatus(ctx context.Context, username string, active bool) error {
	args := m.Called(ctx, username, active)
	return args.Error(0)
}

// inTx matches a context produced by MockTransaction
var inTx = mock.MatchedBy(func(ctx context.Context) bool {
	return ctx.Value(txMarkerKey{}) == true
})

type userServiceFixture struct {
	repo    *MockUserRepository
	txMgr   *MockTransactionManager
	tx      *MockTransaction
	hasher  *MockPasswordHasher
	service *UserService
}

func newUserServiceFixture(ctx context.Context) *userServiceFixture {
	f := &userServiceFixture{
		repo:   new(MockUserRepository),
		txMgr:  new(MockTransactionManager),
		tx:     newMockTransaction(ctx),
		hasher: new(MockPasswordHasher),
	}
	f.txMgr.On("Begin", ctx).Return(f.tx, nil).Maybe()
	f.service = NewUserService(f.repo, f.txMgr, f.hasher, zap.NewNop())
	return f
}

func (f *userServiceFixture) assertExpectations(t *testing.T) {
	f.repo.AssertExpectations(t)
	f.txMgr.AssertExpectations(t)
	f.tx.AssertExpectations(t)
	f.hasher.AssertExpectations(t)
}

func TestUserService_GetProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		user := testUser("john.doe", "hash", true, models.RoleTrainee)
		f.repo.On("GetByUsername", ctx, "john.doe").Return(user, nil)

		got, err := f.service.GetProfile(ctx, "john.doe")

		require.NoError(t, err)
		assert.Equal(t, user, got)
		f.assertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.repo.On("GetByUsername", ctx, "ghost").Return(nil, shared.ErrUserNotFound)

		got, err := f.service.GetProfile(ctx, "ghost")

		assert.Nil(t, got)
		assert.ErrorIs(t, err, shared.ErrUserNotFound)
	})
}

func TestUserService_ChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.repo.On("GetByUsername", inTx, "john.doe").Return(testUser("john.doe", "old-hash", true, models.RoleTrainee), nil)
		f.hasher.On("Compare", "old-hash", "pass123").Return(nil)
		f.hasher.On("Hash", "newpass1").Return("new-hash", nil)
		f.repo.On("UpdatePassword", inTx, "john.doe", "new-hash").Return(nil)
		f.tx.On("Commit").Return(nil)

		err := f.service.ChangePassword(ctx, "john.doe", "pass123", "newpass1")

		require.NoError(t, err)
		assert.True(t, f.tx.committed)
		f.assertExpectations(t)
	})

	t.Run("wrong current password", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.repo.On("GetByUsername", inTx, "john.doe").Return(testUser("john.doe", "old-hash", true, models.RoleTrainee), nil)
		f.hasher.On("Compare", "old-hash", "nope").Return(ErrPasswordMismatch)
		f.tx.On("Rollback").Return(nil)

		err := f.service.ChangePassword(ctx, "john.doe", "nope", "newpass1")

		assert.ErrorIs(t, err, shared.ErrInvalidCurrentPassword)
		assert.True(t, f.tx.rolledback)
		f.repo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.repo.On("GetByUsername", inTx, "ghost").Return(nil, shared.ErrUserNotFound)
		f.tx.On("Rollback").Return(nil)

		err := f.service.ChangePassword(ctx, "ghost", "pass123", "newpass1")

		assert.ErrorIs(t, err, shared.ErrUserNotFound)
		f.assertExpectations(t)
	})

	t.Run("update fails", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.repo.On("GetByUsername", inTx, "john.doe").Return(testUser("john.doe", "old-hash", true), nil)
		f.hasher.On("Compare", "old-hash", "pass123").Return(nil)
		f.hasher.On("Hash", "newpass1").Return("new-hash", nil)
		f.repo.On("UpdatePassword", inTx, "john.doe", "new-hash").Return(errors.New("connection reset"))
		f.tx.On("Rollback").Return(nil)

		err := f.service.ChangePassword(ctx, "john.doe", "pass123", "newpass1")

		require.Error(t, err)
		assert.False(t, f.tx.committed)
		f.assertExpectations(t)
	})
}

func TestUserService_SetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.hasher.On("Hash", "reset123").Return("reset-hash", nil)
		f.repo.On("UpdatePassword", inTx, "john.doe", "reset-hash").Return(nil)
		f.tx.On("Commit").Return(nil)

		require.NoError(t, f.service.SetPassword(ctx, "john.doe", "reset123"))
		f.assertExpectations(t)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.hasher.On("Hash", "reset123").Return("reset-hash", nil)
		f.repo.On("UpdatePassword", inTx, "ghost", "reset-hash").Return(shared.ErrUserNotFound)
		f.tx.On("Rollback").Return(nil)

		err := f.service.SetPassword(ctx, "ghost", "reset123")

		assert.ErrorIs(t, err, shared.ErrUserNotFound)
		f.assertExpectations(t)
	})

	t.Run("hash failure is internal", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.hasher.On("Hash", "reset123").Return("", errors.New("password length exceeds 72 bytes"))
		f.tx.On("Rollback").Return(nil)

		err := f.service.SetPassword(ctx, "john.doe", "reset123")

		assert.Equal(t, shared.ErrorTypeInternal, shared.GetErrorType(err))
		f.assertExpectations(t)
	})
}

func TestUserService_ChangeStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("deactivate", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		updated := testUser("john.doe", "hash", false, models.RoleTrainee)
		f.repo.On("UpdateStatus", inTx, "john.doe", false).Return(nil)
		f.repo.On("GetByUsername", inTx, "john.doe").Return(updated, nil)
		f.tx.On("Commit").Return(nil)

		got, err := f.service.ChangeStatus(ctx, "john.doe", models.UserStatusInactive)

		require.NoError(t, err)
		assert.False(t, got.IsActive)
		f.assertExpectations(t)
	})

	t.Run("activate", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.repo.On("UpdateStatus", inTx, "john.doe", true).Return(nil)
		f.repo.On("GetByUsername", inTx, "john.doe").Return(testUser("john.doe", "hash", true), nil)
		f.tx.On("Commit").Return(nil)

		got, err := f.service.ChangeStatus(ctx, "john.doe", models.UserStatusActive)

		require.NoError(t, err)
		assert.True(t, got.IsActive)
		f.assertExpectations(t)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.repo.On("UpdateStatus", inTx, "ghost", true).Return(shared.ErrUserNotFound)
		f.tx.On("Rollback").Return(nil)

		got, err := f.service.ChangeStatus(ctx, "ghost", models.UserStatusActive)

		assert.Nil(t, got)
		assert.ErrorIs(t, err, shared.ErrUserNotFound)
		f.assertExpectations(t)
	})
}

func TestUserService_CreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit username", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.hasher.On("Hash", "secret1").Return("hashed", nil)
		f.repo.On("ExistsByUsername", inTx, "admin").Return(false, nil)
		f.repo.On("Create", inTx, mock.MatchedBy(func(u *models.User) bool {
			return u.Username == "admin" && u.PasswordHash == "hashed" && u.IsActive &&
				len(u.Roles) == 1 && u.Roles[0] == models.RoleAdmin
		})).Return(nil)
		f.tx.On("Commit").Return(nil)

		user, err := f.service.CreateAccount(ctx, NewAccount{
			FirstName: "Ada",
			LastName:  "Admin",
			Username:  "admin",
			Password:  "secret1",
			Roles:     []models.RoleName{models.RoleAdmin},
		})

		require.NoError(t, err)
		assert.Equal(t, "admin", user.Username)
		f.assertExpectations(t)
	})

	t.Run("generated username skips taken candidates", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.hasher.On("Hash", "secret1").Return("hashed", nil)
		f.repo.On("ExistsByUsername", inTx, "john.doe").Return(true, nil)
		f.repo.On("ExistsByUsername", inTx, "john.doe1").Return(true, nil)
		f.repo.On("ExistsByUsername", inTx, "john.doe2").Return(false, nil)
		f.repo.On("Create", inTx, mock.AnythingOfType("*models.User")).Return(nil)
		f.tx.On("Commit").Return(nil)

		user, err := f.service.CreateAccount(ctx, NewAccount{
			FirstName: "john",
			LastName:  "doe",
			Password:  "secret1",
			Roles:     []models.RoleName{models.RoleTrainee},
		})

		require.NoError(t, err)
		assert.Equal(t, "john.doe2", user.Username)
		f.assertExpectations(t)
	})

	t.Run("taken username", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.hasher.On("Hash", "secret1").Return("hashed", nil)
		f.repo.On("ExistsByUsername", inTx, "admin").Return(true, nil)
		f.tx.On("Rollback").Return(nil)

		user, err := f.service.CreateAccount(ctx, NewAccount{
			Username: "admin",
			Password: "secret1",
			Roles:    []models.RoleName{models.RoleAdmin},
		})

		assert.Nil(t, user)
		assert.ErrorIs(t, err, shared.ErrDuplicateUsername)
		f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("roles are validated before touching storage", func(t *testing.T) {
		for _, roles := range [][]models.RoleName{nil, {"OWNER"}} {
			f := newUserServiceFixture(ctx)

			user, err := f.service.CreateAccount(ctx, NewAccount{Username: "x", Password: "secret1", Roles: roles})

			assert.Nil(t, user)
			var domainErr *shared.DomainError
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, shared.ErrorTypeValidation, domainErr.Type)
			f.assertExpectations(t)
		}
	})

	t.Run("create failure rolls back", func(t *testing.T) {
		f := newUserServiceFixture(ctx)
		f.hasher.On("Hash", "secret1").Return("hashed", nil)
		f.repo.On("ExistsByUsername", inTx, "admin").Return(false, nil)
		f.repo.On("Create", inTx, mock.Anything).Return(shared.ErrDuplicateUsername)
		f.tx.On("Rollback").Return(nil)

		_, err := f.service.CreateAccount(ctx, NewAccount{
			Username: "admin",
			Password: "secret1",
			Roles:    []models.RoleName{models.RoleAdmin},
		})

		assert.ErrorIs(t, err, shared.ErrDuplicateUsername)
		f.assertExpectations(t)
	})
}
