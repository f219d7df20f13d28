package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danya/gymcrm/internal/shared"
	"github.com/danya/gymcrm/models"
	"github.com/danya/gymcrm/token"
	"go.uber.org/zap"
)

// Credentials is the username/password pair presented at login
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse is returned by a successful login
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// PrincipalStore looks up stored accounts by username.
// GetByUsername returns shared.ErrUserNotFound when no account matches.
type PrincipalStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// TokenIssuer signs claim sets into bearer tokens
type TokenIssuer interface {
	Issue(claims token.ClaimSet) (string, error)
}

// timingPassword is hashed once and compared against when the username is
// unknown, so lookups for missing accounts cost the same as a mismatch.
const timingPassword = "gymcrm/unknown-user"

// AuthService exchanges credentials for signed access tokens
type AuthService struct {
	principals PrincipalStore
	issuer     TokenIssuer
	hasher     PasswordHasher
	logger     *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService
func NewAuthService(principals PrincipalStore, issuer TokenIssuer, hasher PasswordHasher, logger *zap.Logger) *AuthService {
	return &AuthService{
		principals: principals,
		issuer:     issuer,
		hasher:     hasher,
		logger:     logger,
	}
}

// Authenticate verifies credentials and issues an access token carrying the
// account's username and roles. Unknown usernames, wrong passwords and
// inactive accounts all fail with shared.ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	user, err := s.principals.GetByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			s.compareDummy(creds.Password)
			s.rejected(creds.Username, "unknown user")
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up principal: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, creds.Password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			s.logger.Error("stored password hash is unusable",
				zap.String("username", user.Username),
				zap.Error(err))
		}
		s.rejected(creds.Username, "bad password")
		return nil, shared.ErrInvalidCredentials
	}

	if !user.IsActive {
		s.rejected(creds.Username, "inactive account")
		return nil, shared.ErrInvalidCredentials
	}

	accessToken, err := s.issuer.Issue(token.ClaimSet{
		Subject: user.Username,
		Roles:   user.Roles,
	})
	if err != nil {
		return nil, shared.WrapInternal("issue access token", err)
	}

	s.logger.Info("login succeeded",
		zap.String("username", user.Username),
		zap.Int("roles", len(user.Roles)))

	return &TokenResponse{AccessToken: accessToken}, nil
}

func (s *AuthService) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(timingPassword)
		if err != nil {
			s.logger.Error("failed to prepare timing hash", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_ = s.hasher.Compare(s.dummyHash, password)
	}
}

func (s *AuthService) rejected(username, reason string) {
	s.logger.Info("login rejected",
		zap.String("username", username),
		zap.String("reason", reason))
}
