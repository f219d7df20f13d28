package app

import (
	"context"
	"fmt"

	"github.com/danya/gymcrm/config"
	"github.com/danya/gymcrm/middleware"
	"github.com/danya/gymcrm/repositories"
	"github.com/danya/gymcrm/repositories/postgres"
	"github.com/danya/gymcrm/services"
	"github.com/danya/gymcrm/services/ratelimit"
	"github.com/danya/gymcrm/token"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users     repositories.UserRepository
	TxManager repositories.TransactionManager

	// Auth
	TokenCodec     *token.Codec
	Hasher         services.PasswordHasher
	ErrorResponder *middleware.ErrorResponder
	AuthMiddleware *middleware.AuthMiddleware
	RoleGate       *middleware.RoleGate

	// Services
	AuthService *services.AuthService
	UserService *services.UserService

	// LoginLimiter is nil when every login failure limit is zero
	LoginLimiter *ratelimit.LoginLimiter
}

// NewDependencies opens the database and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := Assemble(ctx, cfg, logger, factory)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}

	return deps, nil
}

// Assemble wires the dependencies over an existing repository factory
func Assemble(ctx context.Context, cfg *config.Config, logger *zap.Logger, factory *postgres.RepositoryFactory) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if cfg.Database.InitSchema {
		if err := factory.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		logger.Info("database schema initialized")
	}

	deps.initRepositories()

	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initServices()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

// initAuth creates the process signing key and the request pipeline stages.
// The key lives only in memory; tokens issued before a restart stop verifying.
func (d *Dependencies) initAuth(cfg *config.Config) error {
	key, err := token.NewSigningKey()
	if err != nil {
		return err
	}

	d.TokenCodec = token.NewCodec(key, cfg.Auth.TokenTTL)
	d.Hasher = services.NewBcryptHasher(bcrypt.DefaultCost)
	d.ErrorResponder = middleware.NewErrorResponder(d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.TokenCodec, d.ErrorResponder, d.Logger)
	d.RoleGate = middleware.NewRoleGate(d.ErrorResponder, d.Logger)

	d.Logger.Info("auth initialized", zap.Duration("token_ttl", d.TokenCodec.TTL()))
	return nil
}

// initServices initializes the application services
func (d *Dependencies) initServices() {
	d.AuthService = services.NewAuthService(d.Users, d.TokenCodec, d.Hasher, d.Logger)
	d.UserService = services.NewUserService(d.Users, d.TxManager, d.Hasher, d.Logger)

	limits := ratelimit.Limits{
		FailuresPerMinute: d.Config.Auth.LoginFailuresPerMinute,
		FailuresPerHour:   d.Config.Auth.LoginFailuresPerHour,
	}
	if limits.Enabled() && d.DB != nil {
		d.LoginLimiter = ratelimit.NewLoginLimiter(d.DB.DB, limits, d.Logger)
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
