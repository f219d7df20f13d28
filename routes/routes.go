package routes

import (
	"net/http"

	"github.com/danya/gymcrm/app"
	"github.com/danya/gymcrm/handlers"
	"github.com/danya/gymcrm/internal/observability"
	gymmw "github.com/danya/gymcrm/middleware"
	"github.com/danya/gymcrm/models"
	"github.com/danya/gymcrm/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all application routes and middleware.
// Every request passes the authenticator before routing; role checks are
// declared per route with the gate.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(deps.Logger))
	r.Use(gymmw.Recoverer(deps.ErrorResponder, deps.Logger))
	if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
		r.Use(gymmw.Timeout(timeout, deps.ErrorResponder))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Auth.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(deps.AuthMiddleware.Authenticate)

	var db handlers.HealthChecker
	if deps.DB != nil {
		db = deps.DB
	}
	health := handlers.NewHealthHandler(db, deps.Logger)
	var throttle handlers.LoginThrottle
	if deps.LoginLimiter != nil {
		throttle = deps.LoginLimiter
	}
	authHandler := handlers.NewAuthHandler(deps.AuthService, throttle, deps.ErrorResponder, deps.Logger)
	userHandler := handlers.NewUserHandler(deps.UserService, deps.ErrorResponder, deps.Logger)
	gate := deps.RoleGate

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// Login is open; it is the only route that reads the user store for auth
	r.Post("/auth/login", authHandler.HandleLogin)

	r.Route("/users", func(r chi.Router) {
		r.With(gate.Require(models.RoleAdmin, models.RoleTrainer, models.RoleTrainee)).
			Get("/me", userHandler.HandleGetMe)
		r.With(gate.Require(models.RoleTrainer, models.RoleTrainee)).
			Put("/me/password", userHandler.HandleChangeMyPassword)
		r.With(gate.Require(models.RoleTrainer, models.RoleTrainee)).
			Put("/me/status", userHandler.HandleChangeMyStatus)

		// Administration of other accounts
		r.With(gate.Require(models.RoleAdmin)).
			Put("/{username}/password", userHandler.HandleSetPassword)
		r.With(gate.Require(models.RoleAdmin)).
			Put("/{username}/status", userHandler.HandleChangeStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, r, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	return r
}
