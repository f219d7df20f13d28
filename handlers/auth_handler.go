package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/danya/gymcrm/internal/shared"
	"github.com/danya/gymcrm/middleware"
	"github.com/danya/gymcrm/services"
	"github.com/danya/gymcrm/services/ratelimit"
	"github.com/danya/gymcrm/utils"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Authenticator exchanges credentials for an access token
type Authenticator interface {
	Authenticate(ctx context.Context, creds services.Credentials) (*services.TokenResponse, error)
}

// LoginThrottle limits repeated failed logins for a username
type LoginThrottle interface {
	Check(ctx context.Context, username string) (*ratelimit.Result, error)
	RecordFailure(ctx context.Context, username string) error
	Reset(ctx context.Context, username string) error
}

// AuthHandler handles the login endpoint
type AuthHandler struct {
	auth      Authenticator
	throttle  LoginThrottle
	responder *middleware.ErrorResponder
	logger    *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. A nil throttle disables login
// throttling.
func NewAuthHandler(auth Authenticator, throttle LoginThrottle, responder *middleware.ErrorResponder, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:      auth,
		throttle:  throttle,
		responder: responder,
		logger:    logger,
	}
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var creds services.Credentials
	if err := utils.DecodeJSON(r, &creds); err != nil {
		h.responder.Respond(w, r, err)
		return
	}

	if h.throttled(w, r, creds.Username) {
		return
	}

	resp, err := h.auth.Authenticate(ctx, creds)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			h.recordFailure(ctx, creds.Username)
		}
		h.responder.Respond(w, r, err)
		return
	}
	h.resetFailures(ctx, creds.Username)

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write login response",
			zap.String("request_id", chimw.GetReqID(ctx)),
			zap.Error(err))
	}
}

// throttled answers 429 and returns true when username is locked out.
// Throttle storage errors let the login proceed.
func (h *AuthHandler) throttled(w http.ResponseWriter, r *http.Request, username string) bool {
	if h.throttle == nil {
		return false
	}

	result, err := h.throttle.Check(r.Context(), username)
	if err != nil {
		h.logger.Warn("login throttle check failed",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err))
		return false
	}
	if result.Allowed {
		return false
	}

	h.logger.Warn("login throttled",
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.String("username", username),
		zap.String("window", string(result.ViolatedWindow)))

	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
	h.responder.Respond(w, r, shared.ErrTooManyAttempts)
	return true
}

func (h *AuthHandler) recordFailure(ctx context.Context, username string) {
	if h.throttle == nil {
		return
	}
	if err := h.throttle.RecordFailure(ctx, username); err != nil {
		h.logger.Warn("failed to record login failure", zap.Error(err))
	}
}

func (h *AuthHandler) resetFailures(ctx context.Context, username string) {
	if h.throttle == nil {
		return
	}
	if err := h.throttle.Reset(ctx, username); err != nil {
		h.logger.Warn("failed to reset login failures", zap.Error(err))
	}
}
