package middleware

import (
	"net/http"
	"strings"

	"github.com/danya/gymcrm/internal/shared"
	"github.com/danya/gymcrm/token"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// TokenVerifier verifies a bearer token and returns its claims
type TokenVerifier interface {
	Verify(token string) (*token.ClaimSet, error)
}

// AuthMiddleware resolves the caller of each request from its bearer token
type AuthMiddleware struct {
	verifier  TokenVerifier
	responder *ErrorResponder
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(verifier TokenVerifier, responder *ErrorResponder, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		responder: responder,
		logger:    logger,
	}
}

// Authenticate attaches a Principal when the request carries a valid
// bearer token. Requests without one continue anonymously; requests with
// an invalid or expired one are rejected with 401 before routing.
// Verification is signature based and never touches the user store.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw, present := extractBearerToken(r)
		if !present {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.verifier.Verify(raw)
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("request_id", chimw.GetReqID(ctx)),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			if !shared.IsUnauthorizedError(err) {
				err = shared.Wrap(shared.ErrInvalidToken, err)
			}
			m.responder.Respond(w, r, err)
			return
		}

		principal := &Principal{
			Username: claims.Subject,
			Roles:    claims.Roles,
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", chimw.GetReqID(ctx)),
			zap.String("username", principal.Username))

		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
	})
}

// extractBearerToken returns the token of an "Authorization: Bearer <token>"
// header. present is false when there is no header or another scheme is used.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}

	return strings.TrimSpace(parts[1]), true
}
