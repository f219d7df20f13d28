package middleware

import (
	"net/http"

	"github.com/danya/gymcrm/internal/shared"
	"github.com/danya/gymcrm/models"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouteSecurity declares who may call a route. An empty Roles list leaves
// the route open to anonymous callers; otherwise holding any one of the
// roles is enough.
type RouteSecurity struct {
	Roles []models.RoleName
}

func (s RouteSecurity) roleSet() map[models.RoleName]struct{} {
	set := make(map[models.RoleName]struct{}, len(s.Roles))
	for _, role := range s.Roles {
		set[role] = struct{}{}
	}
	return set
}

// RoleGate enforces RouteSecurity declarations before handlers run
type RoleGate struct {
	responder *ErrorResponder
	logger    *zap.Logger
}

// NewRoleGate creates a new RoleGate
func NewRoleGate(responder *ErrorResponder, logger *zap.Logger) *RoleGate {
	return &RoleGate{
		responder: responder,
		logger:    logger,
	}
}

// Require restricts a route to callers holding at least one of roles
func (g *RoleGate) Require(roles ...models.RoleName) func(http.Handler) http.Handler {
	return g.Guard(RouteSecurity{Roles: roles})
}

// Guard returns middleware enforcing sec. The role set is built once here,
// at route registration.
func (g *RoleGate) Guard(sec RouteSecurity) func(http.Handler) http.Handler {
	required := sec.roleSet()

	return func(next http.Handler) http.Handler {
		if len(required) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := PrincipalFromContext(r.Context())
			if err := Authorize(principal, required); err != nil {
				g.logger.Info("access denied",
					zap.String("request_id", chimw.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("reason", err.Error()))
				g.responder.Respond(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Authorize decides whether principal may call a route requiring any of
// required. A nil principal is unauthenticated.
func Authorize(principal *Principal, required map[models.RoleName]struct{}) error {
	if len(required) == 0 {
		return nil
	}
	if principal == nil {
		return shared.ErrUnauthenticated
	}
	if !principal.HasAnyRole(required) {
		return shared.ErrForbidden
	}
	return nil
}
