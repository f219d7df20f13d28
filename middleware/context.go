package middleware

import (
	"context"

	"github.com/danya/gymcrm/models"
)

// principalKey is the context key for the authenticated caller
type principalKey struct{}

// Principal is the caller identity resolved from a verified token.
// It lives only as long as the request context that carries it.
type Principal struct {
	Username string
	Roles    []models.RoleName
}

// HasAnyRole reports whether the principal holds at least one of the roles
func (p *Principal) HasAnyRole(required map[models.RoleName]struct{}) bool {
	for _, role := range p.Roles {
		if _, ok := required[role]; ok {
			return true
		}
	}
	return false
}

// WithPrincipal attaches p to ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached by Authenticate.
// ok is false for anonymous requests.
func PrincipalFromContext(ctx context.Context) (p *Principal, ok bool) {
	p, ok = ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
