package auth

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// ParseRole returns the Role named by s.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleDoctor, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Principal is the authenticated caller of a request. It is resolved once by
// SessionMiddleware and passed explicitly to services.
type Principal struct {
	UserID    int64  `json:"user_id"`
	Role      Role   `json:"role"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	SessionID string `json:"-"`
}

func (p *Principal) Is(role Role) bool {
	return p != nil && p.Role == role
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// CurrentPrincipal returns the caller of an echo request, or nil.
func CurrentPrincipal(c echo.Context) *Principal {
	p, _ := PrincipalFromContext(c.Request().Context())
	return p
}

// SetPrincipal stores p on both the echo context and the request context.
func SetPrincipal(c echo.Context, p *Principal) {
	c.Set(string(principalKey), p)
	c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
}
