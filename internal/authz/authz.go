// Package authz computes who is making a request once, up front, and hands
// the result to every handler as a RequestContext.
package authz

import (
	"feedboard-backend/internal/apperr"
	"feedboard-backend/internal/models"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

const contextKey = "request_context"

// RequestContext is either Anonymous or Authenticated
type RequestContext interface {
	// UserID is empty for anonymous requests
	UserID() string
	IsAdmin() bool
	Actor() models.Actor
	isRequestContext()
}

type Anonymous struct{}

func (Anonymous) UserID() string      { return "" }
func (Anonymous) IsAdmin() bool       { return false }
func (Anonymous) Actor() models.Actor { return models.Actor{} }
func (Anonymous) isRequestContext()   {}

type Authenticated struct {
	ID    string
	Email string
	Role  models.Role
}

func (a Authenticated) UserID() string { return a.ID }
func (a Authenticated) IsAdmin() bool  { return a.Role == models.RoleAdmin }
func (a Authenticated) Actor() models.Actor {
	return models.Actor{UserID: a.ID, IsAdmin: a.IsAdmin()}
}
func (Authenticated) isRequestContext() {}

// Identity is what the auth provider knows about a credential holder
type Identity struct {
	ID    string
	Email string
}

// IdentityOracle resolves the request's credential. It returns nil, nil
// when no credential was presented.
type IdentityOracle interface {
	GetUser(c echo.Context) (*Identity, error)
}

// Guard resolves the caller's identity and role and stores the resulting
// RequestContext on the echo context. Requests without a credential
// continue as Anonymous; invalid credentials are rejected.
func Guard(oracle IdentityOracle, db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, err := oracle.GetUser(c)
			if err != nil {
				return err
			}
			if identity == nil {
				Set(c, Anonymous{})
				return next(c)
			}

			role, err := models.EnsureUserRole(db, identity.ID)
			if err != nil {
				return apperr.Upstream("resolve user role", err)
			}

			Set(c, Authenticated{
				ID:    identity.ID,
				Email: identity.Email,
				Role:  role.Role,
			})
			return next(c)
		}
	}
}

// RequireAuthenticated rejects anonymous requests
func RequireAuthenticated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := FromContext(c).(Authenticated); !ok {
				return apperr.Unauthorized("sign_in_required", "Please sign in to continue")
			}
			return next(c)
		}
	}
}

// Set stores rc on the echo context
func Set(c echo.Context, rc RequestContext) {
	c.Set(contextKey, rc)
}

// FromContext returns the request's context, Anonymous when the guard
// didn't run.
func FromContext(c echo.Context) RequestContext {
	if rc, ok := c.Get(contextKey).(RequestContext); ok {
		return rc
	}
	return Anonymous{}
}

// Must returns the authenticated caller; only valid behind RequireAuthenticated
func Must(c echo.Context) (Authenticated, error) {
	auth, ok := FromContext(c).(Authenticated)
	if !ok {
		return Authenticated{}, apperr.Unauthorized("sign_in_required", "Please sign in to continue")
	}
	return auth, nil
}
