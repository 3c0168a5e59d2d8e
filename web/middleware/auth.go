package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/memberpanel/memberpanel/database/model"
	"github.com/memberpanel/memberpanel/logger"
	"github.com/memberpanel/memberpanel/web/service"
	"github.com/memberpanel/memberpanel/web/session"

	"github.com/gin-gonic/gin"
)

// IdentityKey is the gin context key under which the guards place the session identity.
const IdentityKey = "login_user"

const internalErrorBody = "Something went wrong on our side. Please try again later."

// RoleLookup reports the role currently stored for a user.
type RoleLookup interface {
	CurrentRole(ctx context.Context, email string) (model.Role, error)
}

// ErrNoIdentity is returned by Identity when no guard ran before the handler.
var ErrNoIdentity = errors.New("no identity on request")

// Identity returns the identity placed on c by RequireLogin or RequireAdmin.
func Identity(c *gin.Context) (*session.Identity, error) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil, ErrNoIdentity
	}
	identity, ok := v.(*session.Identity)
	if !ok {
		return nil, ErrNoIdentity
	}
	return identity, nil
}

// authenticate loads the session identity. It writes the response and returns false
// when the request must not continue.
func authenticate(c *gin.Context) (*session.Identity, bool) {
	identity := session.GetLoginUser(c)
	if err := session.StoreError(c); err != nil {
		logger.Error("session store unavailable: ", err)
		c.String(http.StatusInternalServerError, internalErrorBody)
		c.Abort()
		return nil, false
	}
	if identity == nil {
		c.Redirect(http.StatusFound, "/")
		c.Abort()
		return nil, false
	}
	return identity, true
}

// RequireLogin lets authenticated sessions through and sends anonymous browsers to the
// landing page.
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := authenticate(c)
		if !ok {
			return
		}
		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// RequireAdmin lets through sessions whose snapshot carries the admin role and whose
// stored account still holds it. Everyone else authenticated goes to /members.
//
// Promotions reach a session only through a new login, while demotions apply on the
// next request.
func RequireAdmin(roles RoleLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := authenticate(c)
		if !ok {
			return
		}
		if !identity.IsAdmin() {
			c.Redirect(http.StatusFound, "/members")
			c.Abort()
			return
		}
		if roles != nil {
			role, err := roles.CurrentRole(c.Request.Context(), identity.Email)
			if err != nil && !errors.Is(err, service.ErrUserNotFound) {
				logger.Error("unable to check stored role: ", err)
				c.String(http.StatusInternalServerError, internalErrorBody)
				c.Abort()
				return
			}
			if role != model.RoleAdmin {
				logger.Warningf("session of %s still claims admin, stored role is %q", identity.Email, role)
				c.Redirect(http.StatusFound, "/members")
				c.Abort()
				return
			}
		}
		c.Set(IdentityKey, identity)
		c.Next()
	}
}
