// Package session keeps the authenticated identity of a browser in its server-side session.
package session

import (
	"encoding/gob"
	"net/http"

	"github.com/memberpanel/memberpanel/database/model"
	"github.com/memberpanel/memberpanel/web/cache"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	// CookieName is the cookie carrying the signed session token.
	CookieName = "memberpanel"

	loginUser = "LOGIN_USER"
)

// Identity is the snapshot of a user copied into the session at login. It is not
// refreshed when the stored user changes.
type Identity struct {
	Name  string
	Email string
	Role  model.Role
}

func (i *Identity) IsAdmin() bool {
	return i.Role == model.RoleAdmin
}

// IdentityOf snapshots u.
func IdentityOf(u *model.User) Identity {
	return Identity{Name: u.Name, Email: u.Email, Role: u.Role}
}

func init() {
	gob.Register(Identity{})
}

func options(maxAge int) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetLoginUser starts a new session for identity under a fresh token and persists it
// before returning. Any session previously attached to the browser is destroyed.
func SetLoginUser(c *gin.Context, identity Identity) error {
	s := sessions.Default(c)
	s.Clear()
	s.Options(options(cache.DefaultMaxAge))
	s.Set(cache.RotateKey, true)
	s.Set(loginUser, identity)
	return s.Save()
}

// GetLoginUser returns the identity stored in the request's session, or nil when the
// browser is anonymous or its session expired.
func GetLoginUser(c *gin.Context) *Identity {
	s := sessions.Default(c)
	if obj := s.Get(loginUser); obj != nil {
		if identity, ok := obj.(Identity); ok {
			return &identity
		}
	}
	return nil
}

// StoreError reports a failure of the session store while loading this request's session.
func StoreError(c *gin.Context) error {
	sessions.Default(c).ID()
	return cache.StoreError(c.Request)
}

// ClearSession destroys the session server-side and expires the cookie.
func ClearSession(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	s.Options(options(-1))
	return s.Save()
}
