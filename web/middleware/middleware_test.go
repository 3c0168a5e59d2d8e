package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/memberpanel/memberpanel/database/model"
	"github.com/memberpanel/memberpanel/web/cache"
	"github.com/memberpanel/memberpanel/web/service"
	"github.com/memberpanel/memberpanel/web/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roleTable map[string]model.Role

func (r roleTable) CurrentRole(_ context.Context, email string) (model.Role, error) {
	role, ok := r[email]
	if !ok {
		return "", service.ErrUserNotFound
	}
	return role, nil
}

type brokenLookup struct{}

func (brokenLookup) CurrentRole(context.Context, string) (model.Role, error) {
	return "", errors.New("database is locked")
}

type harness struct {
	engine *gin.Engine
	mr     *miniredis.Miniredis
	client *redis.Client
}

func newHarness(t *testing.T, roles RoleLookup) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	engine := gin.New()
	engine.Use(sessions.Sessions(session.CookieName, cache.NewRedisStore(client, []byte("0123456789abcdef0123456789abcdef"))))
	engine.POST("/as/:role/:email", func(c *gin.Context) {
		identity := session.Identity{Name: "n", Email: c.Param("email"), Role: model.Role(c.Param("role"))}
		require.NoError(t, session.SetLoginUser(c, identity))
		c.Status(http.StatusNoContent)
	})
	engine.GET("/members", RequireLogin(), func(c *gin.Context) {
		identity, err := Identity(c)
		require.NoError(t, err)
		c.String(http.StatusOK, "member "+identity.Email)
	})
	engine.GET("/admin", RequireAdmin(roles), func(c *gin.Context) {
		c.String(http.StatusOK, "admin")
	})
	return &harness{engine: engine, mr: mr, client: client}
}

func (h *harness) do(method, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(t *testing.T, role model.Role, email string) *http.Cookie {
	t.Helper()
	rec := h.do(http.MethodPost, "/as/"+string(role)+"/"+email, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestRequireLogin(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/members", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	cookie := h.login(t, model.RoleUser, "a@x.com")
	rec = h.do(http.MethodGet, "/members", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "member a@x.com", rec.Body.String())
}

func TestRequireLoginStoreDown(t *testing.T) {
	h := newHarness(t, nil)
	cookie := h.login(t, model.RoleUser, "a@x.com")

	h.mr.Close()
	rec := h.do(http.MethodGet, "/members", cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "member")
}

func TestRequireAdmin(t *testing.T) {
	h := newHarness(t, roleTable{"root@x.com": model.RoleAdmin, "a@x.com": model.RoleUser})

	rec := h.do(http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = h.do(http.MethodGet, "/admin", h.login(t, model.RoleUser, "a@x.com"))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/members", rec.Header().Get("Location"))

	rec = h.do(http.MethodGet, "/admin", h.login(t, model.RoleAdmin, "root@x.com"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())
}

func TestRequireAdminPromotionNeedsNewLogin(t *testing.T) {
	roles := roleTable{"bob@x.com": model.RoleUser}
	h := newHarness(t, roles)
	cookie := h.login(t, model.RoleUser, "bob@x.com")

	roles["bob@x.com"] = model.RoleAdmin
	rec := h.do(http.MethodGet, "/admin", cookie)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/members", rec.Header().Get("Location"))

	rec = h.do(http.MethodGet, "/admin", h.login(t, model.RoleAdmin, "bob@x.com"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAdminDemotionAppliesImmediately(t *testing.T) {
	roles := roleTable{"bob@x.com": model.RoleAdmin}
	h := newHarness(t, roles)
	cookie := h.login(t, model.RoleAdmin, "bob@x.com")
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/admin", cookie).Code)

	roles["bob@x.com"] = model.RoleUser
	rec := h.do(http.MethodGet, "/admin", cookie)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/members", rec.Header().Get("Location"))

	delete(roles, "bob@x.com")
	rec = h.do(http.MethodGet, "/admin", cookie)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestRequireAdminLookupFailure(t *testing.T) {
	h := newHarness(t, brokenLookup{})
	rec := h.do(http.MethodGet, "/admin", h.login(t, model.RoleAdmin, "root@x.com"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIdentityWithoutGuard(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, err := Identity(c)
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, nil)
	limit, err := RateLimit(h.client, "login", "2-M")
	require.NoError(t, err)
	h.engine.POST("/login", limit, func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/login", nil).Code)
	}
	rec := h.do(http.MethodPost, "/login", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, rateLimitBody, rec.Body.String())

	h.mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/login", nil).Code)
}

func TestRateLimitRejectsBadRate(t *testing.T) {
	h := newHarness(t, nil)
	_, err := RateLimit(h.client, "login", "twenty")
	assert.Error(t, err)
}

func TestDomainValidator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(DomainValidatorMiddleware("members.example.com"))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for host, want := range map[string]int{
		"members.example.com":      http.StatusOK,
		"members.example.com:3000": http.StatusOK,
		"MEMBERS.example.com":      http.StatusOK,
		"evil.example.com":         http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = host
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, host)
	}
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := rec.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, generated)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, generated, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.NotEqual(t, "<script>", rec.Header().Get(RequestIDHeader))
}
