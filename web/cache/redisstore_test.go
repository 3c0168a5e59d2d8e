package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cookieName = "memberpanel"

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, []byte("0123456789abcdef0123456789abcdef")), mr
}

func TestCreateLoadDestroy(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, map[any]any{"name": "Alice"}, DefaultMaxAge)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, mr.Exists(sessionKeyPrefix+token))
	assert.Equal(t, time.Hour, mr.TTL(sessionKeyPrefix+token))

	values, err := store.Load(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "Alice", values["name"])

	require.NoError(t, store.Destroy(ctx, token))
	_, err = store.Load(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.NoError(t, store.Destroy(ctx, token), "destroy must be idempotent")
	assert.NoError(t, store.Destroy(ctx, ""))
}

func TestTokensAreUnique(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, map[any]any{}, DefaultMaxAge)
	require.NoError(t, err)
	second, err := store.Create(ctx, map[any]any{}, DefaultMaxAge)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLoadAfterExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, map[any]any{"name": "Alice"}, DefaultMaxAge)
	require.NoError(t, err)

	mr.FastForward(59 * time.Minute)
	_, err = store.Load(ctx, token)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = store.Load(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLoadUnknownToken(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Load(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Load(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func saveThroughCookie(t *testing.T, store *RedisStore, req *http.Request, values map[any]any) *http.Cookie {
	t.Helper()
	session, err := store.Get(req, cookieName)
	require.NoError(t, err)
	for k, v := range values {
		session.Values[k] = v
	}
	rec := httptest.NewRecorder()
	require.NoError(t, session.Save(req, rec))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestSessionRoundTripThroughCookie(t *testing.T) {
	store, _ := newTestStore(t)

	cookie := saveThroughCookie(t, store, httptest.NewRequest(http.MethodGet, "/", nil), map[any]any{"name": "Alice"})
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, DefaultMaxAge, cookie.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/members", nil)
	req.AddCookie(cookie)
	session, err := store.Get(req, cookieName)
	require.NoError(t, err)
	assert.False(t, session.IsNew)
	assert.Equal(t, "Alice", session.Values["name"])
}

func TestTamperedCookieIsAnonymous(t *testing.T) {
	store, _ := newTestStore(t)
	cookie := saveThroughCookie(t, store, httptest.NewRequest(http.MethodGet, "/", nil), map[any]any{"name": "Alice"})

	req := httptest.NewRequest(http.MethodGet, "/members", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie.Value + "x"})
	session, err := store.Get(req, cookieName)
	require.NoError(t, err)
	assert.True(t, session.IsNew)
	assert.Empty(t, session.Values)
}

func TestRotateIssuesNewToken(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := saveThroughCookie(t, store, httptest.NewRequest(http.MethodGet, "/", nil), map[any]any{"name": "Alice"})
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.AddCookie(first)
	oldSession, err := store.Get(req, cookieName)
	require.NoError(t, err)
	oldID := oldSession.ID

	second := saveThroughCookie(t, store, req, map[any]any{RotateKey: true, "name": "Alice"})
	assert.NotEqual(t, first.Value, second.Value)

	_, err = store.Load(ctx, oldID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNegativeMaxAgeDestroys(t *testing.T) {
	store, _ := newTestStore(t)
	cookie := saveThroughCookie(t, store, httptest.NewRequest(http.MethodGet, "/", nil), map[any]any{"name": "Alice"})

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(cookie)
	session, err := store.Get(req, cookieName)
	require.NoError(t, err)
	id := session.ID

	session.Options.MaxAge = -1
	rec := httptest.NewRecorder()
	require.NoError(t, session.Save(req, rec))

	_, err = store.Load(context.Background(), id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Empty(t, cleared[0].Value)
}

func TestStoreErrorIsRecorded(t *testing.T) {
	store, mr := newTestStore(t)
	cookie := saveThroughCookie(t, store, httptest.NewRequest(http.MethodGet, "/", nil), map[any]any{"name": "Alice"})

	mr.Close()

	req := httptest.NewRequest(http.MethodGet, "/members", nil)
	req.AddCookie(cookie)
	session, err := store.Get(req, cookieName)
	assert.Error(t, err)
	require.NotNil(t, session)
	assert.True(t, session.IsNew)
	assert.Error(t, StoreError(req))
}
