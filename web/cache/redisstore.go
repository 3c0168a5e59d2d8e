package cache

import (
	"bytes"
	"context"
	"encoding/base32"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	gorillasessions "github.com/gorilla/sessions"
	"github.com/gorilla/securecookie"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultMaxAge is the session lifetime in seconds.
	DefaultMaxAge = 60 * 60

	sessionKeyPrefix = "session:"

	// RotateKey marks a session whose token must be replaced on the next save.
	RotateKey = "__rotate"
)

var ErrSessionNotFound = errors.New("session not found")

type storeErrorKey struct{}

// RedisStore is a server-side session store. The cookie only carries a signed opaque
// token; values live in redis under "session:<token>" with a TTL equal to MaxAge.
type RedisStore struct {
	client  redis.UniversalClient
	Codecs  []securecookie.Codec
	options *sessions.Options
}

// NewRedisStore creates a new Redis store. keyPairs sign (and optionally encrypt) the cookie.
func NewRedisStore(client redis.UniversalClient, keyPairs ...[]byte) *RedisStore {
	return &RedisStore{
		client: client,
		Codecs: securecookie.CodecsFromPairs(keyPairs...),
		options: &sessions.Options{
			Path:     "/",
			MaxAge:   DefaultMaxAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
	}
}

// Options sets the default options for new sessions.
func (s *RedisStore) Options(opts sessions.Options) {
	s.options = &opts
}

// Get returns the session cached for this request, loading it on first use.
func (s *RedisStore) Get(r *http.Request, name string) (*gorillasessions.Session, error) {
	return gorillasessions.GetRegistry(r).Get(s, name)
}

// New returns the session referenced by the request cookie, or a fresh anonymous one when
// the cookie is missing, tampered with, or points at an expired token. A redis failure
// still yields an anonymous session; the error is returned and kept on the request, see
// StoreError.
func (s *RedisStore) New(r *http.Request, name string) (*gorillasessions.Session, error) {
	session := gorillasessions.NewSession(s, name)
	opts := s.options.ToGorillaOptions()
	session.Options = opts
	session.IsNew = true

	c, errCookie := r.Cookie(name)
	if errCookie != nil {
		return session, nil
	}
	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.Codecs...); err != nil {
		return session, nil
	}

	values, err := s.Load(r.Context(), id)
	if errors.Is(err, ErrSessionNotFound) {
		return session, nil
	}
	if err != nil {
		*r = *r.WithContext(context.WithValue(r.Context(), storeErrorKey{}, err))
		return session, err
	}

	session.ID = id
	session.Values = values
	session.IsNew = false
	return session, nil
}

// Save persists the session and writes its cookie. A negative MaxAge destroys it.
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, session *gorillasessions.Session) error {
	ctx := r.Context()

	if session.Options.MaxAge < 0 {
		if err := s.Destroy(ctx, session.ID); err != nil {
			return err
		}
		http.SetCookie(w, s.newCookie(session, ""))
		return nil
	}

	if rotate, _ := session.Values[RotateKey].(bool); rotate {
		delete(session.Values, RotateKey)
		if err := s.Destroy(ctx, session.ID); err != nil {
			return err
		}
		session.ID = ""
	}

	if session.ID == "" {
		id, err := s.Create(ctx, session.Values, s.maxAge(session))
		if err != nil {
			return err
		}
		session.ID = id
	} else if err := s.save(ctx, session.ID, session.Values, s.maxAge(session)); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.newCookie(session, encoded))
	return nil
}

// Create stores values under a fresh random token and returns the token.
func (s *RedisStore) Create(ctx context.Context, values map[any]any, maxAge int) (string, error) {
	id := newToken()
	if err := s.save(ctx, id, values, maxAge); err != nil {
		return "", err
	}
	return id, nil
}

// Load returns the values stored for token, or ErrSessionNotFound when the token is
// unknown or expired.
func (s *RedisStore) Load(ctx context.Context, token string) (map[any]any, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	data, err := s.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	values := make(map[any]any)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&values); err != nil {
		return nil, fmt.Errorf("failed to decode session data: %w", err)
	}
	return values, nil
}

// Destroy removes token. Destroying an unknown token is not an error.
func (s *RedisStore) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.client.Del(ctx, sessionKeyPrefix+token).Err()
}

// Count returns the number of live sessions.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, err
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

// StoreError returns the error hit while loading the request's session, if any.
func StoreError(r *http.Request) error {
	err, _ := r.Context().Value(storeErrorKey{}).(error)
	return err
}

func (s *RedisStore) maxAge(session *gorillasessions.Session) int {
	if session.Options.MaxAge > 0 {
		return session.Options.MaxAge
	}
	return s.options.MaxAge
}

func (s *RedisStore) save(ctx context.Context, id string, values map[any]any, maxAge int) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(values); err != nil {
		return fmt.Errorf("failed to encode session values: %w", err)
	}
	return s.client.Set(ctx, sessionKeyPrefix+id, buf.Bytes(), time.Duration(maxAge)*time.Second).Err()
}

func (s *RedisStore) newCookie(session *gorillasessions.Session, value string) *http.Cookie {
	cookie := &http.Cookie{
		Name:     session.Name(),
		Value:    value,
		Path:     session.Options.Path,
		Domain:   session.Options.Domain,
		MaxAge:   session.Options.MaxAge,
		Secure:   session.Options.Secure,
		HttpOnly: session.Options.HttpOnly,
		SameSite: session.Options.SameSite,
	}
	if session.Options.MaxAge > 0 {
		cookie.Expires = time.Now().Add(time.Duration(session.Options.MaxAge) * time.Second)
	}
	return cookie
}

func newToken() string {
	return strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
}
