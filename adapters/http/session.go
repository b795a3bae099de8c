package authhttp

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	core "github.com/open-rails/openidkit/core"
	oidckit "github.com/open-rails/openidkit/oidc"
)

// DefaultSessionTTL bounds how long a stored principal survives without a
// write when the cookie carries no MaxAge.
const DefaultSessionTTL = 24 * time.Hour

// SessionStore keeps one principal per session name for the current client.
// Each call is a single replace; implementations need no transactions.
type SessionStore interface {
	Get(r *http.Request, name string) (oidckit.Principal, bool, error)
	Set(w http.ResponseWriter, r *http.Request, name string, p oidckit.Principal) error
	Clear(w http.ResponseWriter, r *http.Request, name string) error
}

// CookieSessions stores principals in an ephemeral store under an opaque
// random id carried by a cookie named after the session.
type CookieSessions struct {
	store   core.EphemeralStore
	ttl     time.Duration
	cookies map[string]core.CookieOptions
}

// NewCookieSessions returns a session store backed by store.
func NewCookieSessions(store core.EphemeralStore) *CookieSessions {
	return &CookieSessions{store: store, ttl: DefaultSessionTTL, cookies: map[string]core.CookieOptions{}}
}

// WithCookie sets the cookie attributes used for session name.
func (s *CookieSessions) WithCookie(name string, opts core.CookieOptions) *CookieSessions {
	s.cookies[name] = opts
	return s
}

// WithTTL changes the server-side lifetime of stored principals.
func (s *CookieSessions) WithTTL(ttl time.Duration) *CookieSessions {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

func sessionKey(name, id string) string { return "session:" + name + ":" + id }

func sessionID(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}

func (s *CookieSessions) Get(r *http.Request, name string) (oidckit.Principal, bool, error) {
	id, ok := sessionID(r, name)
	if !ok {
		return oidckit.Principal{}, false, nil
	}
	var p oidckit.Principal
	found, err := core.GetJSON(r.Context(), s.store, sessionKey(name, id), &p)
	if err != nil || !found {
		return oidckit.Principal{}, false, err
	}
	return p, true, nil
}

// Set stores p under a fresh id and drops the previous entry, if any.
func (s *CookieSessions) Set(w http.ResponseWriter, r *http.Request, name string, p oidckit.Principal) error {
	opts := s.cookies[name]
	ttl := s.ttl
	if opts.MaxAge > 0 {
		ttl = time.Duration(opts.MaxAge) * time.Second
	}
	id := uuid.NewString()
	if err := core.PutJSON(r.Context(), s.store, sessionKey(name, id), p, ttl); err != nil {
		return err
	}
	if old, ok := sessionID(r, name); ok {
		_ = s.store.Del(r.Context(), sessionKey(name, old))
	}
	http.SetCookie(w, s.cookie(name, id, opts.MaxAge))
	return nil
}

func (s *CookieSessions) Clear(w http.ResponseWriter, r *http.Request, name string) error {
	id, ok := sessionID(r, name)
	if !ok {
		return nil
	}
	http.SetCookie(w, s.cookie(name, "", -1))
	return s.store.Del(r.Context(), sessionKey(name, id))
}

func (s *CookieSessions) cookie(name, value string, maxAge int) *http.Cookie {
	opts := s.cookies[name]
	path := opts.Path
	if path == "" {
		path = "/"
	}
	secure := true
	if opts.Secure != nil {
		secure = *opts.Secure
	}
	sameSite := opts.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   opts.Domain,
		MaxAge:   maxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: sameSite,
	}
}
