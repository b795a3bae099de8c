package authhttp

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	core "github.com/open-rails/openidkit/core"
	oidckit "github.com/open-rails/openidkit/oidc"
	memorystore "github.com/open-rails/openidkit/storage/memory"
	redisstore "github.com/open-rails/openidkit/storage/redis"
)

// Service mounts the OAuth routes and exposes the bearer/session
// authenticators of a core.Registry on net/http.
type Service struct {
	reg       *core.Registry
	log       logrus.FieldLogger
	store     core.EphemeralStore
	storeMode core.EphemeralMode
	sessions  SessionStore
	states    oidckit.StateCache
	callbacks map[string]Callbacks

	// set by WithSessionStore and WithStateCache; WithEphemeralStore keeps them.
	customSessions bool
	customStates   bool

	oauth map[string]*oauthProvider
	jwt   map[string]*jwtProvider
}

// NewService builds providers for every registration in reg. When reg has at
// least one OAuth provider, cookie sessions over an in-memory store are
// installed; swap the backing store with WithRedis or WithEphemeralStore.
func NewService(reg *core.Registry) (*Service, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: registry is nil", core.ErrConfiguration)
	}
	s := &Service{
		reg:       reg,
		log:       reg.Logger(),
		callbacks: map[string]Callbacks{},
		oauth:     map[string]*oauthProvider{},
		jwt:       map[string]*jwtProvider{},
	}
	s.WithEphemeralStore(memorystore.NewKV(), core.EphemeralMemory)

	for _, p := range reg.OAuthProviders() {
		s.oauth[p.Name] = &oauthProvider{svc: s, issuer: p.Issuer, cfg: p.OAuthConfig}
	}
	for _, p := range reg.JWKProviders() {
		jp := &jwtProvider{svc: s, issuer: p.Issuer, cfg: p.JWKConfig}
		if p.SessionFallback {
			if oc, ok := reg.OAuthConfig(p.Issuer); ok {
				jp.sessionName = oc.SessionName
			}
		}
		s.jwt[p.Name] = jp
	}
	return s, nil
}

// WithEphemeralStore backs sessions and OAuth state with store. A session
// store or state cache installed with WithSessionStore or WithStateCache is
// kept, whichever order the calls come in.
func (s *Service) WithEphemeralStore(store core.EphemeralStore, mode core.EphemeralMode) *Service {
	if mode == "" {
		mode = core.EphemeralMemory
	}
	s.store = store
	s.storeMode = mode
	if !s.customStates {
		s.states = newStateCache(store)
	}
	if !s.customSessions && len(s.reg.OAuthProviders()) > 0 {
		cs := NewCookieSessions(store)
		for _, p := range s.reg.OAuthProviders() {
			cs.WithCookie(p.SessionName, p.Cookie)
		}
		s.sessions = cs
	}
	return s
}

// WithRedis stores sessions and OAuth state in Redis.
func (s *Service) WithRedis(rd redis.UniversalClient) *Service {
	if rd == nil {
		return s
	}
	return s.WithEphemeralStore(redisstore.NewKV(rd), core.EphemeralRedis)
}

// WithSessionStore replaces the session store.
func (s *Service) WithSessionStore(store SessionStore) *Service {
	s.sessions = store
	s.customSessions = store != nil
	return s
}

// WithStateCache replaces the pending-login store.
func (s *Service) WithStateCache(cache oidckit.StateCache) *Service {
	s.states = cache
	s.customStates = cache != nil
	return s
}

func (s *Service) WithLogger(l logrus.FieldLogger) *Service {
	if l != nil {
		s.log = l
	}
	return s
}

// WithCallbacks overrides the callbacks of the OAuth provider named provider.
func (s *Service) WithCallbacks(provider string, cb Callbacks) *Service {
	s.callbacks[provider] = cb
	return s
}

func (s *Service) EphemeralMode() core.EphemeralMode { return s.storeMode }

// Registry returns the registry the service was built from.
func (s *Service) Registry() *core.Registry { return s.reg }

// Logger returns the service logger.
func (s *Service) Logger() logrus.FieldLogger { return s.log }

// Sessions returns the active session store (nil without OAuth providers).
func (s *Service) Sessions() SessionStore { return s.sessions }

func (s *Service) callbacksFor(p *oauthProvider) Callbacks {
	def := DefaultCallbacks{Config: p.cfg, Sessions: s.sessions, Log: s.log}
	return withDefaults(s.callbacks[p.cfg.Name], def)
}

// Route is one mounted endpoint.
type Route struct {
	Provider string
	Method   string
	Path     string
	Handler  http.Handler
}

// Routes lists login, redirect, refresh and logout for every OAuth provider.
func (s *Service) Routes() []Route {
	names := make([]string, 0, len(s.oauth))
	for name := range s.oauth {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Route
	for _, name := range names {
		p := s.oauth[name]
		out = append(out,
			Route{name, http.MethodGet, p.cfg.LoginURI, http.HandlerFunc(p.handleLogin)},
			Route{name, http.MethodGet, p.cfg.RedirectURI, http.HandlerFunc(p.handleCallback)},
			Route{name, http.MethodGet, p.cfg.RefreshURI, http.HandlerFunc(p.handleRefresh)},
			Route{name, http.MethodGet, p.cfg.LogoutURI, http.HandlerFunc(p.handleLogout)},
		)
	}
	return out
}

// Authenticator returns the provider named name. OAuth provider names
// resolve to an authenticator over their session.
func (s *Service) Authenticator(name string) (Authenticator, bool) {
	if p, ok := s.jwt[name]; ok {
		return p, true
	}
	if p, ok := s.oauth[name]; ok {
		return p, true
	}
	return nil, false
}

// Close releases the registry.
func (s *Service) Close() { s.reg.Close() }
