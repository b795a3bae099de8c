package authhttp

import (
	"errors"
	"net/http"

	oidckit "github.com/open-rails/openidkit/oidc"
)

// Challenger customizes the response for a failed Required check.
type Challenger interface {
	Challenge(w http.ResponseWriter, r *http.Request, err error)
}

// Authenticate runs the provider named name against r.
func (s *Service) Authenticate(r *http.Request, name string) (any, error) {
	a, ok := s.Authenticator(name)
	if !ok {
		return nil, errors.Join(oidckit.ErrConfiguration, errors.New("unknown provider "+name))
	}
	return a.Authenticate(r)
}

// Required rejects requests the named provider cannot authenticate and stores
// the principal in the request context. OAuth providers redirect to login.
func (s *Service) Required(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := s.Authenticator(name)
			if !ok {
				serverErr(w, "unknown_provider")
				return
			}
			v, err := a.Authenticate(r)
			if err != nil {
				s.log.WithError(err).WithField("provider", name).Debug("openid: authentication failed")
				if c, ok := a.(Challenger); ok {
					c.Challenge(w, r, err)
					return
				}
				authFailed(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), v)))
		})
	}
}

// Optional attaches the principal when a credential is present and valid.
// Requests without any credential pass through; invalid ones are rejected.
func (s *Service) Optional(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := s.Authenticator(name)
			if !ok {
				serverErr(w, "unknown_provider")
				return
			}
			v, err := a.Authenticate(r)
			switch {
			case errors.Is(err, oidckit.ErrNoCredential):
				next.ServeHTTP(w, r)
			case err != nil:
				authFailed(w, err)
			default:
				next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), v)))
			}
		})
	}
}
