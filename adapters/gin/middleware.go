package authgin

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/openidkit/adapters/ginutil"
	authhttp "github.com/open-rails/openidkit/adapters/http"
	oidckit "github.com/open-rails/openidkit/oidc"
)

// AuthRequired authenticates with the named provider and stores the principal
// in both the gin and the request context. OAuth providers redirect to their
// login route; bearer providers answer 401.
func (s *Service) AuthRequired(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := s.Authenticator(name)
		if !ok {
			ginutil.ServerErrWithLog(c, s.Logger(), "unknown_provider", nil, "openid: unknown provider "+name)
			return
		}
		v, err := a.Authenticate(c.Request)
		if err != nil {
			s.Logger().WithError(err).WithField("provider", name).Debug("openid: authentication failed")
			if ch, ok := a.(authhttp.Challenger); ok {
				ch.Challenge(c.Writer, c.Request, err)
				c.Abort()
				return
			}
			c.Header("WWW-Authenticate", authhttp.BearerChallenge(err))
			ginutil.Unauthorized(c, authhttp.ErrorCode(err))
			return
		}
		setPrincipal(c, v)
		c.Next()
	}
}

// AuthOptional attaches the principal when a valid credential is present.
// Requests without a credential continue unauthenticated.
func (s *Service) AuthOptional(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := s.Authenticator(name)
		if !ok {
			ginutil.ServerErrWithLog(c, s.Logger(), "unknown_provider", nil, "openid: unknown provider "+name)
			return
		}
		v, err := a.Authenticate(c.Request)
		switch {
		case errors.Is(err, oidckit.ErrNoCredential):
		case err != nil:
			c.Header("WWW-Authenticate", authhttp.BearerChallenge(err))
			ginutil.Unauthorized(c, authhttp.ErrorCode(err))
			return
		default:
			setPrincipal(c, v)
		}
		c.Next()
	}
}
