package authgin

import (
	"github.com/gin-gonic/gin"

	authhttp "github.com/open-rails/openidkit/adapters/http"
	oidckit "github.com/open-rails/openidkit/oidc"
)

const principalKey = "openid.principal"

func setPrincipal(c *gin.Context, v any) {
	c.Set(principalKey, v)
	c.Request = c.Request.WithContext(authhttp.ContextWithPrincipal(c.Request.Context(), v))
}

// PrincipalFromGin returns the value stored by AuthRequired or AuthOptional.
func PrincipalFromGin(c *gin.Context) (any, bool) {
	return c.Get(principalKey)
}

// UserInfoFromGin returns the principal as UserInfo when the provider uses
// the default claims mapping.
func UserInfoFromGin(c *gin.Context) (oidckit.UserInfo, bool) {
	return authhttp.UserInfoFromContext(c.Request.Context())
}
