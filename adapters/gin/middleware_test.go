package authgin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	core "github.com/open-rails/openidkit/core"
	oidctest "github.com/open-rails/openidkit/testing"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(t *testing.T) (*gin.Engine, *oidctest.TestIssuer) {
	t.Helper()
	iss := oidctest.NewTestIssuer()
	t.Cleanup(iss.Close)

	log, _ := logtest.NewNullLogger()
	reg, err := core.NewRegistry(context.Background(), core.Config{HTTPClient: iss.Client(), Development: true, Logger: log},
		core.OAuth(iss.URL(), core.OAuthConfig{Name: "idp", ClientID: iss.ClientID(), ClientSecret: iss.ClientSecret()}),
		core.JWK(iss.URL(), core.JWKConfig{Name: "idp-jwk"}),
	)
	require.NoError(t, err)
	svc, err := NewService(reg)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	r := gin.New()
	svc.Mount(r)
	r.GET("/me", svc.AuthRequired("idp-jwk"), func(c *gin.Context) {
		ui, ok := UserInfoFromGin(c)
		require.True(t, ok)
		_, ok = PrincipalFromGin(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"sub": ui.Subject})
	})
	r.GET("/maybe", svc.AuthOptional("idp-jwk"), func(c *gin.Context) {
		if _, ok := PrincipalFromGin(c); ok {
			c.String(http.StatusOK, "user")
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	r.GET("/web", svc.AuthRequired("idp"), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, iss
}

func do(r http.Handler, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMount_RegistersOAuthRoutes(t *testing.T) {
	r, iss := newRouter(t)

	var paths []string
	for _, ri := range r.Routes() {
		paths = append(paths, ri.Path)
	}
	require.Subset(t, paths, []string{"/oauth/idp/login", "/oauth/idp/redirect", "/oauth/idp/refresh", "/oauth/idp/logout"})

	w := do(r, "/oauth/idp/login", "")
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, iss.ClientID(), loc.Query().Get("client_id"))
}

func TestAuthRequired(t *testing.T) {
	r, iss := newRouter(t)

	w := do(r, "/me", "Bearer "+iss.CreateToken("alice", "alice@example.com"))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"sub":"alice"}`, w.Body.String())

	w = do(r, "/me", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"missing_token"}`, w.Body.String())
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = do(r, "/me", "Bearer "+iss.CreateExpiredToken("alice"))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"invalid_token"}`, w.Body.String())
	require.Equal(t, `Bearer error="invalid_token"`, w.Header().Get("WWW-Authenticate"))
}

func TestAuthRequired_OAuthRedirectsToLogin(t *testing.T) {
	r, _ := newRouter(t)

	w := do(r, "/web", "")
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/oauth/idp/login", w.Header().Get("Location"))
}

func TestAuthOptional(t *testing.T) {
	r, iss := newRouter(t)

	require.Equal(t, "anonymous", do(r, "/maybe", "").Body.String())
	require.Equal(t, "user", do(r, "/maybe", "Bearer "+iss.CreateToken("alice", "")).Body.String())
	require.Equal(t, http.StatusUnauthorized, do(r, "/maybe", "Bearer junk").Code)
}
