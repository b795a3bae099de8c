package authhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	oidctest "github.com/open-rails/openidkit/testing"
)

func serve(t *testing.T, h http.Handler, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		r.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func subjectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ui, ok := UserInfoFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(ui.Subject))
	})
}

func TestRequired_BearerToken(t *testing.T) {
	f := newFixture(t)
	h := f.svc.Required(testProvider + "-jwk")(subjectHandler())

	w := serve(t, h, "Bearer "+f.issuer.CreateToken("alice", "alice@example.com"))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alice", w.Body.String())
}

func TestRequired_MissingToken(t *testing.T) {
	f := newFixture(t)
	h := f.svc.Required(testProvider + "-jwk")(subjectHandler())

	w := serve(t, h, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "missing_token", errorBody(t, w))
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	// Non-bearer schemes count as absent.
	w = serve(t, h, "Basic dXNlcjpwYXNz")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "missing_token", errorBody(t, w))
}

func TestRequired_InvalidTokens(t *testing.T) {
	f := newFixture(t)
	h := f.svc.Required(testProvider + "-jwk")(subjectHandler())

	cases := map[string]string{
		"expired":      f.issuer.CreateExpiredToken("alice"),
		"wrong issuer": f.issuer.CreateTokenWithClaims(jwt.MapClaims{"sub": "alice", "iss": "https://other.example"}),
		"garbage":      "not-a-jwt",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			w := serve(t, h, "Bearer "+tok)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			require.Equal(t, "invalid_token", errorBody(t, w))
			require.Equal(t, `Bearer error="invalid_token"`, w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestRequired_MissingSubject(t *testing.T) {
	f := newFixture(t)
	h := f.svc.Required(testProvider + "-jwk")(subjectHandler())

	tok := f.issuer.CreateTokenWithClaims(jwt.MapClaims{"email": "a@example.com"})
	w := serve(t, h, "Bearer "+tok)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "invalid_subject", errorBody(t, w))
	require.Equal(t, `Bearer error="invalid_token"`, w.Header().Get("WWW-Authenticate"))
}

func TestRequired_KeyRotation(t *testing.T) {
	f := newFixture(t)
	h := f.svc.Required(testProvider + "-jwk")(subjectHandler())

	w := serve(t, h, "Bearer "+f.issuer.CreateToken("alice", ""))
	require.Equal(t, http.StatusOK, w.Code)

	f.issuer.RotateKey()
	w = serve(t, h, "Bearer "+f.issuer.CreateToken("bob", ""))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "bob", w.Body.String())
}

func TestRequired_HeaderPreferredOverSession(t *testing.T) {
	f := newFixture(t)
	c := sessionCookie(f.login(t))
	require.NotNil(t, c)
	h := f.svc.Required(testProvider + "-jwk")(subjectHandler())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(c)
	r.Header.Set("Authorization", "Bearer "+f.issuer.CreateToken("header-user", ""))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "header-user", w.Body.String())

	// An invalid header does not fall back to the session.
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(c)
	r.Header.Set("Authorization", "Bearer "+f.issuer.CreateExpiredToken("header-user"))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(c)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, oidctest.DefaultSubject, w.Body.String())
}

func TestRequired_OAuthProviderChallenges(t *testing.T) {
	f := newFixture(t)
	h := f.svc.Required(testProvider)(subjectHandler())

	w := serve(t, h, "")
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/oauth/"+testProvider+"/login", w.Header().Get("Location"))
}

func TestRequired_UnknownProvider(t *testing.T) {
	f := newFixture(t)
	w := serve(t, f.svc.Required("nope")(subjectHandler()), "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestOptional(t *testing.T) {
	f := newFixture(t)
	h := f.svc.Optional(testProvider + "-jwk")(subjectHandler())

	w := serve(t, h, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = serve(t, h, "Bearer "+f.issuer.CreateToken("alice", ""))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alice", w.Body.String())

	w = serve(t, h, "Bearer not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequired_CustomValidate(t *testing.T) {
	f := newFixture(t)
	jp := f.svc.jwt[testProvider+"-jwk"]
	jp.cfg.Validate = func(_ context.Context, claims jwt.MapClaims) (any, error) {
		return claims["sub"].(string) + "!", nil
	}

	var got any
	h := f.svc.Required(testProvider + "-jwk")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
	}))
	w := serve(t, h, "Bearer "+f.issuer.CreateToken("alice", ""))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alice!", got)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", bearerToken("Bearer abc"))
	require.Equal(t, "abc", bearerToken("bearer  abc "))
	require.Equal(t, "", bearerToken("Basic abc"))
	require.Equal(t, "", bearerToken("Bearer"))
	require.Equal(t, "", bearerToken(""))
}

func TestCookieSessions_TTL(t *testing.T) {
	f := newFixture(t)
	cs, ok := f.svc.Sessions().(*CookieSessions)
	require.True(t, ok)
	require.Equal(t, DefaultSessionTTL, cs.ttl)
	cs.WithTTL(time.Minute)
	require.Equal(t, time.Minute, cs.ttl)
}
