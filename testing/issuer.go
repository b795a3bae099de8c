// Package testing provides an in-process OpenID Connect provider for tests.
//
// TestIssuer serves discovery, a JWKS, an authorization endpoint that
// immediately redirects back with a code, a token endpoint for the
// authorization_code and refresh_token grants, and an end-session endpoint.
package testing

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	DefaultClientID     = "test-client"
	DefaultClientSecret = "test-secret"
	DefaultSubject      = "user-123"
	DefaultEmail        = "test@example.com"
)

// TestIssuer is safe for concurrent use.
type TestIssuer struct {
	server *httptest.Server

	clientID     string
	clientSecret string
	endSession   bool
	delay        time.Duration
	status       int

	mu          sync.Mutex
	key         *rsa.PrivateKey
	kid         string
	keySeq      int
	codes       map[string]string
	refresh     map[string]string
	omitIDToken bool
	omitRefresh bool
	rotate      bool
	extraClaims jwt.MapClaims

	discoveryHits atomic.Int64
	jwksHits      atomic.Int64
	tokenHits     atomic.Int64
}

// Option configures a TestIssuer.
type Option func(*TestIssuer)

// WithClient sets the accepted client credentials.
func WithClient(id, secret string) Option {
	return func(i *TestIssuer) { i.clientID, i.clientSecret = id, secret }
}

// WithoutEndSession omits end_session_endpoint from discovery.
func WithoutEndSession() Option {
	return func(i *TestIssuer) { i.endSession = false }
}

// WithDiscoveryDelay delays every discovery response.
func WithDiscoveryDelay(d time.Duration) Option {
	return func(i *TestIssuer) { i.delay = d }
}

// WithDiscoveryStatus makes discovery answer with status and an empty body.
func WithDiscoveryStatus(status int) Option {
	return func(i *TestIssuer) { i.status = status }
}

// NewTestIssuer starts the provider. Call Close when done.
func NewTestIssuer(opts ...Option) *TestIssuer {
	i := &TestIssuer{
		clientID:     DefaultClientID,
		clientSecret: DefaultClientSecret,
		endSession:   true,
		codes:        make(map[string]string),
		refresh:      make(map[string]string),
	}
	for _, o := range opts {
		o(i)
	}
	i.RotateKey()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", i.handleDiscovery)
	mux.HandleFunc("GET /jwks", i.handleJWKS)
	mux.HandleFunc("GET /authorize", i.handleAuthorize)
	mux.HandleFunc("POST /token", i.handleToken)
	mux.HandleFunc("GET /logout", i.handleLogout)
	i.server = httptest.NewServer(mux)
	return i
}

func (i *TestIssuer) URL() string          { return i.server.URL }
func (i *TestIssuer) Client() *http.Client { return i.server.Client() }
func (i *TestIssuer) ClientID() string     { return i.clientID }
func (i *TestIssuer) ClientSecret() string { return i.clientSecret }
func (i *TestIssuer) Close()               { i.server.Close() }

// DiscoveryHits counts discovery requests served.
func (i *TestIssuer) DiscoveryHits() int64 { return i.discoveryHits.Load() }

// JWKSHits counts JWKS requests served.
func (i *TestIssuer) JWKSHits() int64 { return i.jwksHits.Load() }

// TokenHits counts token endpoint requests served.
func (i *TestIssuer) TokenHits() int64 { return i.tokenHits.Load() }

// KeyID returns the kid of the current signing key.
func (i *TestIssuer) KeyID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.kid
}

// RotateKey replaces the signing key. The JWKS only publishes the new key.
func (i *TestIssuer) RotateKey() {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keySeq++
	i.key = key
	i.kid = fmt.Sprintf("test-key-%d", i.keySeq)
}

// SetOmitIDToken makes the token endpoint leave out id_token.
func (i *TestIssuer) SetOmitIDToken(v bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.omitIDToken = v
}

// SetOmitRefreshToken makes the authorization_code grant leave out refresh_token.
func (i *TestIssuer) SetOmitRefreshToken(v bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.omitRefresh = v
}

// SetRotateRefreshTokens makes the refresh_token grant return a new refresh
// token. By default the grant returns none.
func (i *TestIssuer) SetRotateRefreshTokens(v bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.rotate = v
}

// SetExtraClaims adds claims to every id_token issued by the token endpoint.
func (i *TestIssuer) SetExtraClaims(claims jwt.MapClaims) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.extraClaims = claims
}

// IssueCode registers an authorization code for sub.
func (i *TestIssuer) IssueCode(sub string) string {
	code := randomToken()
	i.mu.Lock()
	i.codes[code] = sub
	i.mu.Unlock()
	return code
}

// IssueRefreshToken registers a refresh token for sub.
func (i *TestIssuer) IssueRefreshToken(sub string) string {
	rt := randomToken()
	i.mu.Lock()
	i.refresh[rt] = sub
	i.mu.Unlock()
	return rt
}

// CreateToken signs an id_token for sub with the current key.
func (i *TestIssuer) CreateToken(sub, email string) string {
	return i.CreateTokenWithClaims(jwt.MapClaims{"sub": sub, "email": email})
}

// CreateExpiredToken signs a token that expired an hour ago.
func (i *TestIssuer) CreateExpiredToken(sub string) string {
	now := time.Now()
	return i.CreateTokenWithClaims(jwt.MapClaims{
		"sub": sub,
		"iat": now.Add(-2 * time.Hour).Unix(),
		"exp": now.Add(-time.Hour).Unix(),
	})
}

// CreateTokenWithClaims signs claims, filling iss, aud, iat and exp when unset.
func (i *TestIssuer) CreateTokenWithClaims(claims jwt.MapClaims) string {
	now := time.Now()
	out := jwt.MapClaims{
		"iss": i.URL(),
		"aud": i.clientID,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		out[k] = v
	}

	i.mu.Lock()
	key, kid := i.key, i.kid
	i.mu.Unlock()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, out)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	if err != nil {
		panic(err)
	}
	return signed
}

func (i *TestIssuer) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	i.discoveryHits.Add(1)
	if i.delay > 0 {
		select {
		case <-time.After(i.delay):
		case <-r.Context().Done():
			return
		}
	}
	if i.status != 0 {
		w.WriteHeader(i.status)
		return
	}
	base := i.URL()
	doc := map[string]any{
		"issuer":                                base,
		"authorization_endpoint":                base + "/authorize",
		"token_endpoint":                        base + "/token",
		"jwks_uri":                              base + "/jwks",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"scopes_supported":                      []string{"openid", "profile", "email", "offline_access"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_post", "client_secret_basic"},
	}
	if i.endSession {
		doc["end_session_endpoint"] = base + "/logout"
	}
	writeJSON(w, http.StatusOK, doc)
}

func (i *TestIssuer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	i.jwksHits.Add(1)
	i.mu.Lock()
	pub, kid := &i.key.PublicKey, i.kid
	i.mu.Unlock()

	key, err := jwk.FromRaw(pub)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = key.Set(jwk.KeyIDKey, kid)
	_ = key.Set(jwk.AlgorithmKey, jwa.RS256)
	_ = key.Set(jwk.KeyUsageKey, jwk.ForSignature)

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (i *TestIssuer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("response_type") != "code" || q.Get("client_id") != i.clientID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirect.Scheme == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_redirect_uri"})
		return
	}
	back := redirect.Query()
	back.Set("code", i.IssueCode(DefaultSubject))
	back.Set("state", q.Get("state"))
	redirect.RawQuery = back.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (i *TestIssuer) handleToken(w http.ResponseWriter, r *http.Request) {
	i.tokenHits.Add(1)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	id, secret := r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	if u, p, ok := r.BasicAuth(); ok {
		id, secret = u, p
	}
	if id != i.clientID || secret != i.clientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	var (
		sub        string
		newRefresh bool
	)
	i.mu.Lock()
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		code := r.PostForm.Get("code")
		sub = i.codes[code]
		delete(i.codes, code)
		newRefresh = !i.omitRefresh
	case "refresh_token":
		sub = i.refresh[r.PostForm.Get("refresh_token")]
		newRefresh = i.rotate
	}
	omitID := i.omitIDToken
	extra := i.extraClaims
	i.mu.Unlock()

	if sub == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	resp := map[string]any{
		"access_token": randomToken(),
		"token_type":   "Bearer",
		"expires_in":   3600,
		"scope":        "openid profile email",
	}
	if !omitID {
		claims := jwt.MapClaims{"sub": sub, "email": DefaultEmail, "name": "Test User"}
		for k, v := range extra {
			claims[k] = v
		}
		resp["id_token"] = i.CreateTokenWithClaims(claims)
	}
	if newRefresh {
		resp["refresh_token"] = i.IssueRefreshToken(sub)
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (i *TestIssuer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if target := r.URL.Query().Get("post_logout_redirect_uri"); target != "" {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func randomToken() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
