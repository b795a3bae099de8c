package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	oidckit "github.com/open-rails/openidkit/oidc"
)

const (
	DefaultOAuthName   = "openid-connect-oauth"
	DefaultJWKName     = "openid-connect-jwk"
	DefaultSessionName = "OPENID_SESSION"
)

// DefaultScopes are requested when an OAuth provider configures none.
var DefaultScopes = []string{"openid", "profile", "email"}

// Config is the registry input. Providers usually comes from LoadProviders;
// explicit OAuth and JWK options passed to NewRegistry override entries for
// the same issuer.
type Config struct {
	// Providers by name, as read from the "openid" configuration section.
	Providers map[string]ProviderConfig
	// HTTPClient is shared by discovery, JWKS and token requests (default: a
	// dedicated client per registry).
	HTTPClient *http.Client
	// Development relaxes cookie defaults (Secure=false).
	Development bool
	Logger      logrus.FieldLogger
	// Discover replaces oidckit.Discover, mostly for tests.
	Discover DiscoverFunc
}

// ProviderConfig is one named entry of the configuration file. Without both
// client credentials only a JWT provider is registered.
type ProviderConfig struct {
	Issuer       string                `mapstructure:"issuer"`
	ClientID     string                `mapstructure:"clientId"`
	ClientSecret string                `mapstructure:"clientSecret"`
	Scopes       []string              `mapstructure:"scopes"`
	SessionName  string                `mapstructure:"sessionName"`
	Keys         oidckit.KeyPolicy     `mapstructure:"keys"`
	Verify       oidckit.VerifyOptions `mapstructure:"verify"`
}

// HasCredentials reports whether both client id and secret are set.
func (p ProviderConfig) HasCredentials() bool {
	return strings.TrimSpace(p.ClientID) != "" && strings.TrimSpace(p.ClientSecret) != ""
}

// OAuthConfig configures the authorization-code provider of one issuer.
// Zero values are defaulted by ApplyDefaults.
type OAuthConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	Scopes       []string

	LoginURI              string
	RedirectURI           string
	RefreshURI            string
	LogoutURI             string
	RedirectOnSuccessURI  string
	PostLogoutRedirectURI string

	// SessionName names the session cookie holding the principal. It must be
	// unique among OAuth providers. Left blank, a sole provider uses
	// DefaultSessionName and several providers get OPENID_SESSION_<NAME>.
	SessionName string
	Cookie      CookieOptions
}

// CookieOptions controls the session cookie. HttpOnly is always set.
type CookieOptions struct {
	Domain   string
	Path     string
	MaxAge   int
	Secure   *bool
	SameSite http.SameSite
}

// ApplyDefaults fills unset names, routes and cookie attributes.
func (c *OAuthConfig) ApplyDefaults(development bool) {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = DefaultOAuthName
	}
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), DefaultScopes...)
	}
	base := "/oauth/" + c.Name
	if c.LoginURI == "" {
		c.LoginURI = base + "/login"
	}
	if c.RedirectURI == "" {
		c.RedirectURI = base + "/redirect"
	}
	if c.RefreshURI == "" {
		c.RefreshURI = base + "/refresh"
	}
	if c.LogoutURI == "" {
		c.LogoutURI = base + "/logout"
	}
	if c.RedirectOnSuccessURI == "" {
		c.RedirectOnSuccessURI = c.LoginURI
	}
	if c.PostLogoutRedirectURI == "" {
		c.PostLogoutRedirectURI = c.LoginURI
	}
	if c.SessionName == "" {
		c.SessionName = DefaultSessionName
	}
	if c.Cookie.Path == "" {
		c.Cookie.Path = "/"
	}
	if c.Cookie.Secure == nil {
		secure := !development
		c.Cookie.Secure = &secure
	}
	if c.Cookie.SameSite == 0 {
		c.Cookie.SameSite = http.SameSiteLaxMode
	}
}

func (c OAuthConfig) validate() error {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return fmt.Errorf("%w: oauth provider %q requires clientId and clientSecret", ErrConfiguration, c.Name)
	}
	return nil
}

// Credentials returns the client credentials for the relying party.
func (c OAuthConfig) Credentials() oidckit.ClientCredentials {
	return oidckit.ClientCredentials{ClientID: c.ClientID, ClientSecret: c.ClientSecret, Scopes: c.Scopes}
}

// ValidateFunc turns verified claims into the principal attached to a request.
type ValidateFunc func(ctx context.Context, claims jwt.MapClaims) (any, error)

// JWKConfig configures bearer-token verification for one issuer.
type JWKConfig struct {
	Name     string
	Keys     oidckit.KeyPolicy
	Verify   oidckit.VerifyOptions
	Validate ValidateFunc
}

// ApplyDefaults fills the name and the default claims mapping.
func (c *JWKConfig) ApplyDefaults() {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = DefaultJWKName
	}
	if c.Validate == nil {
		c.Validate = ExtractUserInfo
	}
	c.Keys.ApplyDefaults()
}

// ExtractUserInfo is the default ValidateFunc. It returns an oidckit.UserInfo.
func ExtractUserInfo(_ context.Context, claims jwt.MapClaims) (any, error) {
	return oidckit.ExtractUserInfo(claims)
}
