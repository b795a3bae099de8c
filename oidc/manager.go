package oidckit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/zitadel/oidc/v2/pkg/client/rp"
	"golang.org/x/oauth2"
)

// ClientCredentials identifies this application to one issuer.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewRelyingParty builds a zitadel relying party from an already discovered
// document. No network call is made; redirectURI is the absolute callback
// URL for the current request.
func NewRelyingParty(doc Discovery, creds ClientCredentials, redirectURI string, client *http.Client) (rp.RelyingParty, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, errors.New("client id and secret are required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       append([]string(nil), creds.Scopes...),
		Endpoint: oauth2.Endpoint{
			AuthURL:   doc.AuthorizationEndpoint,
			TokenURL:  doc.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return rp.NewRelyingPartyOAuth(cfg, rp.WithHTTPClient(client))
}

// AuthURL returns the authorization endpoint URL for state.
func AuthURL(rpClient rp.RelyingParty, state string) string {
	return rp.AuthURL(state, rpClient)
}

// GenerateState returns a URL-safe random value for the OAuth2 state parameter.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// StateCache stores pending authorization requests keyed by state.
type StateCache interface {
	Put(ctx context.Context, state string, data StateData) error
	Get(ctx context.Context, state string) (StateData, bool, error)
	Del(ctx context.Context, state string) error
}

// StateData is what we persist for a pending login.
type StateData struct {
	Provider    string `json:"provider"`
	RedirectURI string `json:"redirect_uri"`
}
