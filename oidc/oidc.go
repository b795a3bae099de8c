// Package oidckit holds the OpenID Connect building blocks used by the
// registry and the HTTP adapters: discovery, the authenticated principal,
// JWKS-backed token verification and the token endpoint grants.
package oidckit

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports a blank or unknown issuer or provider.
	ErrConfiguration = errors.New("openid configuration error")
	// ErrDiscovery reports a failed discovery document fetch or decode.
	ErrDiscovery = errors.New("openid discovery failed")
	// ErrDiscoveryTimeout is an ErrDiscovery caused by the request deadline.
	ErrDiscoveryTimeout = fmt.Errorf("%w: timed out", ErrDiscovery)
	// ErrNoCredential means neither a bearer header nor a session token was present.
	ErrNoCredential = errors.New("no credential")
	// ErrAuthentication reports a failed OAuth2 callback or a rejected principal.
	ErrAuthentication = errors.New("authentication failed")
	// ErrTokenValidation reports a bad signature, expiry, issuer mismatch or key fetch failure.
	ErrTokenValidation = errors.New("token validation failed")
	// ErrMissingSubject is returned by ExtractUserInfo when "sub" is absent or blank.
	ErrMissingSubject = errors.New("subject claim is missing or blank")
	// ErrMissingIDToken means a token endpoint response carried no id_token.
	ErrMissingIDToken = errors.New("id_token missing")
	// ErrTokenRefresh reports a failed refresh_token grant.
	ErrTokenRefresh = errors.New("token refresh failed")
	// ErrNoSession means logout or refresh was attempted without a session principal.
	ErrNoSession = errors.New("no active session")
)
