package core

import oidckit "github.com/open-rails/openidkit/oidc"

// Sentinels are shared with the oidc package so callers can match either.
var (
	ErrConfiguration    = oidckit.ErrConfiguration
	ErrDiscovery        = oidckit.ErrDiscovery
	ErrDiscoveryTimeout = oidckit.ErrDiscoveryTimeout
	ErrNoCredential     = oidckit.ErrNoCredential
	ErrAuthentication   = oidckit.ErrAuthentication
	ErrTokenValidation  = oidckit.ErrTokenValidation
	ErrMissingSubject   = oidckit.ErrMissingSubject
	ErrMissingIDToken   = oidckit.ErrMissingIDToken
	ErrTokenRefresh     = oidckit.ErrTokenRefresh
	ErrNoSession        = oidckit.ErrNoSession
)
