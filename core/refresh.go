package core

import (
	"context"
	"fmt"
	"strings"

	oidckit "github.com/open-rails/openidkit/oidc"
)

// Refresh redeems refreshToken at issuer's token endpoint and returns a new
// principal. The returned principal keeps refreshToken when the provider does
// not rotate it. The caller's session is not touched.
func (r *Registry) Refresh(ctx context.Context, issuer, refreshToken string) (oidckit.Principal, error) {
	issuer = strings.TrimSpace(issuer)
	cfg, ok := r.oauth[issuer]
	if !ok {
		return oidckit.Principal{}, fmt.Errorf("%w: no oauth provider for issuer %q", ErrConfiguration, issuer)
	}
	if strings.TrimSpace(refreshToken) == "" {
		return oidckit.Principal{}, fmt.Errorf("%w: no refresh token", ErrTokenRefresh)
	}
	log := r.log.WithField("issuer", issuer).WithField("provider", cfg.Name)

	doc, err := r.AwaitDiscovery(ctx, issuer)
	if err != nil {
		log.WithError(err).Warn("openid refresh: discovery unavailable")
		return oidckit.Principal{}, fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}
	tokens, err := oidckit.RefreshTokens(ctx, r.client, doc, cfg.ClientID, cfg.ClientSecret, refreshToken)
	if err != nil {
		log.WithError(err).Warn("openid refresh: token request failed")
		return oidckit.Principal{}, err
	}
	claims, err := r.VerifyIDToken(ctx, issuer, *tokens.IDToken)
	if err != nil {
		log.WithError(err).Warn("openid refresh: id_token rejected")
		return oidckit.Principal{}, fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}
	p, err := oidckit.NewPrincipal(tokens, claims, refreshToken)
	if err != nil {
		return oidckit.Principal{}, fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}
	log.WithField("sub", p.UserInfo.Subject).Debug("openid refresh succeeded")
	return p, nil
}
