package oidckit

import (
	"context"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultAlgorithms are the asymmetric algorithms accepted when none are configured.
var DefaultAlgorithms = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512"}

// VerifyOptions adds checks on top of signature, issuer and expiry.
type VerifyOptions struct {
	// Audience, when set, must be present in the "aud" claim.
	Audience string `mapstructure:"audience"`
	// Algorithms restricts the accepted "alg" header values (default DefaultAlgorithms).
	Algorithms []string `mapstructure:"algorithms"`
	// Leeway tolerates clock skew on exp/nbf/iat (default 60s).
	Leeway time.Duration `mapstructure:"leeway"`
	// ParserOptions are appended to the golang-jwt parser options.
	ParserOptions []jwt.ParserOption `mapstructure:"-"`
}

// Verifier checks bearer tokens issued by a single issuer.
type Verifier struct {
	issuer string
	keys   *KeySet
	parser *jwt.Parser
}

// NewVerifier binds a key set to the issuer reported by discovery.
func NewVerifier(keys *KeySet, issuer string, opts VerifyOptions) *Verifier {
	algs := opts.Algorithms
	if len(algs) == 0 {
		algs = DefaultAlgorithms
	}
	leeway := opts.Leeway
	if leeway == 0 {
		leeway = 60 * time.Second
	}
	popts := []jwt.ParserOption{
		jwt.WithValidMethods(algs),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(leeway),
	}
	if strings.TrimSpace(opts.Audience) != "" {
		popts = append(popts, jwt.WithAudience(opts.Audience))
	}
	popts = append(popts, opts.ParserOptions...)
	return &Verifier{issuer: issuer, keys: keys, parser: jwt.NewParser(popts...)}
}

// Issuer returns the expected "iss" value.
func (v *Verifier) Issuer() string { return v.issuer }

// Verify parses raw, checks its signature against the issuer's keys and
// validates the registered claims. Every failure wraps ErrTokenValidation.
func (v *Verifier) Verify(ctx context.Context, raw string) (jwt.MapClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenValidation)
	}
	claims := jwt.MapClaims{}
	tok, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.PublicKey(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenValidation, err)
	}
	if tok == nil || !tok.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrTokenValidation)
	}
	return claims, nil
}
