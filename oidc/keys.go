package oidckit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/time/rate"
)

// KeyPolicy controls how signing keys are fetched from an issuer's jwks_uri.
// The zero value caches keys and rate limits forced refreshes.
type KeyPolicy struct {
	// DisableCache fetches the key set on every verification.
	DisableCache bool `mapstructure:"disable_cache"`
	// RefreshInterval is how often the cached set is refreshed in the background (default 10h).
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	// MinRefreshInterval is the lower bound honoured when the server sends cache headers (default 15m).
	MinRefreshInterval time.Duration `mapstructure:"min_refresh_interval"`
	// DisableRateLimit lets every unknown kid trigger a fetch.
	DisableRateLimit bool `mapstructure:"disable_rate_limit"`
	// RefreshesPerMinute caps forced fetches (default 10).
	RefreshesPerMinute int `mapstructure:"refreshes_per_minute"`
	// Burst is the forced-fetch bucket size (default 10).
	Burst int `mapstructure:"burst"`
}

// ApplyDefaults fills zero-valued fields.
func (p *KeyPolicy) ApplyDefaults() {
	if p.RefreshInterval <= 0 {
		p.RefreshInterval = 10 * time.Hour
	}
	if p.MinRefreshInterval <= 0 {
		p.MinRefreshInterval = 15 * time.Minute
	}
	if p.RefreshesPerMinute <= 0 {
		p.RefreshesPerMinute = 10
	}
	if p.Burst <= 0 {
		p.Burst = 10
	}
}

var errRateLimited = errors.New("jwks fetch rate limit exceeded")

// KeySet resolves verification keys by kid from a remote JWKS.
type KeySet struct {
	url     string
	client  *http.Client
	cache   *jwk.Cache
	limiter *rate.Limiter
}

// NewKeySet registers jwksURL with a jwx cache bound to ctx. The background
// refresh goroutine stops when ctx is cancelled.
func NewKeySet(ctx context.Context, client *http.Client, jwksURL string, policy KeyPolicy) (*KeySet, error) {
	jwksURL = strings.TrimSpace(jwksURL)
	if jwksURL == "" {
		return nil, fmt.Errorf("%w: jwks_uri must not be blank", ErrConfiguration)
	}
	if client == nil {
		client = http.DefaultClient
	}
	policy.ApplyDefaults()

	ks := &KeySet{url: jwksURL, client: client}
	if !policy.DisableRateLimit {
		ks.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(policy.RefreshesPerMinute)), policy.Burst)
	}
	if !policy.DisableCache {
		c := jwk.NewCache(ctx)
		if err := c.Register(jwksURL,
			jwk.WithHTTPClient(client),
			jwk.WithRefreshInterval(policy.RefreshInterval),
			jwk.WithMinRefreshInterval(policy.MinRefreshInterval),
		); err != nil {
			return nil, fmt.Errorf("register jwks %s: %w", jwksURL, err)
		}
		ks.cache = c
	}
	return ks, nil
}

// URL returns the jwks_uri backing this set.
func (k *KeySet) URL() string { return k.url }

func (k *KeySet) allow() bool { return k.limiter == nil || k.limiter.Allow() }

func (k *KeySet) fetch(ctx context.Context) (jwk.Set, error) {
	if k.cache == nil {
		if !k.allow() {
			return nil, errRateLimited
		}
		return jwk.Fetch(ctx, k.url, jwk.WithHTTPClient(k.client))
	}
	return k.cache.Get(ctx, k.url)
}

// PublicKey returns the raw public key for kid. An unknown kid forces one
// rate-limited refetch to pick up rotated keys.
func (k *KeySet) PublicKey(ctx context.Context, kid string) (any, error) {
	set, err := k.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	key, ok := lookupKey(set, kid)
	if !ok && k.cache != nil && k.allow() {
		if set, err = k.cache.Refresh(ctx, k.url); err != nil {
			return nil, fmt.Errorf("refresh jwks: %w", err)
		}
		key, ok = lookupKey(set, kid)
	}
	if !ok {
		return nil, fmt.Errorf("key %q not found in jwks", kid)
	}

	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("decode jwk %q: %w", kid, err)
	}
	return raw, nil
}

func lookupKey(set jwk.Set, kid string) (jwk.Key, bool) {
	if set == nil {
		return nil, false
	}
	if kid != "" {
		return set.LookupKeyID(kid)
	}
	// No kid: only unambiguous when the set has a single signing key.
	if set.Len() == 1 {
		return set.Key(0)
	}
	return nil, false
}
