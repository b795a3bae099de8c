package core

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	oidckit "github.com/open-rails/openidkit/oidc"
)

// OAuthProvider is a registered authorization-code provider.
type OAuthProvider struct {
	Issuer string
	OAuthConfig
}

// JWKProvider is a registered bearer-token provider. SessionFallback is set
// when the same issuer also has an OAuth provider.
type JWKProvider struct {
	Issuer          string
	SessionFallback bool
	JWKConfig
}

// Option registers a provider explicitly.
type Option func(*registrations)

type registrations struct {
	oauth map[string]OAuthConfig
	jwk   map[string]JWKConfig
}

// OAuth registers an authorization-code provider for issuer.
func OAuth(issuer string, cfg OAuthConfig) Option {
	return func(r *registrations) { r.oauth[strings.TrimSpace(issuer)] = cfg }
}

// JWK registers a bearer-token provider for issuer.
func JWK(issuer string, cfg JWKConfig) Option {
	return func(r *registrations) { r.jwk[strings.TrimSpace(issuer)] = cfg }
}

// Registry owns discovery, key sets and the provider configuration for every
// configured issuer. It is immutable after construction apart from lazily
// created key sets.
type Registry struct {
	log    logrus.FieldLogger
	client *http.Client
	dev    bool

	ctx    context.Context
	cancel context.CancelFunc
	closed sync.Once

	issuers []string
	handles map[string]*DiscoveryHandle
	oauth   map[string]OAuthConfig
	jwk     map[string]JWKConfig

	mu   sync.Mutex
	keys map[string]*oidckit.KeySet
}

// NewRegistry validates the providers and starts one discovery per distinct
// issuer. The fetches run on a context derived from ctx; Close stops them.
func NewRegistry(ctx context.Context, cfg Config, opts ...Option) (*Registry, error) {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	discover := cfg.Discover
	if discover == nil {
		discover = oidckit.Discover
	}

	regs := &registrations{oauth: map[string]OAuthConfig{}, jwk: map[string]JWKConfig{}}
	if err := regs.fromProviders(cfg.Providers, log); err != nil {
		return nil, err
	}
	for _, o := range opts {
		o(regs)
	}

	r := &Registry{
		log:     log,
		client:  client,
		dev:     cfg.Development,
		handles: map[string]*DiscoveryHandle{},
		oauth:   map[string]OAuthConfig{},
		jwk:     map[string]JWKConfig{},
		keys:    map[string]*oidckit.KeySet{},
	}
	names := map[string]string{}
	claim := func(name, issuer string) error {
		if other, ok := names[name]; ok {
			return fmt.Errorf("%w: provider name %q used for %s and %s", ErrConfiguration, name, other, issuer)
		}
		names[name] = issuer
		return nil
	}

	cookies := map[string]string{}
	for _, issuer := range sortedKeys(regs.oauth) {
		c := regs.oauth[issuer]
		if issuer == "" {
			return nil, fmt.Errorf("%w: oauth provider %q has a blank issuer", ErrConfiguration, c.Name)
		}
		if c.SessionName == "" && len(regs.oauth) > 1 {
			c.SessionName = providerSessionName(c.Name, DefaultOAuthName)
		}
		c.ApplyDefaults(cfg.Development)
		if err := c.validate(); err != nil {
			return nil, err
		}
		if err := claim(c.Name, issuer); err != nil {
			return nil, err
		}
		if other, ok := cookies[c.SessionName]; ok {
			return nil, fmt.Errorf("%w: session name %q used for %s and %s", ErrConfiguration, c.SessionName, other, issuer)
		}
		cookies[c.SessionName] = issuer
		r.oauth[issuer] = c
	}
	for _, issuer := range sortedKeys(regs.jwk) {
		c := regs.jwk[issuer]
		if issuer == "" {
			return nil, fmt.Errorf("%w: jwk provider %q has a blank issuer", ErrConfiguration, c.Name)
		}
		c.ApplyDefaults()
		if err := claim(c.Name, issuer); err != nil {
			return nil, err
		}
		r.jwk[issuer] = c
	}

	seen := map[string]bool{}
	for issuer := range r.oauth {
		seen[issuer] = true
	}
	for issuer := range r.jwk {
		seen[issuer] = true
	}
	r.issuers = sortedKeys(seen)

	r.ctx, r.cancel = context.WithCancel(ctx)
	for _, issuer := range r.issuers {
		h := NewDiscoveryHandle(issuer)
		r.handles[issuer] = h
		h.Start(r.ctx, func(ctx context.Context) (oidckit.Discovery, error) {
			doc, err := discover(ctx, client, issuer)
			if err != nil {
				log.WithError(err).WithField("issuer", issuer).Warn("openid discovery failed")
				return doc, err
			}
			log.WithField("issuer", issuer).Debug("openid discovery completed")
			return doc, nil
		})
	}
	for _, issuer := range r.issuers {
		fields := logrus.Fields{"issuer": issuer}
		if c, ok := r.oauth[issuer]; ok {
			fields["oauth"] = c.Name
		}
		if c, ok := r.jwk[issuer]; ok {
			fields["jwk"] = c.Name
		}
		log.WithFields(fields).Debug("openid providers registered")
	}
	return r, nil
}

func (r *registrations) fromProviders(providers map[string]ProviderConfig, log logrus.FieldLogger) error {
	for _, name := range sortedKeys(providers) {
		p := providers[name]
		issuer := strings.TrimSpace(p.Issuer)
		if issuer == "" {
			return fmt.Errorf("%w: provider %q has a blank issuer", ErrConfiguration, name)
		}
		if !p.HasCredentials() {
			if p.ClientID != "" || p.ClientSecret != "" {
				log.WithField("provider", name).Warn("openid provider has partial client credentials, registering JWT verification only")
			}
			r.jwk[issuer] = JWKConfig{Name: name, Keys: p.Keys, Verify: p.Verify}
			continue
		}
		r.jwk[issuer] = JWKConfig{Name: name + "-jwk", Keys: p.Keys, Verify: p.Verify}
		r.oauth[issuer] = OAuthConfig{
			Name:         name + "-oauth",
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			Scopes:       p.Scopes,
			SessionName:  p.SessionName,
		}
	}
	return nil
}

// providerSessionName derives a cookie name for name when several OAuth
// providers would otherwise share DefaultSessionName.
func providerSessionName(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		name = fallback
	}
	var b strings.Builder
	b.WriteString(DefaultSessionName)
	b.WriteByte('_')
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// Development reports whether the registry was built in development mode.
func (r *Registry) Development() bool { return r.dev }

// HTTPClient returns the shared client.
func (r *Registry) HTTPClient() *http.Client { return r.client }

// Logger returns the registry logger.
func (r *Registry) Logger() logrus.FieldLogger { return r.log }

// Issuers returns every distinct issuer, sorted.
func (r *Registry) Issuers() []string { return append([]string(nil), r.issuers...) }

// OAuthProviders returns the authorization-code providers sorted by name.
func (r *Registry) OAuthProviders() []OAuthProvider {
	out := make([]OAuthProvider, 0, len(r.oauth))
	for issuer, c := range r.oauth {
		out = append(out, OAuthProvider{Issuer: issuer, OAuthConfig: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// JWKProviders returns the bearer-token providers sorted by name.
func (r *Registry) JWKProviders() []JWKProvider {
	out := make([]JWKProvider, 0, len(r.jwk))
	for issuer, c := range r.jwk {
		_, fallback := r.oauth[issuer]
		out = append(out, JWKProvider{Issuer: issuer, SessionFallback: fallback, JWKConfig: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OAuthConfig returns the OAuth configuration of issuer.
func (r *Registry) OAuthConfig(issuer string) (OAuthConfig, bool) {
	c, ok := r.oauth[strings.TrimSpace(issuer)]
	return c, ok
}

// JWKConfig returns the JWK configuration of issuer.
func (r *Registry) JWKConfig(issuer string) (JWKConfig, bool) {
	c, ok := r.jwk[strings.TrimSpace(issuer)]
	return c, ok
}

// Discovery returns the handle for issuer.
func (r *Registry) Discovery(issuer string) (*DiscoveryHandle, bool) {
	h, ok := r.handles[strings.TrimSpace(issuer)]
	return h, ok
}

// AwaitDiscovery waits for issuer's discovery document.
func (r *Registry) AwaitDiscovery(ctx context.Context, issuer string) (oidckit.Discovery, error) {
	h, ok := r.Discovery(issuer)
	if !ok {
		return oidckit.Discovery{}, fmt.Errorf("%w: unknown issuer %q", ErrConfiguration, issuer)
	}
	return h.Await(ctx)
}

// KeySet returns the issuer's key set, creating it on first use once
// discovery has produced a jwks_uri.
func (r *Registry) KeySet(ctx context.Context, issuer string) (*oidckit.KeySet, error) {
	issuer = strings.TrimSpace(issuer)
	doc, err := r.AwaitDiscovery(ctx, issuer)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ks, ok := r.keys[issuer]; ok {
		return ks, nil
	}
	policy := oidckit.KeyPolicy{}
	if c, ok := r.jwk[issuer]; ok {
		policy = c.Keys
	}
	ks, err := oidckit.NewKeySet(r.ctx, r.client, doc.JWKSURI, policy)
	if err != nil {
		return nil, err
	}
	r.keys[issuer] = ks
	return ks, nil
}

// Verifier returns a verifier bound to the discovered issuer value.
func (r *Registry) Verifier(ctx context.Context, issuer string, opts oidckit.VerifyOptions) (*oidckit.Verifier, error) {
	doc, err := r.AwaitDiscovery(ctx, issuer)
	if err != nil {
		return nil, err
	}
	ks, err := r.KeySet(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return oidckit.NewVerifier(ks, doc.Issuer, opts), nil
}

// VerifyIDToken checks an id_token from issuer's token endpoint. The audience
// defaults to the OAuth client id.
func (r *Registry) VerifyIDToken(ctx context.Context, issuer, raw string) (map[string]any, error) {
	var opts oidckit.VerifyOptions
	if c, ok := r.jwk[strings.TrimSpace(issuer)]; ok {
		opts = c.Verify
	}
	if opts.Audience == "" {
		if c, ok := r.oauth[strings.TrimSpace(issuer)]; ok {
			opts.Audience = c.ClientID
		}
	}
	v, err := r.Verifier(ctx, issuer, opts)
	if err != nil {
		return nil, err
	}
	return v.Verify(ctx, raw)
}

// Close stops background work and releases idle connections. It is safe to
// call more than once.
func (r *Registry) Close() {
	r.closed.Do(func() {
		r.cancel()
		r.client.CloseIdleConnections()
	})
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
