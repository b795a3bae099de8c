package authhttp

import (
	"net/http"
	"sync"

	core "github.com/open-rails/openidkit/core"
	oidckit "github.com/open-rails/openidkit/oidc"
)

// Authenticator resolves the principal of a request.
type Authenticator interface {
	Name() string
	Authenticate(r *http.Request) (any, error)
}

// jwtProvider verifies a bearer id_token, or the one stored in the session
// when the issuer also runs the OAuth flow (sessionName set).
type jwtProvider struct {
	svc         *Service
	issuer      string
	cfg         core.JWKConfig
	sessionName string

	mu       sync.Mutex
	verifier *oidckit.Verifier
}

func (p *jwtProvider) Name() string { return p.cfg.Name }

// credential checks the Authorization header before the session.
func (p *jwtProvider) credential(r *http.Request) (string, error) {
	if tok := bearerToken(r.Header.Get("Authorization")); tok != "" {
		return tok, nil
	}
	if p.sessionName != "" && p.svc.sessions != nil {
		pr, ok, err := p.svc.sessions.Get(r, p.sessionName)
		if err != nil {
			return "", err
		}
		if ok && pr.IDToken != "" {
			return pr.IDToken, nil
		}
	}
	return "", oidckit.ErrNoCredential
}

func (p *jwtProvider) verifierFor(r *http.Request) (*oidckit.Verifier, error) {
	p.mu.Lock()
	v := p.verifier
	p.mu.Unlock()
	if v != nil {
		return v, nil
	}
	// Discovery is awaited outside the lock.
	v, err := p.svc.reg.Verifier(r.Context(), p.issuer, p.cfg.Verify)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.verifier == nil {
		p.verifier = v
	}
	v = p.verifier
	p.mu.Unlock()
	return v, nil
}

func (p *jwtProvider) Authenticate(r *http.Request) (any, error) {
	raw, err := p.credential(r)
	if err != nil {
		return nil, err
	}
	v, err := p.verifierFor(r)
	if err != nil {
		return nil, err
	}
	claims, err := v.Verify(r.Context(), raw)
	if err != nil {
		return nil, err
	}
	return p.cfg.Validate(r.Context(), claims)
}
