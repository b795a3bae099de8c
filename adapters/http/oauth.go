package authhttp

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	core "github.com/open-rails/openidkit/core"
	oidckit "github.com/open-rails/openidkit/oidc"
)

// oauthProvider runs the authorization-code flow for one issuer. The zitadel
// relying party is built after discovery, per request, so the callback URL
// follows the host the client used.
type oauthProvider struct {
	svc    *Service
	issuer string
	cfg    core.OAuthConfig
}

func (p *oauthProvider) Name() string { return p.cfg.Name }

func (p *oauthProvider) logger() logrus.FieldLogger {
	return p.svc.log.WithFields(logrus.Fields{"provider": p.cfg.Name, "issuer": p.issuer})
}

// Authenticate returns the UserInfo of the session principal.
func (p *oauthProvider) Authenticate(r *http.Request) (any, error) {
	if p.svc.sessions == nil {
		return nil, oidckit.ErrNoCredential
	}
	pr, ok, err := p.svc.sessions.Get(r, p.cfg.SessionName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, oidckit.ErrNoCredential
	}
	return pr.UserInfo, nil
}

// Challenge sends the client to the login route.
func (p *oauthProvider) Challenge(w http.ResponseWriter, r *http.Request, _ error) {
	http.Redirect(w, r, p.cfg.LoginURI, http.StatusFound)
}

func (p *oauthProvider) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := p.logger()
	doc, err := p.svc.reg.AwaitDiscovery(r.Context(), p.issuer)
	if err != nil {
		log.WithError(err).Warn("openid login: discovery unavailable")
		unavailable(w, "discovery_unavailable")
		return
	}
	redirectURI := absoluteURL(r, p.cfg.RedirectURI)
	rpClient, err := oidckit.NewRelyingParty(doc, p.cfg.Credentials(), redirectURI, p.svc.reg.HTTPClient())
	if err != nil {
		log.WithError(err).Error("openid login: relying party")
		serverErr(w, "oidc_begin_failed")
		return
	}
	state, err := oidckit.GenerateState()
	if err != nil {
		serverErr(w, "state_generation_failed")
		return
	}
	if err := p.svc.states.Put(r.Context(), state, oidckit.StateData{Provider: p.cfg.Name, RedirectURI: redirectURI}); err != nil {
		log.WithError(err).Error("openid login: state store failed")
		serverErr(w, "state_store_failed")
		return
	}
	http.Redirect(w, r, oidckit.AuthURL(rpClient, state), http.StatusFound)
}

func (p *oauthProvider) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cb := p.svc.callbacksFor(p)
	fail := func(err error) {
		p.logger().WithError(err).Debug("openid callback failed")
		cb.OnFailure(w, r, err)
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		fail(fmt.Errorf("%w: provider returned %s", oidckit.ErrAuthentication, e))
		return
	}
	state := q.Get("state")
	if state == "" {
		fail(fmt.Errorf("%w: missing state", oidckit.ErrAuthentication))
		return
	}
	sd, ok, err := takeState(ctx, p.svc.states, state)
	if err != nil {
		fail(fmt.Errorf("%w: state lookup: %v", oidckit.ErrAuthentication, err))
		return
	}
	if !ok || sd.Provider != p.cfg.Name {
		fail(fmt.Errorf("%w: unknown state", oidckit.ErrAuthentication))
		return
	}

	doc, err := p.svc.reg.AwaitDiscovery(ctx, p.issuer)
	if err != nil {
		fail(err)
		return
	}
	rpClient, err := oidckit.NewRelyingParty(doc, p.cfg.Credentials(), sd.RedirectURI, p.svc.reg.HTTPClient())
	if err != nil {
		fail(fmt.Errorf("%w: %v", oidckit.ErrAuthentication, err))
		return
	}
	tokens, err := oidckit.CodeExchange(ctx, rpClient, q.Get("code"))
	if err != nil {
		fail(err)
		return
	}
	claims, err := p.svc.reg.VerifyIDToken(ctx, p.issuer, *tokens.IDToken)
	if err != nil {
		fail(fmt.Errorf("%w: %w", oidckit.ErrAuthentication, err))
		return
	}
	principal, err := oidckit.NewPrincipal(tokens, claims, "")
	if err != nil {
		fail(fmt.Errorf("%w: %w", oidckit.ErrAuthentication, err))
		return
	}
	p.logger().WithField("sub", principal.UserInfo.Subject).Debug("openid login succeeded")
	cb.OnSuccess(w, r, principal)
}

// session returns the stored principal or ErrNoSession.
func (p *oauthProvider) session(r *http.Request) (oidckit.Principal, error) {
	if p.svc.sessions == nil {
		return oidckit.Principal{}, oidckit.ErrNoSession
	}
	current, ok, err := p.svc.sessions.Get(r, p.cfg.SessionName)
	if err != nil {
		return oidckit.Principal{}, err
	}
	if !ok {
		return oidckit.Principal{}, oidckit.ErrNoSession
	}
	return current, nil
}

func (p *oauthProvider) handleRefresh(w http.ResponseWriter, r *http.Request) {
	current, err := p.session(r)
	switch {
	case errors.Is(err, oidckit.ErrNoSession):
		unauthorized(w, "no_refresh_token")
		return
	case err != nil:
		p.logger().WithError(err).Error("openid refresh: session read failed")
		serverErr(w, "session_store_failed")
		return
	}
	if current.RefreshToken == "" {
		unauthorized(w, "no_refresh_token")
		return
	}
	next, err := p.svc.reg.Refresh(r.Context(), p.issuer, current.RefreshToken)
	if err != nil {
		unauthorized(w, "token_refresh_failed")
		return
	}
	if err := p.svc.sessions.Set(w, r, p.cfg.SessionName, next); err != nil {
		p.logger().WithError(err).Error("openid refresh: session write failed")
		serverErr(w, "session_store_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *oauthProvider) handleLogout(w http.ResponseWriter, r *http.Request) {
	log := p.logger()
	current, err := p.session(r)
	switch {
	case errors.Is(err, oidckit.ErrNoSession):
		log.Debug("openid logout: no session")
		unauthorized(w, "no_session")
		return
	case err != nil:
		log.WithError(err).Error("openid logout: session read failed")
		serverErr(w, "session_store_failed")
		return
	}
	if err := p.svc.sessions.Clear(w, r, p.cfg.SessionName); err != nil {
		log.WithError(err).Warn("openid logout: session clear failed")
	}

	cb := p.svc.callbacksFor(p)
	doc, err := p.svc.reg.AwaitDiscovery(r.Context(), p.issuer)
	if err != nil {
		log.WithError(err).Debug("openid logout: discovery unavailable, using fallback")
		cb.OnLogoutFallback(w, r)
		return
	}
	if doc.EndSessionEndpoint == "" {
		log.Debug("openid logout: no end_session_endpoint, using fallback")
		cb.OnLogoutFallback(w, r)
		return
	}
	log.Debug("openid logout: redirecting to end_session_endpoint")
	cb.OnLogoutWithEndSession(w, r, current, doc, doc.EndSessionEndpoint)
}
