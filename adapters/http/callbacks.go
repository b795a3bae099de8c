package authhttp

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	core "github.com/open-rails/openidkit/core"
	oidckit "github.com/open-rails/openidkit/oidc"
)

// Callbacks decides what the client sees at the end of each OAuth flow.
// OnSuccess is responsible for persisting the principal.
type Callbacks interface {
	OnSuccess(w http.ResponseWriter, r *http.Request, p oidckit.Principal)
	OnFailure(w http.ResponseWriter, r *http.Request, err error)
	OnLogoutWithEndSession(w http.ResponseWriter, r *http.Request, p oidckit.Principal, doc oidckit.Discovery, endpoint string)
	OnLogoutFallback(w http.ResponseWriter, r *http.Request)
}

// DefaultCallbacks stores the principal and redirects:
//
//   - success: session write, 302 to RedirectOnSuccessURI
//   - failure: 401 {"error":"authentication_failed"}
//   - logout with end session: 302 to the provider with id_token_hint and an
//     absolute post_logout_redirect_uri
//   - logout fallback: 302 to PostLogoutRedirectURI
type DefaultCallbacks struct {
	Config   core.OAuthConfig
	Sessions SessionStore
	Log      logrus.FieldLogger
}

func (d DefaultCallbacks) logger() logrus.FieldLogger {
	if d.Log == nil {
		return logrus.StandardLogger()
	}
	return d.Log
}

func (d DefaultCallbacks) OnSuccess(w http.ResponseWriter, r *http.Request, p oidckit.Principal) {
	if err := d.Sessions.Set(w, r, d.Config.SessionName, p); err != nil {
		d.logger().WithError(err).WithField("provider", d.Config.Name).Error("openid: session write failed")
		serverErr(w, "session_store_failed")
		return
	}
	http.Redirect(w, r, d.Config.RedirectOnSuccessURI, http.StatusFound)
}

func (d DefaultCallbacks) OnFailure(w http.ResponseWriter, r *http.Request, err error) {
	code := "authentication_failed"
	if errors.Is(err, oidckit.ErrDiscovery) {
		code = "discovery_unavailable"
	}
	unauthorized(w, code)
}

func (d DefaultCallbacks) OnLogoutWithEndSession(w http.ResponseWriter, r *http.Request, p oidckit.Principal, _ oidckit.Discovery, endpoint string) {
	target, err := EndSessionURL(endpoint, p.IDToken, absoluteURL(r, d.Config.PostLogoutRedirectURI))
	if err != nil {
		d.logger().WithError(err).Warn("openid: invalid end_session_endpoint, using fallback")
		d.OnLogoutFallback(w, r)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (d DefaultCallbacks) OnLogoutFallback(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, d.Config.PostLogoutRedirectURI, http.StatusFound)
}

// CallbackFuncs overrides individual callbacks. Nil fields use the provider's
// DefaultCallbacks.
type CallbackFuncs struct {
	Success              func(w http.ResponseWriter, r *http.Request, p oidckit.Principal)
	Failure              func(w http.ResponseWriter, r *http.Request, err error)
	LogoutWithEndSession func(w http.ResponseWriter, r *http.Request, p oidckit.Principal, doc oidckit.Discovery, endpoint string)
	LogoutFallback       func(w http.ResponseWriter, r *http.Request)

	next Callbacks
}

func (c CallbackFuncs) OnSuccess(w http.ResponseWriter, r *http.Request, p oidckit.Principal) {
	if c.Success != nil {
		c.Success(w, r, p)
		return
	}
	c.next.OnSuccess(w, r, p)
}

func (c CallbackFuncs) OnFailure(w http.ResponseWriter, r *http.Request, err error) {
	if c.Failure != nil {
		c.Failure(w, r, err)
		return
	}
	c.next.OnFailure(w, r, err)
}

func (c CallbackFuncs) OnLogoutWithEndSession(w http.ResponseWriter, r *http.Request, p oidckit.Principal, doc oidckit.Discovery, endpoint string) {
	if c.LogoutWithEndSession != nil {
		c.LogoutWithEndSession(w, r, p, doc, endpoint)
		return
	}
	c.next.OnLogoutWithEndSession(w, r, p, doc, endpoint)
}

func (c CallbackFuncs) OnLogoutFallback(w http.ResponseWriter, r *http.Request) {
	if c.LogoutFallback != nil {
		c.LogoutFallback(w, r)
		return
	}
	c.next.OnLogoutFallback(w, r)
}

// withDefaults fills CallbackFuncs gaps with def. Other Callbacks are used as is.
func withDefaults(cb Callbacks, def DefaultCallbacks) Callbacks {
	switch c := cb.(type) {
	case nil:
		return def
	case CallbackFuncs:
		c.next = def
		return c
	case *CallbackFuncs:
		cp := *c
		cp.next = def
		return cp
	default:
		return cb
	}
}
