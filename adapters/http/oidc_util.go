package authhttp

import (
	"net/http"
	"net/url"
	"strings"
)

func requestOrigin(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	host := r.Header.Get("X-Forwarded-Host")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	if host == "" {
		host = r.Host
	}
	return scheme + "://" + host
}

// absoluteURL resolves path against the current request's scheme and host.
// Values that are already absolute are returned unchanged.
func absoluteURL(r *http.Request, path string) string {
	if u, err := url.Parse(path); err == nil && u.Scheme != "" && u.Host != "" {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return requestOrigin(r) + path
}

// EndSessionURL builds the RP-initiated logout redirect for endpoint. Query
// parameters already present on endpoint are kept.
func EndSessionURL(endpoint, idTokenHint, postLogoutRedirectURI string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	if postLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
