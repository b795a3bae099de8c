package authhttp

import (
	"encoding/json"
	"errors"
	"net/http"

	oidckit "github.com/open-rails/openidkit/oidc"
)

type errResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendErr writes {"error": code}. Error answers depend on the caller's
// credentials and are never cached.
func sendErr(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, errResp{Error: code})
}

func unauthorized(w http.ResponseWriter, code string) { sendErr(w, http.StatusUnauthorized, code) }
func serverErr(w http.ResponseWriter, code string)    { sendErr(w, http.StatusInternalServerError, code) }
func unavailable(w http.ResponseWriter, code string)  { sendErr(w, http.StatusServiceUnavailable, code) }

// authFailed answers a rejected credential with 401 and a Bearer challenge.
func authFailed(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", BearerChallenge(err))
	unauthorized(w, ErrorCode(err))
}

// ErrorCode maps an authentication error to the JSON error code sent with 401.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, oidckit.ErrNoCredential):
		return "missing_token"
	case errors.Is(err, oidckit.ErrTokenValidation):
		return "invalid_token"
	case errors.Is(err, oidckit.ErrMissingSubject):
		return "invalid_subject"
	case errors.Is(err, oidckit.ErrDiscovery):
		return "discovery_unavailable"
	default:
		return "unauthorized"
	}
}

// BearerChallenge returns the WWW-Authenticate value (RFC 6750 section 3) for
// err. A request that sent no credential gets a bare challenge.
func BearerChallenge(err error) string {
	switch {
	case err == nil, errors.Is(err, oidckit.ErrNoCredential):
		return "Bearer"
	case errors.Is(err, oidckit.ErrTokenValidation), errors.Is(err, oidckit.ErrMissingSubject):
		return `Bearer error="invalid_token"`
	default:
		return `Bearer error="invalid_request"`
	}
}
