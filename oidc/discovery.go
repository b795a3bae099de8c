package oidckit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// WellKnownPath is appended to the issuer to locate the discovery document.
	WellKnownPath = "/.well-known/openid-configuration"
	// DiscoveryTimeout bounds a single discovery request.
	DiscoveryTimeout = 10 * time.Second
)

// Discovery is the OpenID Provider metadata document
// (OpenID Connect Discovery 1.0, section 3). Only Issuer,
// AuthorizationEndpoint, TokenEndpoint and JWKSURI are required.
type Discovery struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`

	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
	RegistrationEndpoint  string `json:"registration_endpoint,omitempty"`
	RevocationEndpoint    string `json:"revocation_endpoint,omitempty"`
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty"`
	CheckSessionIframe    string `json:"check_session_iframe,omitempty"`

	ScopesSupported                            []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported                     []string `json:"response_types_supported,omitempty"`
	ResponseModesSupported                     []string `json:"response_modes_supported,omitempty"`
	GrantTypesSupported                        []string `json:"grant_types_supported,omitempty"`
	ACRValuesSupported                         []string `json:"acr_values_supported,omitempty"`
	SubjectTypesSupported                      []string `json:"subject_types_supported,omitempty"`
	IDTokenSigningAlgValuesSupported           []string `json:"id_token_signing_alg_values_supported,omitempty"`
	IDTokenEncryptionAlgValuesSupported        []string `json:"id_token_encryption_alg_values_supported,omitempty"`
	IDTokenEncryptionEncValuesSupported        []string `json:"id_token_encryption_enc_values_supported,omitempty"`
	UserinfoSigningAlgValuesSupported          []string `json:"userinfo_signing_alg_values_supported,omitempty"`
	UserinfoEncryptionAlgValuesSupported       []string `json:"userinfo_encryption_alg_values_supported,omitempty"`
	UserinfoEncryptionEncValuesSupported       []string `json:"userinfo_encryption_enc_values_supported,omitempty"`
	RequestObjectSigningAlgValuesSupported     []string `json:"request_object_signing_alg_values_supported,omitempty"`
	RequestObjectEncryptionAlgValuesSupported  []string `json:"request_object_encryption_alg_values_supported,omitempty"`
	RequestObjectEncryptionEncValuesSupported  []string `json:"request_object_encryption_enc_values_supported,omitempty"`
	TokenEndpointAuthMethodsSupported          []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	TokenEndpointAuthSigningAlgValuesSupported []string `json:"token_endpoint_auth_signing_alg_values_supported,omitempty"`
	DisplayValuesSupported                     []string `json:"display_values_supported,omitempty"`
	ClaimTypesSupported                        []string `json:"claim_types_supported,omitempty"`
	ClaimsSupported                            []string `json:"claims_supported,omitempty"`
	ClaimsLocalesSupported                     []string `json:"claims_locales_supported,omitempty"`
	UILocalesSupported                         []string `json:"ui_locales_supported,omitempty"`
	CodeChallengeMethodsSupported              []string `json:"code_challenge_methods_supported,omitempty"`

	ServiceDocumentation          string `json:"service_documentation,omitempty"`
	OPPolicyURI                   string `json:"op_policy_uri,omitempty"`
	OPTosURI                      string `json:"op_tos_uri,omitempty"`
	ClaimsParameterSupported      bool   `json:"claims_parameter_supported,omitempty"`
	RequestParameterSupported     bool   `json:"request_parameter_supported,omitempty"`
	RequestURIParameterSupported  *bool  `json:"request_uri_parameter_supported,omitempty"`
	RequireRequestURIRegistration bool   `json:"require_request_uri_registration,omitempty"`
	FrontchannelLogoutSupported   bool   `json:"frontchannel_logout_supported,omitempty"`
	BackchannelLogoutSupported    bool   `json:"backchannel_logout_supported,omitempty"`
}

// Validate rejects documents missing any of the four required fields.
func (d Discovery) Validate() error {
	var missing []string
	if strings.TrimSpace(d.Issuer) == "" {
		missing = append(missing, "issuer")
	}
	if strings.TrimSpace(d.AuthorizationEndpoint) == "" {
		missing = append(missing, "authorization_endpoint")
	}
	if strings.TrimSpace(d.TokenEndpoint) == "" {
		missing = append(missing, "token_endpoint")
	}
	if strings.TrimSpace(d.JWKSURI) == "" {
		missing = append(missing, "jwks_uri")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: document missing %s", ErrDiscovery, strings.Join(missing, ", "))
	}
	return nil
}

// DiscoveryURL returns the well-known configuration URL for an issuer.
func DiscoveryURL(issuer string) string {
	return strings.TrimRight(strings.TrimSpace(issuer), "/") + WellKnownPath
}

// Discover fetches and decodes the issuer's discovery document. The request is
// bounded by DiscoveryTimeout and never retried.
func Discover(ctx context.Context, client *http.Client, issuer string) (Discovery, error) {
	if strings.TrimSpace(issuer) == "" {
		return Discovery{}, fmt.Errorf("%w: issuer URL must not be blank", ErrConfiguration)
	}
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, DiscoveryTimeout)
	defer cancel()

	wellKnown := DiscoveryURL(issuer)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, http.NoBody)
	if err != nil {
		return Discovery{}, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Discovery{}, fmt.Errorf("%w: %s", ErrDiscoveryTimeout, wellKnown)
		}
		return Discovery{}, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Discovery{}, fmt.Errorf("%w: %s returned %d: %s", ErrDiscovery, wellKnown, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc Discovery
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Discovery{}, fmt.Errorf("%w: %s", ErrDiscoveryTimeout, wellKnown)
		}
		return Discovery{}, fmt.Errorf("%w: decode %s: %v", ErrDiscovery, wellKnown, err)
	}
	if err := doc.Validate(); err != nil {
		return Discovery{}, err
	}
	return doc, nil
}
