package oidckit

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/zitadel/oidc/v2/pkg/client/rp"
	"golang.org/x/oauth2"
)

// TokenResponse is the token endpoint reply for both the authorization_code
// and refresh_token grants.
type TokenResponse struct {
	AccessToken  string  `json:"access_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    *int64  `json:"expires_in,omitempty"`
	RefreshToken *string `json:"refresh_token,omitempty"`
	IDToken      *string `json:"id_token,omitempty"`
	Scope        *string `json:"scope,omitempty"`
}

func tokenResponse(tok *oauth2.Token, sentRefresh string) TokenResponse {
	out := TokenResponse{AccessToken: tok.AccessToken, TokenType: tok.TokenType}
	if v, ok := tok.Extra("id_token").(string); ok && v != "" {
		out.IDToken = &v
	}
	if v, ok := tok.Extra("scope").(string); ok && v != "" {
		out.Scope = &v
	}
	if v := int64Claim(map[string]any{"expires_in": tok.Extra("expires_in")}, "expires_in"); v != nil {
		out.ExpiresIn = v
	}
	// x/oauth2 copies the sent refresh token into the reply when the server omits one.
	if rt := tok.RefreshToken; rt != "" && rt != sentRefresh {
		out.RefreshToken = &rt
	}
	return out
}

// CodeExchange trades an authorization code for tokens using the relying
// party's OAuth2 config. A reply without an id_token is an error.
func CodeExchange(ctx context.Context, rpClient rp.RelyingParty, code string) (TokenResponse, error) {
	if strings.TrimSpace(code) == "" {
		return TokenResponse{}, fmt.Errorf("%w: missing authorization code", ErrAuthentication)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, rpClient.HttpClient())

	tok, err := rpClient.OAuthConfig().Exchange(ctx, code)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: token exchange: %v", ErrAuthentication, err)
	}
	out := tokenResponse(tok, "")
	if out.IDToken == nil {
		return TokenResponse{}, fmt.Errorf("%w: %w from token response", ErrAuthentication, ErrMissingIDToken)
	}
	return out, nil
}

// RefreshTokens performs a refresh_token grant against the discovered token
// endpoint with client credentials in the form body.
func RefreshTokens(ctx context.Context, client *http.Client, doc Discovery, clientID, clientSecret, refreshToken string) (TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenResponse{}, fmt.Errorf("%w: no refresh token", ErrTokenRefresh)
	}
	if client == nil {
		client = http.DefaultClient
	}
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   doc.AuthorizationEndpoint,
			TokenURL:  doc.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	out := tokenResponse(tok, refreshToken)
	if out.IDToken == nil {
		return TokenResponse{}, fmt.Errorf("%w: %w from refresh response", ErrTokenRefresh, ErrMissingIDToken)
	}
	return out, nil
}

// NewPrincipal builds a principal from a token reply whose id_token has
// already been verified into claims. previousRefresh is kept when the reply
// carries no new refresh token.
func NewPrincipal(tokens TokenResponse, claims map[string]any, previousRefresh string) (Principal, error) {
	if tokens.IDToken == nil {
		return Principal{}, ErrMissingIDToken
	}
	info, err := ExtractUserInfo(claims)
	if err != nil {
		return Principal{}, err
	}
	refresh := previousRefresh
	if tokens.RefreshToken != nil {
		refresh = *tokens.RefreshToken
	}
	return Principal{IDToken: *tokens.IDToken, RefreshToken: refresh, UserInfo: info}, nil
}
