package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	oidctest "github.com/open-rails/openidkit/testing"
)

func newIssuerRegistry(t *testing.T, issuer *oidctest.TestIssuer) *Registry {
	t.Helper()
	reg, err := NewRegistry(context.Background(), Config{Logger: quietLogger(), HTTPClient: issuer.Client()},
		OAuth(issuer.URL(), OAuthConfig{Name: "kc", ClientID: issuer.ClientID(), ClientSecret: issuer.ClientSecret()}),
	)
	require.NoError(t, err)
	t.Cleanup(reg.Close)
	return reg
}

func TestRefresh_CarriesOverRefreshToken(t *testing.T) {
	issuer := oidctest.NewTestIssuer()
	defer issuer.Close()
	reg := newIssuerRegistry(t, issuer)

	rt := issuer.IssueRefreshToken("u1")
	p, err := reg.Refresh(context.Background(), issuer.URL(), rt)
	require.NoError(t, err)
	require.Equal(t, rt, p.RefreshToken)
	require.Equal(t, "u1", p.UserInfo.Subject)
	require.NotEmpty(t, p.IDToken)
	require.Equal(t, oidctest.DefaultEmail, *p.UserInfo.Email)
}

func TestRefresh_UsesRotatedToken(t *testing.T) {
	issuer := oidctest.NewTestIssuer()
	defer issuer.Close()
	issuer.SetRotateRefreshTokens(true)
	reg := newIssuerRegistry(t, issuer)

	rt := issuer.IssueRefreshToken("u1")
	p, err := reg.Refresh(context.Background(), issuer.URL(), rt)
	require.NoError(t, err)
	require.NotEmpty(t, p.RefreshToken)
	require.NotEqual(t, rt, p.RefreshToken)
}

func TestRefresh_MissingIDTokenFails(t *testing.T) {
	issuer := oidctest.NewTestIssuer()
	defer issuer.Close()
	issuer.SetOmitIDToken(true)
	reg := newIssuerRegistry(t, issuer)

	_, err := reg.Refresh(context.Background(), issuer.URL(), issuer.IssueRefreshToken("u1"))
	require.ErrorIs(t, err, ErrTokenRefresh)
	require.ErrorIs(t, err, ErrMissingIDToken)
	require.Contains(t, err.Error(), "id_token missing from refresh response")
}

func TestRefresh_BlankTokenMakesNoRequest(t *testing.T) {
	issuer := oidctest.NewTestIssuer()
	defer issuer.Close()
	reg := newIssuerRegistry(t, issuer)

	_, err := reg.Refresh(context.Background(), issuer.URL(), " ")
	require.ErrorIs(t, err, ErrTokenRefresh)
	require.Zero(t, issuer.TokenHits())
}

func TestRefresh_UnknownRefreshToken(t *testing.T) {
	issuer := oidctest.NewTestIssuer()
	defer issuer.Close()
	reg := newIssuerRegistry(t, issuer)

	_, err := reg.Refresh(context.Background(), issuer.URL(), "never-issued")
	require.ErrorIs(t, err, ErrTokenRefresh)
}

func TestRefresh_RequiresOAuthProvider(t *testing.T) {
	issuer := oidctest.NewTestIssuer()
	defer issuer.Close()
	reg, err := NewRegistry(context.Background(), Config{Logger: quietLogger(), HTTPClient: issuer.Client()},
		JWK(issuer.URL(), JWKConfig{}),
	)
	require.NoError(t, err)
	defer reg.Close()

	_, err = reg.Refresh(context.Background(), issuer.URL(), "rt")
	require.ErrorIs(t, err, ErrConfiguration)
}
