package oidckit

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractUserInfo_SubjectRequired(t *testing.T) {
	_, err := ExtractUserInfo(map[string]any{"email": "a@b.c"})
	require.ErrorIs(t, err, ErrMissingSubject)

	_, err = ExtractUserInfo(map[string]any{"sub": "   "})
	require.ErrorIs(t, err, ErrMissingSubject)

	_, err = ExtractUserInfo(map[string]any{"sub": 42.0})
	require.ErrorIs(t, err, ErrMissingSubject)
}

func TestExtractUserInfo_MalformedOptionalClaimsAreDropped(t *testing.T) {
	info, err := ExtractUserInfo(map[string]any{
		"sub":            "u1",
		"email":          "a@b.c",
		"address":        "Main street 1",
		"updated_at":     "yesterday",
		"email_verified": "yes",
		"name":           []any{"x"},
	})
	require.NoError(t, err)
	require.Equal(t, "u1", info.Subject)
	require.Equal(t, "a@b.c", *info.Email)
	require.Nil(t, info.Address)
	require.Nil(t, info.UpdatedAt)
	require.Nil(t, info.EmailVerified)
	require.Nil(t, info.Name)
}

func TestExtractUserInfo_DecodesFromJSONPayload(t *testing.T) {
	payload := `{
		"sub": "248289761001",
		"name": "Jane Doe",
		"given_name": "Jane",
		"preferred_username": "j.doe",
		"email_verified": true,
		"updated_at": 1311280970,
		"phone_number_verified": false,
		"address": {"locality": "Springfield", "country": "US", "region": 7}
	}`
	var claims map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &claims))

	info, err := ExtractUserInfo(claims)
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", *info.Name)
	require.Equal(t, "j.doe", *info.PreferredUsername)
	require.True(t, *info.EmailVerified)
	require.False(t, *info.PhoneNumberVerified)
	require.EqualValues(t, 1311280970, *info.UpdatedAt)
	require.Nil(t, info.Email)
	require.NotNil(t, info.Address)
	require.Equal(t, "Springfield", *info.Address.Locality)
	require.Nil(t, info.Address.Region)
}

func TestExtractUserInfo_UpdatedAtNumberForms(t *testing.T) {
	for _, v := range []any{float64(10), int64(10), 10, json.Number("10")} {
		info, err := ExtractUserInfo(map[string]any{"sub": "u", "updated_at": v})
		require.NoError(t, err)
		require.NotNil(t, info.UpdatedAt, "%T", v)
		require.EqualValues(t, 10, *info.UpdatedAt)
	}
	info, err := ExtractUserInfo(map[string]any{"sub": "u", "updated_at": 10.5})
	require.NoError(t, err)
	require.Nil(t, info.UpdatedAt)
}

func TestExtractUserInfo_UpdatedAtOutOfRange(t *testing.T) {
	for _, v := range []float64{1e300, -1e300, math.Inf(1), math.Exp2(63)} {
		info, err := ExtractUserInfo(map[string]any{"sub": "u", "updated_at": v})
		require.NoError(t, err)
		require.Nil(t, info.UpdatedAt, "%v", v)
	}
	info, err := ExtractUserInfo(map[string]any{"sub": "u", "updated_at": -math.Exp2(63)})
	require.NoError(t, err)
	require.NotNil(t, info.UpdatedAt)
	require.Equal(t, int64(math.MinInt64), *info.UpdatedAt)
}

func TestPrincipal_JSONRoundTripKeepsOptionalAbsence(t *testing.T) {
	p := Principal{IDToken: "tok", UserInfo: UserInfo{Subject: "u"}}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	require.JSONEq(t, `{"id_token":"tok","user_info":{"sub":"u"}}`, string(b))
}
