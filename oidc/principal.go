package oidckit

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Principal is the identity stored in a session after a successful
// authorization-code exchange or refresh. It is replaced, never mutated.
type Principal struct {
	IDToken      string   `json:"id_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	UserInfo     UserInfo `json:"user_info"`
}

// UserInfo holds the standard OpenID Connect claims. Only Subject is required;
// optional claims are nil when absent or not decodable.
type UserInfo struct {
	Subject             string   `json:"sub"`
	Name                *string  `json:"name,omitempty"`
	GivenName           *string  `json:"given_name,omitempty"`
	FamilyName          *string  `json:"family_name,omitempty"`
	MiddleName          *string  `json:"middle_name,omitempty"`
	Nickname            *string  `json:"nickname,omitempty"`
	PreferredUsername   *string  `json:"preferred_username,omitempty"`
	Profile             *string  `json:"profile,omitempty"`
	Picture             *string  `json:"picture,omitempty"`
	Website             *string  `json:"website,omitempty"`
	Gender              *string  `json:"gender,omitempty"`
	Birthdate           *string  `json:"birthdate,omitempty"`
	Zoneinfo            *string  `json:"zoneinfo,omitempty"`
	Locale              *string  `json:"locale,omitempty"`
	UpdatedAt           *int64   `json:"updated_at,omitempty"`
	Email               *string  `json:"email,omitempty"`
	EmailVerified       *bool    `json:"email_verified,omitempty"`
	Address             *Address `json:"address,omitempty"`
	PhoneNumber         *string  `json:"phone_number,omitempty"`
	PhoneNumberVerified *bool    `json:"phone_number_verified,omitempty"`
}

// Address is the OpenID Connect address claim. All fields are optional.
type Address struct {
	Formatted     *string `json:"formatted,omitempty"`
	StreetAddress *string `json:"street_address,omitempty"`
	Locality      *string `json:"locality,omitempty"`
	Region        *string `json:"region,omitempty"`
	PostalCode    *string `json:"postal_code,omitempty"`
	Country       *string `json:"country,omitempty"`
}

// ExtractUserInfo builds a UserInfo from a verified token payload.
// A missing or blank "sub" fails the extraction; every other claim is decoded
// on its own and left nil when it is absent or has the wrong shape.
func ExtractUserInfo(claims map[string]any) (UserInfo, error) {
	sub, ok := claims["sub"].(string)
	if !ok {
		return UserInfo{}, fmt.Errorf("%w: sub claim is missing from the payload", ErrMissingSubject)
	}
	if strings.TrimSpace(sub) == "" {
		return UserInfo{}, fmt.Errorf("%w: sub claim must not be blank", ErrMissingSubject)
	}

	return UserInfo{
		Subject:             sub,
		Name:                stringClaim(claims, "name"),
		GivenName:           stringClaim(claims, "given_name"),
		FamilyName:          stringClaim(claims, "family_name"),
		MiddleName:          stringClaim(claims, "middle_name"),
		Nickname:            stringClaim(claims, "nickname"),
		PreferredUsername:   stringClaim(claims, "preferred_username"),
		Profile:             stringClaim(claims, "profile"),
		Picture:             stringClaim(claims, "picture"),
		Website:             stringClaim(claims, "website"),
		Gender:              stringClaim(claims, "gender"),
		Birthdate:           stringClaim(claims, "birthdate"),
		Zoneinfo:            stringClaim(claims, "zoneinfo"),
		Locale:              stringClaim(claims, "locale"),
		UpdatedAt:           int64Claim(claims, "updated_at"),
		Email:               stringClaim(claims, "email"),
		EmailVerified:       boolClaim(claims, "email_verified"),
		Address:             addressClaim(claims, "address"),
		PhoneNumber:         stringClaim(claims, "phone_number"),
		PhoneNumberVerified: boolClaim(claims, "phone_number_verified"),
	}, nil
}

func stringClaim(claims map[string]any, name string) *string {
	s, ok := claims[name].(string)
	if !ok {
		return nil
	}
	return &s
}

func boolClaim(claims map[string]any, name string) *bool {
	b, ok := claims[name].(bool)
	if !ok {
		return nil
	}
	return &b
}

func int64Claim(claims map[string]any, name string) *int64 {
	var i int64
	switch v := claims[name].(type) {
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if math.IsNaN(v) || v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return nil
		}
		i = int64(v)
	case int64:
		i = v
	case int:
		i = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil
		}
		i = n
	default:
		return nil
	}
	return &i
}

func addressClaim(claims map[string]any, name string) *Address {
	m, ok := claims[name].(map[string]any)
	if !ok {
		return nil
	}
	return &Address{
		Formatted:     stringClaim(m, "formatted"),
		StreetAddress: stringClaim(m, "street_address"),
		Locality:      stringClaim(m, "locality"),
		Region:        stringClaim(m, "region"),
		PostalCode:    stringClaim(m, "postal_code"),
		Country:       stringClaim(m, "country"),
	}
}
