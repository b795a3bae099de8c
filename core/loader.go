package core

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigKey is the configuration section holding named providers.
const DefaultConfigKey = "openid"

// LoadProviders reads named providers from key (default "openid"):
//
//	openid:
//	  keycloak:
//	    issuer: https://kc.example/realms/app
//	    clientId: ${KC_CLIENT_ID}
//	    clientSecret: ${KC_CLIENT_SECRET}
//	    scopes: [openid, profile]
//
// String values are expanded with environment variables. A missing section
// yields an empty map.
func LoadProviders(v *viper.Viper, key string) (map[string]ProviderConfig, error) {
	if key == "" {
		key = DefaultConfigKey
	}
	out := map[string]ProviderConfig{}
	if v == nil || !v.IsSet(key) {
		return out, nil
	}

	var raw map[string]ProviderConfig
	if err := v.UnmarshalKey(key, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode %q: %v", ErrConfiguration, key, err)
	}
	for name, p := range raw {
		p.Issuer = expand(p.Issuer)
		p.ClientID = expand(p.ClientID)
		p.ClientSecret = expand(p.ClientSecret)
		scopes := make([]string, 0, len(p.Scopes))
		for _, s := range p.Scopes {
			if s = expand(s); s != "" {
				scopes = append(scopes, s)
			}
		}
		p.Scopes = scopes
		if p.Issuer == "" {
			return nil, fmt.Errorf("%w: provider %q has no issuer", ErrConfiguration, name)
		}
		out[name] = p
	}
	return out, nil
}

func expand(s string) string {
	return strings.TrimSpace(os.ExpandEnv(s))
}
