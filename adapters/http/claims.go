package authhttp

import (
	"context"

	oidckit "github.com/open-rails/openidkit/oidc"
)

type principalCtxKey struct{}

// ContextWithPrincipal stores v for PrincipalFromContext.
func ContextWithPrincipal(ctx context.Context, v any) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, v)
}

// PrincipalFromContext returns what the provider's validation hook produced.
func PrincipalFromContext(ctx context.Context) (any, bool) {
	v := ctx.Value(principalCtxKey{})
	return v, v != nil
}

// UserInfoFromContext returns the principal when it is an oidckit.UserInfo,
// which is the case for the default validation hook.
func UserInfoFromContext(ctx context.Context) (oidckit.UserInfo, bool) {
	v, _ := PrincipalFromContext(ctx)
	switch ui := v.(type) {
	case oidckit.UserInfo:
		return ui, true
	case *oidckit.UserInfo:
		if ui != nil {
			return *ui, true
		}
	}
	return oidckit.UserInfo{}, false
}
