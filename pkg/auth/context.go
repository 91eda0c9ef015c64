package auth

import (
	"context"

	"github.com/platinummonkey/warden/pkg/contextkeys"
)

// WithAuthContext attaches the authenticated caller to ctx
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, contextkeys.AuthKey, ac)
}

// FromContext returns the caller attached to ctx, or nil
func FromContext(ctx context.Context) *AuthContext {
	if ac, ok := ctx.Value(contextkeys.AuthKey).(*AuthContext); ok {
		return ac
	}
	return nil
}

// PrincipalFromContext returns the authenticated principal, or nil
func PrincipalFromContext(ctx context.Context) *Principal {
	if ac := FromContext(ctx); ac != nil {
		return ac.Principal
	}
	return nil
}
