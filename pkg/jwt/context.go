package jwt

import (
	"context"
	"log/slog"
)

type contextKey struct{ name string }

func (c contextKey) String() string { return c.name }

var claimsContextKey = &contextKey{name: "jwt_claims"}

// WithClaims stores verified claims in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext returns the claims set by Middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok && claims != nil
}

// LoggerExtractor adds the caller's user id to log records.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		claims, ok := ClaimsFromContext(ctx)
		if !ok || claims.Subject == "" {
			return slog.Attr{}, false
		}
		return slog.String("user_id", claims.Subject), true
	}
}
