package middleware

import (
	"context"

	identitydomain "lm-identity/internal/identity/domain"
)

type contextKey struct{ name string }

var (
	callerKey   = contextKey{"caller"}
	clientIPKey = contextKey{"client_ip"}
)

// WithCaller returns a context carrying the authenticated caller.
// Handlers and services read it via CallerFrom.
func WithCaller(ctx context.Context, c identitydomain.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFrom returns the caller from ctx and true if set; otherwise a zero
// Caller and false.
func CallerFrom(ctx context.Context) (identitydomain.Caller, bool) {
	c, ok := ctx.Value(callerKey).(identitydomain.Caller)
	return c, ok
}

// WithClientIP returns a context carrying the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the client IP from ctx, or "unknown" if not set.
func ClientIP(ctx context.Context) string {
	ip, ok := ctx.Value(clientIPKey).(string)
	if !ok || ip == "" {
		return "unknown"
	}
	return ip
}
