// Package middleware holds the HTTP middleware that derives per-request
// context: the authenticated caller from the Bearer access token, and the
// client IP for audit records.
package middleware

import (
	"net"
	"net/http"
	"strings"

	identitydomain "lm-identity/internal/identity/domain"
	"lm-identity/internal/security"
)

const bearerPrefix = "bearer "

// RequireAuth validates the Bearer access token and stores the resulting
// Caller in the request context. Requests without a valid token get 401;
// the handler chain never runs without a caller.
func RequireAuth(tokens *security.TokenProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				unauthorized(w)
				return
			}
			claims, err := tokens.Verify(token)
			if err != nil {
				unauthorized(w)
				return
			}
			id := claims.Identity()
			caller := identitydomain.Caller{
				UserID:         id.UserID,
				Email:          id.Email,
				OrganizationID: id.OrganizationID,
				Role:           id.Role,
				Permissions:    id.Permissions,
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// RecordClientIP stores the request's remote IP in the context so audit
// records can pick it up. Runs after chi's RealIP middleware.
func RecordClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
	})
}

// extractBearer returns the Bearer token from the Authorization header, or ""
// if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"missing or invalid authorization"}`))
}
