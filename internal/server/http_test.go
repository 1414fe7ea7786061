package server

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"lm-identity/internal/audit"
	"lm-identity/internal/config"
	"lm-identity/internal/devotp"
	healthhandler "lm-identity/internal/health/handler"
	identityhandler "lm-identity/internal/identity/handler"
	otphandler "lm-identity/internal/otp/handler"
	"lm-identity/internal/security"
	userhandler "lm-identity/internal/user/handler"
)

func newTestRouter(t *testing.T, devHandler *devotp.Handler) http.Handler {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("test token provider: %v", err)
	}
	// No backing database; /healthz degrades instead of succeeding.
	conn, err := sql.Open("pgx", "postgres://localhost:1/none")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	cfg := &config.Config{CORSOrigins: "https://app.example.com"}
	return NewRouter(cfg, tokens, Handlers{
		Auth:   identityhandler.NewAuthHandler(nil, time.Hour),
		OTP:    otphandler.NewOTPHandler(nil, audit.Nop{}),
		Users:  userhandler.NewUserHandler(nil),
		Health: healthhandler.NewHealthHandler(conn),
		DevOTP: devHandler,
	})
}

func TestRouter_HealthzWired(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	// No database behind the probe, so the route answers degraded.
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "degraded") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRouter_AuthRoutesArePublic(t *testing.T) {
	router := newTestRouter(t, nil)

	// A malformed body is rejected by the handler itself, which proves the
	// route is reachable without a bearer token.
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRouter_OTPRouteIsPublic(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/otp", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRouter_UserRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/users/u-1", "/users/validate/u-1"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s = %d, want 401", path, rec.Code)
		}
	}
}

func TestRouter_DevOTPOnlyWhenEnabled(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/otp?challengeId=x", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when dev OTP mode is off", rec.Code)
	}

	// With the handler mounted the route answers itself: an unknown challenge
	// is still 404, but with the handler's JSON body instead of chi's default.
	router = newTestRouter(t, devotp.NewHandler(devotp.NewMemoryStore()))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/otp?challengeId=x", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "no code for challenge") {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
