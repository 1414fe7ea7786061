package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lm-identity/internal/audit"
	"lm-identity/internal/identity/google"
	"lm-identity/internal/identity/service"
	"lm-identity/internal/otp"
	"lm-identity/internal/refresh"
	"lm-identity/internal/security"
	userdomain "lm-identity/internal/user/domain"
)

type fakeUsers struct {
	byEmail map[string]*userdomain.User
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	return f.byEmail[email], nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) CompleteRegistration(ctx context.Context, id, firstName, lastName, passwordHash string) error {
	return nil
}

func (f *fakeUsers) LinkGoogle(ctx context.Context, id, googleID, picture string) error {
	return nil
}

type fakeOtp struct{ err error }

func (f *fakeOtp) Verify(ctx context.Context, email, functionality string, payload otp.Payload, encryptedCode string) error {
	return f.err
}

type fakeRefresh struct {
	tokens map[string]string
	rotate bool
}

func (f *fakeRefresh) Issue(ctx context.Context, userID string) (string, error) {
	f.tokens["rt-issued"] = userID
	return "rt-issued", nil
}

func (f *fakeRefresh) Redeem(ctx context.Context, token string) (string, string, error) {
	userID, ok := f.tokens[token]
	if !ok {
		return "", "", refresh.ErrInvalidToken
	}
	if !f.rotate {
		return userID, token, nil
	}
	delete(f.tokens, token)
	next, _ := f.Issue(ctx, userID)
	return userID, next, nil
}

func (f *fakeRefresh) Revoke(ctx context.Context, token string) (bool, error) {
	_, ok := f.tokens[token]
	delete(f.tokens, token)
	return ok, nil
}

type fakePerms struct{}

func (fakePerms) PermissionsFor(ctx context.Context, role, orgID string) ([]string, error) {
	return []string{"issue.read"}, nil
}

type fakeGoogle struct{}

func (fakeGoogle) Verify(ctx context.Context, idToken string) (*google.TokenInfo, error) {
	return nil, google.ErrInvalidIDToken
}

type fixture struct {
	handler *AuthHandler
	users   *fakeUsers
	otp     *fakeOtp
	refresh *fakeRefresh
	hasher  *security.Hasher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("test token provider: %v", err)
	}
	f := &fixture{
		users:   &fakeUsers{byEmail: map[string]*userdomain.User{}},
		otp:     &fakeOtp{},
		refresh: &fakeRefresh{tokens: map[string]string{}},
		hasher:  security.NewHasher(4),
	}
	svc := service.NewAuthService(f.users, f.otp, f.hasher, tokens, f.refresh, fakePerms{}, fakeGoogle{}, audit.Nop{})
	f.handler = NewAuthHandler(svc, 7*24*time.Hour)
	return f
}

func (f *fixture) addUser(t *testing.T, email, password string) *userdomain.User {
	t.Helper()
	u := &userdomain.User{ID: "u-1", Email: email, Role: "developer", OrganizationID: "org-1", Registered: true}
	if password != "" {
		hash, err := f.hasher.Hash([]byte(password))
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		u.PasswordHash = hash
	}
	f.users.byEmail[email] = u
	return u
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == RefreshCookie {
			return c
		}
	}
	return nil
}

func TestLogin_SetsCookieAndReturnsToken(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "a@x.com", "correct-horse")

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@x.com","password":"correct-horse"}`))
	rec := httptest.NewRecorder()
	f.handler.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "accessToken") {
		t.Error("response should carry the access token")
	}

	c := refreshCookie(rec)
	if c == nil {
		t.Fatal("refresh cookie not set")
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode || c.Path != "/" {
		t.Errorf("cookie attributes = %+v", c)
	}
	if c.MaxAge != int((7 * 24 * time.Hour).Seconds()) {
		t.Errorf("cookie MaxAge = %d", c.MaxAge)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "a@x.com", "correct-horse")

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@x.com","password":"wrong"}`))
	rec := httptest.NewRecorder()
	f.handler.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLogin_MalformedBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	f.handler.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRegister_OtpErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid code", otp.ErrInvalidCode, http.StatusBadRequest},
		{"too many attempts", otp.ErrTooManyAttempts, http.StatusTooManyRequests},
		{"expired", otp.ErrExpired, http.StatusUnprocessableEntity},
		{"integrity", otp.ErrIntegrity, http.StatusConflict},
		{"no challenge", otp.ErrNoChallenge, http.StatusNotFound},
		{"unknown functionality", otp.ErrUnknownFunctionality, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addUser(t, "a@x.com", "")
			f.users.byEmail["a@x.com"].Registered = false
			f.otp.err = tt.err

			req := httptest.NewRequest(http.MethodPost, "/auth/register",
				strings.NewReader(`{"email":"a@x.com","firstName":"Ada","password":"pw","otp":"cipher"}`))
			rec := httptest.NewRecorder()
			f.handler.Register(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRegister_AlreadyRegistered(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "a@x.com", "pw")

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"a@x.com","password":"pw","otp":"cipher"}`))
	rec := httptest.NewRecorder()
	f.handler.Register(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRefresh_NoCookie(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	rec := httptest.NewRecorder()
	f.handler.Refresh(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRefresh_WithCookie(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "a@x.com", "pw")
	f.refresh.tokens["rt-live"] = "u-1"

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: "rt-live"})
	rec := httptest.NewRecorder()
	f.handler.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	// The token did not rotate, so re-setting the cookie would only slide its
	// lifetime past the stored expiry.
	if c := refreshCookie(rec); c != nil {
		t.Errorf("cookie re-set without rotation: %+v", c)
	}
}

func TestRefresh_RotationSetsNewCookie(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "a@x.com", "pw")
	f.refresh.rotate = true
	f.refresh.tokens["rt-live"] = "u-1"

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: "rt-live"})
	rec := httptest.NewRecorder()
	f.handler.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	c := refreshCookie(rec)
	if c == nil {
		t.Fatal("rotation should set the replacement cookie")
	}
	if c.Value != "rt-issued" {
		t.Errorf("cookie value = %q, want the rotated token", c.Value)
	}
	if c.MaxAge <= 0 {
		t.Errorf("cookie MaxAge = %d, want positive", c.MaxAge)
	}
}

func TestRefresh_UnknownToken(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: "rt-revoked"})
	rec := httptest.NewRecorder()
	f.handler.Refresh(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	f := newFixture(t)
	f.refresh.tokens["rt-live"] = "u-1"

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: "rt-live"})
	rec := httptest.NewRecorder()
	f.handler.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	c := refreshCookie(rec)
	if c == nil {
		t.Fatal("clearing cookie not set")
	}
	if c.MaxAge >= 0 && c.Value != "" {
		t.Errorf("cookie not cleared: %+v", c)
	}
	if _, ok := f.refresh.tokens["rt-live"]; ok {
		t.Error("refresh token should be revoked")
	}
}

func TestLogout_NoActiveSession(t *testing.T) {
	f := newFixture(t)

	// No cookie at all, and a cookie holding a token nobody issued. Neither
	// revokes anything, so both answer 404 with the cookie still cleared.
	for _, cookie := range []*http.Cookie{nil, {Name: RefreshCookie, Value: "rt-stale"}} {
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		f.handler.Logout(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		c := refreshCookie(rec)
		if c == nil || c.MaxAge >= 0 {
			t.Errorf("cookie not cleared: %+v", c)
		}
	}
}
