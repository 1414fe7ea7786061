// Package handler exposes the auth flows over HTTP. Sentinel errors from the
// service layers are mapped to stable status codes here; anything unexpected
// is reported as a generic internal failure.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"lm-identity/internal/identity/service"
	"lm-identity/internal/otp"
	"lm-identity/internal/refresh"
)

// RefreshCookie is the cookie carrying the opaque refresh token.
const RefreshCookie = "refreshToken"

// AuthHandler serves register, login, google login, refresh, and logout.
type AuthHandler struct {
	svc        *service.AuthService
	refreshTTL time.Duration
}

// NewAuthHandler returns an AuthHandler. refreshTTL bounds the cookie lifetime.
func NewAuthHandler(svc *service.AuthService, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{svc: svc, refreshTTL: refreshTTL}
}

type registerRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
	Otp       string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type googleLoginRequest struct {
	IDToken string `json:"idToken"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	UserID      string    `json:"userId"`
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	err := h.svc.Register(r.Context(), service.RegisterRequest{
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Password:      req.Password,
		EncryptedCode: req.Otp,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "registration completed"})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	h.writeAuthResult(w, result)
}

// GoogleLogin handles POST /auth/google.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	result, err := h.svc.GoogleLogin(r.Context(), req.IDToken)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	h.writeAuthResult(w, result)
}

// Refresh handles POST /auth/refresh. The refresh token rides only in the cookie.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}
	result, err := h.svc.Refresh(r.Context(), cookie.Value)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	// Re-setting the cookie would slide its lifetime past the server-side
	// expiry, so it is only touched when the token actually rotated.
	if result.RefreshToken != cookie.Value {
		h.setRefreshCookie(w, result.RefreshToken)
	}
	writeTokenResponse(w, result)
}

// Logout handles POST /auth/logout. The cookie is cleared either way; the
// status reports whether a live token was revoked.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := ""
	if cookie, err := r.Cookie(RefreshCookie); err == nil {
		token = cookie.Value
	}
	revoked, err := h.svc.Logout(r.Context(), token)
	clearRefreshCookie(w)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	if !revoked {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeAuthResult(w http.ResponseWriter, result *service.AuthResult) {
	h.setRefreshCookie(w, result.RefreshToken)
	writeTokenResponse(w, result)
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func writeTokenResponse(w http.ResponseWriter, result *service.AuthResult) {
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: result.AccessToken,
		ExpiresAt:   result.ExpiresAt,
		UserID:      result.UserID,
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// writeAuthError maps sentinel errors from the auth flows to status codes.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotAuthorized):
		writeError(w, http.StatusUnauthorized, "account is not authorized")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, service.ErrNoPassword):
		writeError(w, http.StatusUnauthorized, "account has no password; use google login or complete registration")
	case errors.Is(err, service.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, "account is already registered")
	case errors.Is(err, service.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "downstream service unavailable")
	case errors.Is(err, refresh.ErrInvalidToken), errors.Is(err, refresh.ErrExpiredToken):
		writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
	case errors.Is(err, otp.ErrNotAuthorized):
		writeError(w, http.StatusUnauthorized, "account is not authorized")
	case errors.Is(err, otp.ErrUnknownFunctionality):
		writeError(w, http.StatusNotFound, "unknown verification flow")
	case errors.Is(err, otp.ErrNoChallenge):
		writeError(w, http.StatusNotFound, "no verification code available")
	case errors.Is(err, otp.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "too many attempts; request a new code")
	case errors.Is(err, otp.ErrExpired):
		writeError(w, http.StatusUnprocessableEntity, "verification code expired; request a new one")
	case errors.Is(err, otp.ErrIntegrity):
		writeError(w, http.StatusConflict, "request data integrity violation")
	case errors.Is(err, otp.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, "invalid verification code")
	default:
		log.Printf("auth handler: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
