// Package handler exposes OTP challenge issuance over HTTP. The plaintext
// code is never part of a response; only the challenge id and the decryption
// passphrase travel back to the client.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"lm-identity/internal/audit"
	"lm-identity/internal/otp"
)

// OTPHandler serves challenge issuance.
type OTPHandler struct {
	engine   *otp.Engine
	auditLog audit.AuditLogger
}

// NewOTPHandler returns an OTPHandler backed by the given engine.
func NewOTPHandler(engine *otp.Engine, auditLog audit.AuditLogger) *OTPHandler {
	return &OTPHandler{engine: engine, auditLog: auditLog}
}

type issueRequest struct {
	Email         string `json:"email"`
	Functionality string `json:"functionality"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
}

type issueResponse struct {
	ChallengeID string `json:"challengeId"`
	Passphrase  string `json:"passphrase"`
}

// Issue handles POST /otp. On delivery failure the challenge is already
// committed and stays valid, so the response still carries the challenge id
// and passphrase alongside the 503.
func (h *OTPHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Email == "" || req.Functionality == "" {
		writeError(w, http.StatusBadRequest, "email and functionality are required")
		return
	}

	payload := otp.Payload{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	result, err := h.engine.Issue(r.Context(), req.Email, req.Functionality, payload)
	if result != nil {
		h.auditLog.LogEvent(r.Context(), "", "", "otp_issue", "otp",
			fmt.Sprintf(`{"functionality":%q,"delivered":%t}`, req.Functionality, err == nil))
	}
	switch {
	case errors.Is(err, otp.ErrDelivery):
		writeJSON(w, http.StatusServiceUnavailable, issueResponse{
			ChallengeID: result.ChallengeID,
			Passphrase:  result.Passphrase,
		})
		return
	case errors.Is(err, otp.ErrNotAuthorized):
		writeError(w, http.StatusUnauthorized, "account is not authorized")
		return
	case errors.Is(err, otp.ErrUnknownFunctionality):
		writeError(w, http.StatusNotFound, "unknown verification flow")
		return
	case err != nil:
		log.Printf("otp handler: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, issueResponse{
		ChallengeID: result.ChallengeID,
		Passphrase:  result.Passphrase,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
