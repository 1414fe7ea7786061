package devotp

import (
	"encoding/json"
	"net/http"
)

// Handler serves GET /dev/otp?challengeId=... returning the plain code for a
// live challenge. Mounted only when dev OTP mode is enabled.
type Handler struct {
	store Store
}

// NewHandler returns a Handler over the given store.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Get returns the code for the challenge id, or 404 if the challenge is
// unknown or expired.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	challengeID := r.URL.Query().Get("challengeId")
	if challengeID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "challengeId is required"})
		return
	}
	code, ok := h.store.Get(r.Context(), challengeID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no code for challenge"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
