// Package handler exposes the user directory over HTTP. All routes require an
// authenticated caller; the middleware stores the caller identity in the
// request context.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lm-identity/internal/organization"
	"lm-identity/internal/roles"
	"lm-identity/internal/server/middleware"
	"lm-identity/internal/user/domain"
	"lm-identity/internal/user/service"
)

// UserHandler serves directory reads, user provisioning, and role assignment.
type UserHandler struct {
	svc *service.Service
}

// NewUserHandler returns a UserHandler backed by the given service.
func NewUserHandler(svc *service.Service) *UserHandler {
	return &UserHandler{svc: svc}
}

type createRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type createInOrganizationRequest struct {
	Email          string `json:"email"`
	Role           string `json:"role"`
	OrganizationID string `json:"organizationId"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

type userResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName,omitempty"`
	LastName       string    `json:"lastName,omitempty"`
	Picture        string    `json:"picture,omitempty"`
	Role           string    `json:"role"`
	OrganizationID string    `json:"organizationId"`
	Registered     bool      `json:"registered"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toResponse(u *domain.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Picture:        u.Picture,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
		Registered:     u.Registered,
		CreatedAt:      u.CreatedAt,
	}
}

// Get handles GET /users/{id}; reads are scoped to the caller's organization.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	u, err := h.svc.GetByID(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(u))
}

// Create handles POST /users: provision a user in the caller's organization.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	u, err := h.svc.Create(r.Context(), caller, req.Email, req.Role)
	if err != nil {
		writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(u))
}

// CreateInOrganization handles POST /users/organization: provision a user in
// an explicit organization, validated against the organization service.
func (h *UserHandler) CreateInOrganization(w http.ResponseWriter, r *http.Request) {
	var req createInOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	u, err := h.svc.CreateInOrganization(r.Context(), req.Email, req.Role, req.OrganizationID)
	if err != nil {
		writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(u))
}

// AssignRole handles PATCH /users/{id}/role.
func (h *UserHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.svc.AssignRole(r.Context(), caller, chi.URLParam(r, "id"), req.Role); err != nil {
		writeUserError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Validate handles GET /users/validate/{id}: an existence probe used by
// sibling services to validate user references.
func (h *UserHandler) Validate(w http.ResponseWriter, r *http.Request) {
	exists, err := h.svc.Exists(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func writeUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, service.ErrNotAuthorized):
		writeError(w, http.StatusUnauthorized, "caller is not allowed to manage users")
	case errors.Is(err, service.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email already in use")
	case errors.Is(err, service.ErrUnknownRole):
		writeError(w, http.StatusBadRequest, "role does not exist")
	case errors.Is(err, service.ErrUnknownOrganization):
		writeError(w, http.StatusBadRequest, "organization does not exist")
	case errors.Is(err, roles.ErrUnavailable), errors.Is(err, organization.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "downstream service unavailable")
	default:
		log.Printf("user handler: internal error: %v", err)
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
