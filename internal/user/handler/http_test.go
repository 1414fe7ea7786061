package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	identitydomain "lm-identity/internal/identity/domain"
	"lm-identity/internal/server/middleware"
	"lm-identity/internal/user/domain"
	"lm-identity/internal/user/service"
)

type memRepo struct {
	users map[string]*domain.User
}

func (m *memRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return m.users[id], nil
}

func (m *memRepo) GetByIDAndOrganization(ctx context.Context, id, orgID string) (*domain.User, error) {
	u := m.users[id]
	if u == nil || u.OrganizationID != orgID {
		return nil, nil
	}
	return u, nil
}

func (m *memRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, ok := m.users[id]
	return ok, nil
}

func (m *memRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	u, _ := m.GetByEmail(ctx, email)
	return u != nil, nil
}

func (m *memRepo) Create(ctx context.Context, u *domain.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *memRepo) CompleteRegistration(ctx context.Context, id, firstName, lastName, passwordHash string) error {
	u := m.users[id]
	u.FirstName, u.LastName, u.PasswordHash, u.Registered = firstName, lastName, passwordHash, true
	return nil
}

func (m *memRepo) LinkGoogle(ctx context.Context, id, googleID, picture string) error {
	u := m.users[id]
	u.GoogleID, u.Picture, u.Registered = googleID, picture, true
	return nil
}

func (m *memRepo) UpdateRole(ctx context.Context, id, role string) error {
	m.users[id].Role = role
	return nil
}

type stubRoles struct{ existing map[string]bool }

func (s stubRoles) Exists(ctx context.Context, role, orgID string) (bool, error) {
	return s.existing[role], nil
}

type stubOrgs struct{ existing map[string]bool }

func (s stubOrgs) Exists(ctx context.Context, orgID string) (bool, error) {
	return s.existing[orgID], nil
}

func newHandler() (*UserHandler, *memRepo) {
	repo := &memRepo{users: map[string]*domain.User{}}
	svc := service.NewService(repo,
		stubRoles{existing: map[string]bool{"developer": true}},
		stubOrgs{existing: map[string]bool{"org-1": true}})
	return NewUserHandler(svc), repo
}

func seedUser(repo *memRepo, id, orgID string) *domain.User {
	u := &domain.User{ID: id, Email: id + "@x.com", Role: "developer", OrganizationID: orgID, Registered: true}
	repo.users[id] = u
	return u
}

// withCaller routes the request through chi so URL params resolve, with the
// caller identity already in context.
func withCaller(r *http.Request, orgID string) *http.Request {
	ctx := middleware.WithCaller(r.Context(), identitydomain.Caller{
		UserID:         "caller-1",
		OrganizationID: orgID,
		Role:           "admin",
	})
	return r.WithContext(ctx)
}

func serve(h http.HandlerFunc, method, pattern string, r *http.Request) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.MethodFunc(method, pattern, h)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	return rec
}

func TestGet_SameOrganization(t *testing.T) {
	h, repo := newHandler()
	seedUser(repo, "u-1", "org-1")

	req := withCaller(httptest.NewRequest(http.MethodGet, "/users/u-1", nil), "org-1")
	rec := serve(h.Get, http.MethodGet, "/users/{id}", req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "u-1@x.com") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "passwordHash") {
		t.Error("password hash must not be serialized")
	}
}

func TestGet_CrossOrganizationIsNotFound(t *testing.T) {
	h, repo := newHandler()
	seedUser(repo, "u-1", "org-2")

	req := withCaller(httptest.NewRequest(http.MethodGet, "/users/u-1", nil), "org-1")
	rec := serve(h.Get, http.MethodGet, "/users/{id}", req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGet_NoCaller(t *testing.T) {
	h, _ := newHandler()

	req := httptest.NewRequest(http.MethodGet, "/users/u-1", nil)
	rec := serve(h.Get, http.MethodGet, "/users/{id}", req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreate_InCallerOrganization(t *testing.T) {
	h, repo := newHandler()

	req := withCaller(httptest.NewRequest(http.MethodPost, "/users",
		strings.NewReader(`{"email":"New@X.com","role":"developer"}`)), "org-1")
	rec := serve(h.Create, http.MethodPost, "/users", req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"new@x.com"`) {
		t.Errorf("email should be lowercased: %s", rec.Body.String())
	}
	if len(repo.users) != 1 {
		t.Fatalf("users = %d, want 1", len(repo.users))
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	h, repo := newHandler()
	seedUser(repo, "u-1", "org-1")

	req := withCaller(httptest.NewRequest(http.MethodPost, "/users",
		strings.NewReader(`{"email":"u-1@x.com","role":"developer"}`)), "org-1")
	rec := serve(h.Create, http.MethodPost, "/users", req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCreate_UnknownRole(t *testing.T) {
	h, _ := newHandler()

	req := withCaller(httptest.NewRequest(http.MethodPost, "/users",
		strings.NewReader(`{"email":"new@x.com","role":"ghost"}`)), "org-1")
	rec := serve(h.Create, http.MethodPost, "/users", req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateInOrganization(t *testing.T) {
	h, _ := newHandler()

	req := httptest.NewRequest(http.MethodPost, "/users/organization",
		strings.NewReader(`{"email":"new@x.com","role":"developer","organizationId":"org-1"}`))
	rec := serve(h.CreateInOrganization, http.MethodPost, "/users/organization", req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCreateInOrganization_UnknownOrganization(t *testing.T) {
	h, _ := newHandler()

	req := httptest.NewRequest(http.MethodPost, "/users/organization",
		strings.NewReader(`{"email":"new@x.com","role":"developer","organizationId":"org-ghost"}`))
	rec := serve(h.CreateInOrganization, http.MethodPost, "/users/organization", req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAssignRole(t *testing.T) {
	h, repo := newHandler()
	seedUser(repo, "u-1", "org-1")

	req := withCaller(httptest.NewRequest(http.MethodPatch, "/users/u-1/role",
		strings.NewReader(`{"role":"developer"}`)), "org-1")
	rec := serve(h.AssignRole, http.MethodPatch, "/users/{id}/role", req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if repo.users["u-1"].Role != "developer" {
		t.Errorf("role = %s", repo.users["u-1"].Role)
	}
}

func TestValidate(t *testing.T) {
	h, repo := newHandler()
	seedUser(repo, "u-1", "org-1")

	rec := serve(h.Validate, http.MethodGet, "/users/validate/{id}",
		httptest.NewRequest(http.MethodGet, "/users/validate/u-1", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "true") {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(h.Validate, http.MethodGet, "/users/validate/{id}",
		httptest.NewRequest(http.MethodGet, "/users/validate/ghost", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "false") {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
