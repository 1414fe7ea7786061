package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	identitydomain "lm-identity/internal/identity/domain"
	"lm-identity/internal/user/domain"
	"lm-identity/internal/user/repository"
)

// Sentinel errors for the user service; handler maps them to status codes.
var (
	ErrNotFound            = errors.New("user not found")
	ErrDuplicateEmail      = errors.New("email already in use")
	ErrUnknownRole         = errors.New("role does not exist")
	ErrUnknownOrganization = errors.New("organization does not exist")
	ErrNotAuthorized       = errors.New("caller is not allowed to manage users")
)

// RoleChecker verifies that a role exists for an organization.
type RoleChecker interface {
	Exists(ctx context.Context, role, orgID string) (bool, error)
}

// OrganizationChecker verifies that an organization exists.
type OrganizationChecker interface {
	Exists(ctx context.Context, orgID string) (bool, error)
}

// Service implements directory operations over pre-provisioned users. Reads
// and role assignment are scoped to the caller's organization; only the
// cross-organization create escapes that scope, and it validates the target
// organization against the organization service first.
type Service struct {
	repo  repository.Repository
	roles RoleChecker
	orgs  OrganizationChecker
}

// NewService returns a Service with the given dependencies.
func NewService(repo repository.Repository, roles RoleChecker, orgs OrganizationChecker) *Service {
	return &Service{repo: repo, roles: roles, orgs: orgs}
}

// Exists reports whether a user with the id is provisioned. Used by sibling
// services to validate user references.
func (s *Service) Exists(ctx context.Context, userID string) (bool, error) {
	return s.repo.ExistsByID(ctx, userID)
}

// GetByID returns the user, scoped to the caller's organization.
func (s *Service) GetByID(ctx context.Context, caller identitydomain.Caller, id string) (*domain.User, error) {
	u, err := s.repo.GetByIDAndOrganization(ctx, id, caller.OrganizationID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// Create provisions a user in the caller's own organization. The account is
// created unregistered; the owner activates it later through the OTP flow.
func (s *Service) Create(ctx context.Context, caller identitydomain.Caller, email, role string) (*domain.User, error) {
	if caller.OrganizationID == "" {
		return nil, ErrNotAuthorized
	}
	return s.create(ctx, email, role, caller.OrganizationID)
}

// CreateInOrganization provisions a user in an arbitrary organization. The
// target organization is validated against the organization service.
func (s *Service) CreateInOrganization(ctx context.Context, email, role, orgID string) (*domain.User, error) {
	exists, err := s.orgs.Exists(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUnknownOrganization
	}
	return s.create(ctx, email, role, orgID)
}

// AssignRole sets the role on a user in the caller's organization. The role
// must exist there per the role service.
func (s *Service) AssignRole(ctx context.Context, caller identitydomain.Caller, userID, role string) error {
	role = strings.TrimSpace(role)
	ok, err := s.roles.Exists(ctx, role, caller.OrganizationID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownRole
	}

	u, err := s.repo.GetByIDAndOrganization(ctx, userID, caller.OrganizationID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrNotFound
	}
	return s.repo.UpdateRole(ctx, u.ID, role)
}

func (s *Service) create(ctx context.Context, email, role, orgID string) (*domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	taken, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateEmail
	}

	u := &domain.User{
		ID:             uuid.New().String(),
		Email:          email,
		Role:           role,
		OrganizationID: orgID,
		Registered:     false,
		CreatedAt:      time.Now().UTC(),
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
