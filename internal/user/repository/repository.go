package repository

import (
	"context"

	"lm-identity/internal/user/domain"
)

// Repository defines persistence for the user directory.
type Repository interface {
	// GetByID returns the user for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByIDAndOrganization returns the user only when it belongs to orgID, or nil.
	GetByIDAndOrganization(ctx context.Context, id, orgID string) (*domain.User, error)
	// GetByEmail returns the user for email, or nil if not found.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// ExistsByID reports whether a user with the id exists.
	ExistsByID(ctx context.Context, id string) (bool, error)
	// ExistsByEmail reports whether a user with the email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// Create persists a new user. The user must have ID set.
	Create(ctx context.Context, u *domain.User) error
	// CompleteRegistration sets name and password hash and flips registered to true.
	CompleteRegistration(ctx context.Context, id, firstName, lastName, passwordHash string) error
	// LinkGoogle stores the google id and picture and flips registered to true.
	LinkGoogle(ctx context.Context, id, googleID, picture string) error
	// UpdateRole sets the user's role.
	UpdateRole(ctx context.Context, id, role string) error
}
