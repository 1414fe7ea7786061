package repository

import (
	"context"

	"lm-identity/internal/refresh/domain"
)

// Repository defines persistence for refresh tokens.
type Repository interface {
	// Replace deletes any existing token for t.UserID and inserts t, in a
	// single transaction. The one-token-per-user invariant holds at all times.
	Replace(ctx context.Context, t *domain.Token) error
	// GetByToken returns the row for the token value, or nil if not found.
	GetByToken(ctx context.Context, token string) (*domain.Token, error)
	// DeleteByToken removes the row for the token value and reports whether a
	// row existed. Missing rows are not an error.
	DeleteByToken(ctx context.Context, token string) (bool, error)
}
