package repository

import (
	"context"

	"lm-identity/internal/otp/domain"
)

// Repository defines persistence for OTP challenges and functionality policies.
// Challenges are append-only: terminal outcomes flip status/active but never delete.
type Repository interface {
	// FunctionalityByName returns the policy for name, or nil if not found.
	FunctionalityByName(ctx context.Context, name string) (*domain.Functionality, error)
	// CreateFunctionality persists a new policy. Used by seeding and admin flows.
	CreateFunctionality(ctx context.Context, f *domain.Functionality) error

	// ReplaceActive deactivates every active challenge for c.Email and inserts c,
	// in a single transaction. A concurrent reader never observes two active
	// challenges for the same email.
	ReplaceActive(ctx context.Context, c *domain.Challenge) error
	// LatestActiveByHash returns the most recently created active challenge whose
	// payload hash equals hash, or nil if none.
	LatestActiveByHash(ctx context.Context, hash string) (*domain.Challenge, error)
	// IncrementAttempt atomically bumps the attempt counter for the challenge and
	// returns the new count. Two concurrent verify calls see distinct counts.
	IncrementAttempt(ctx context.Context, id string) (int, error)
	// Finish marks the challenge with a terminal status and sets active=false.
	Finish(ctx context.Context, id string, status domain.Status) error
}
