// Package refresh manages opaque refresh tokens: long-lived, single-use-per-user
// credentials redeemed for new access tokens.
package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"lm-identity/internal/refresh/domain"
	"lm-identity/internal/refresh/repository"
)

var (
	// ErrInvalidToken means the presented refresh token does not exist,
	// typically because it was revoked or already replaced.
	ErrInvalidToken = errors.New("invalid refresh token")
	// ErrExpiredToken means the token existed but its lifetime had lapsed.
	// The row is deleted as a side effect; the caller must log in again.
	ErrExpiredToken = errors.New("expired refresh token")
)

// Manager issues and redeems refresh tokens. Token values are opaque UUIDs;
// their only meaning lives in the refresh_token table.
type Manager struct {
	repo        repository.Repository
	ttl         time.Duration
	rotateOnUse bool
	nowF        func() time.Time
}

// NewManager returns a Manager. When rotateOnUse is set, every successful
// redemption replaces the token, so a stolen token dies at the owner's next use.
func NewManager(repo repository.Repository, ttl time.Duration, rotateOnUse bool) *Manager {
	return &Manager{
		repo:        repo,
		ttl:         ttl,
		rotateOnUse: rotateOnUse,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a fresh token for the user, replacing any existing one.
func (m *Manager) Issue(ctx context.Context, userID string) (string, error) {
	t := &domain.Token{
		Token:     uuid.New().String(),
		UserID:    userID,
		ExpiresAt: m.nowF().Add(m.ttl),
	}
	if err := m.repo.Replace(ctx, t); err != nil {
		return "", err
	}
	return t.Token, nil
}

// Redeem validates the token and returns the owning user id plus the token the
// client should hold afterwards: the same value, or a replacement when
// rotate-on-use is enabled. Expired tokens are deleted before returning
// ErrExpiredToken.
func (m *Manager) Redeem(ctx context.Context, token string) (userID, nextToken string, err error) {
	t, err := m.repo.GetByToken(ctx, token)
	if err != nil {
		return "", "", err
	}
	if t == nil {
		return "", "", ErrInvalidToken
	}
	if t.Expired(m.nowF()) {
		if _, err := m.repo.DeleteByToken(ctx, t.Token); err != nil {
			return "", "", err
		}
		return "", "", ErrExpiredToken
	}

	if !m.rotateOnUse {
		return t.UserID, t.Token, nil
	}
	next, err := m.Issue(ctx, t.UserID)
	if err != nil {
		return "", "", err
	}
	return t.UserID, next, nil
}

// Revoke removes the token and reports whether anything was deleted.
// Redeeming the token afterwards fails with ErrInvalidToken. Revoking an
// unknown token returns false without an error.
func (m *Manager) Revoke(ctx context.Context, token string) (bool, error) {
	return m.repo.DeleteByToken(ctx, token)
}
