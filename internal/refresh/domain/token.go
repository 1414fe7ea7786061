package domain

import "time"

// Token is an opaque refresh credential. Each user holds at most one row;
// issuing a new token for a user replaces the previous one.
type Token struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the token is no longer redeemable at now.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
