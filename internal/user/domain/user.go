package domain

import (
	"errors"
	"regexp"
	"time"
)

// User is a directory entry. Accounts are pre-provisioned with an email (and
// usually a role and organization); Registered flips to true once the owner
// completes the OTP registration flow and sets a password, or signs in with
// Google for the first time.
type User struct {
	ID             string
	Email          string
	FirstName      string
	LastName       string
	GoogleID       string // empty until the account is linked to a Google identity
	Picture        string
	Role           string
	OrganizationID string
	PasswordHash   string // empty for Google-only accounts
	Registered     bool
	CreatedAt      time.Time
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Validate validates the user for persistence. Returns an error describing the
// first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if !emailPattern.MatchString(u.Email) {
		return errors.New("invalid email format")
	}
	return nil
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
