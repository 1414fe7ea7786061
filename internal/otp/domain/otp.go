package domain

import "time"

// Status is the lifecycle state of an OTP challenge. Pending is the only
// live state; every other status is terminal and implies Active=false.
// Rows are never deleted, so terminal statuses double as the audit trail.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConsumed  Status = "consumed"
	StatusExhausted Status = "exhausted"
	StatusExpired   Status = "expired"
	StatusTampered  Status = "tampered"
)

// Challenge is a one-time code bound to a specific request payload
// (stored in the otp table).
type Challenge struct {
	ID              string
	Code            string // plaintext digits; delivered out-of-band by email, never sent to the client in a response
	Passphrase      string // random secret returned once to the caller at issuance
	Payload         string // canonical payload the challenge protects
	PayloadHash     string
	Attempt         int
	Active          bool
	Status          Status
	Email           string
	FunctionalityID string
	CreatedAt       time.Time
}

// ExpiresAt returns the instant the challenge stops being verifiable.
func (c *Challenge) ExpiresAt(ttlSeconds int) time.Time {
	return c.CreatedAt.Add(time.Duration(ttlSeconds) * time.Second)
}

// Functionality is the immutable per-flow OTP policy
// (stored in the otp_functionality table, looked up by unique name).
type Functionality struct {
	ID           string
	Name         string
	TimeToLive   int // seconds
	AttemptLimit int
}
