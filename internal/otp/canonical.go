package otp

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Payload carries the registration fields an OTP challenge binds to. The
// password never participates: it is masked before canonicalization so the
// binding hash can be recomputed at verify time without the secret.
type Payload struct {
	Email     string
	FirstName string
	LastName  string
}

// Canonical returns the deterministic serialization of the payload for the
// given functionality. Field order and shape are fixed; issuance and
// verification must produce byte-identical output for untampered input.
func (p Payload) Canonical(functionality string) string {
	return fmt.Sprintf("RegisterRequest(email=%s, firstName=%s, lastName=%s, password=****),%s",
		p.Email, p.FirstName, p.LastName, functionality)
}

// HashPayload returns the SHA-256 digest of a canonical payload, hex-encoded.
// This is the tamper-evidence binding between a challenge and its request.
func HashPayload(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
