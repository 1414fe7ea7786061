// Package otp issues and verifies one-time-passcode challenges bound to a
// canonical request payload. A challenge is verifiable only while it is the
// single active challenge for its email, within its policy's attempt and TTL
// budget, and only against the exact payload it was issued for.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"

	"lm-identity/internal/devotp"
	"lm-identity/internal/otp/domain"
	"lm-identity/internal/otp/repository"
	"lm-identity/internal/security"
)

// Sentinel errors for the OTP engine; the HTTP handler maps them to status codes.
var (
	ErrNotAuthorized        = errors.New("user is not provisioned for OTP issuance")
	ErrUnknownFunctionality = errors.New("unknown OTP functionality")
	ErrNoChallenge          = errors.New("no OTP challenge available")
	ErrTooManyAttempts      = errors.New("OTP attempt limit exceeded")
	ErrExpired              = errors.New("OTP expired")
	ErrIntegrity            = errors.New("OTP payload integrity violation")
	ErrInvalidCode          = errors.New("OTP invalid")
	ErrDelivery             = errors.New("OTP email delivery failed")
)

const codeDigits = 6

// Mailer delivers the plaintext code out-of-band. The code never travels to
// the client through an API response.
type Mailer interface {
	SendOTP(ctx context.Context, to, code string) error
}

// UserDirectory is the minimal user lookup the engine needs: OTP challenges
// are only issued for pre-provisioned accounts.
type UserDirectory interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// IssueResult is returned to the caller on successful issuance. The passphrase
// is surfaced exactly once and must not be logged.
type IssueResult struct {
	ChallengeID string
	Passphrase  string
}

// Engine generates, binds, and validates OTP challenges.
type Engine struct {
	repo   repository.Repository
	users  UserDirectory
	mailer Mailer
	dev    devotp.Store // nil outside dev OTP mode
	nowF   func() time.Time
}

// NewEngine returns an Engine. dev may be nil; when set, issued codes are also
// recorded for dev-mode retrieval.
func NewEngine(repo repository.Repository, users UserDirectory, mailer Mailer, dev devotp.Store) *Engine {
	return &Engine{
		repo:   repo,
		users:  users,
		mailer: mailer,
		dev:    dev,
		nowF:   func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a new challenge for the email and payload under the named
// functionality policy, deactivating any prior active challenge for the email,
// and delivers the code by email.
//
// On ErrDelivery the challenge has already been committed and stays valid (the
// anti-replay deactivation is not rolled back); the result is returned
// alongside the error so the caller can still hand out the passphrase.
func (e *Engine) Issue(ctx context.Context, email, functionality string, payload Payload) (*IssueResult, error) {
	exists, err := e.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotAuthorized
	}

	policy, err := e.repo.FunctionalityByName(ctx, functionality)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrUnknownFunctionality
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	passphrase, err := security.GeneratePassphrase()
	if err != nil {
		return nil, err
	}

	canonical := payload.Canonical(policy.Name)
	challenge := &domain.Challenge{
		ID:              uuid.New().String(),
		Code:            code,
		Passphrase:      passphrase,
		Payload:         canonical,
		PayloadHash:     HashPayload(canonical),
		Attempt:         0,
		Active:          true,
		Status:          domain.StatusPending,
		Email:           email,
		FunctionalityID: policy.ID,
		CreatedAt:       e.nowF(),
	}
	if err := e.repo.ReplaceActive(ctx, challenge); err != nil {
		return nil, err
	}

	if e.dev != nil {
		e.dev.Put(ctx, challenge.ID, code, challenge.ExpiresAt(policy.TimeToLive))
	}

	result := &IssueResult{ChallengeID: challenge.ID, Passphrase: passphrase}
	if err := e.mailer.SendOTP(ctx, email, code); err != nil {
		return result, ErrDelivery
	}
	return result, nil
}

// Verify checks the encrypted code submission against the active challenge
// bound to the payload. The attempt is counted before any policy check, so a
// failed or interrupted verify still consumes budget.
func (e *Engine) Verify(ctx context.Context, email, functionality string, payload Payload, encryptedCode string) error {
	policy, err := e.repo.FunctionalityByName(ctx, functionality)
	if err != nil {
		return err
	}
	if policy == nil {
		return ErrUnknownFunctionality
	}

	hash := HashPayload(payload.Canonical(policy.Name))
	challenge, err := e.repo.LatestActiveByHash(ctx, hash)
	if err != nil {
		return err
	}
	if challenge == nil {
		return ErrNoChallenge
	}

	attempt, err := e.repo.IncrementAttempt(ctx, challenge.ID)
	if err != nil {
		return err
	}
	if attempt > policy.AttemptLimit {
		if err := e.repo.Finish(ctx, challenge.ID, domain.StatusExhausted); err != nil {
			return err
		}
		return ErrTooManyAttempts
	}
	if e.nowF().After(challenge.ExpiresAt(policy.TimeToLive)) {
		if err := e.repo.Finish(ctx, challenge.ID, domain.StatusExpired); err != nil {
			return err
		}
		return ErrExpired
	}
	// Re-check against the freshly recomputed hash; the lookup hit could be a
	// stale row if the payload was swapped between lookup and use.
	if challenge.PayloadHash != hash {
		if err := e.repo.Finish(ctx, challenge.ID, domain.StatusTampered); err != nil {
			return err
		}
		return ErrIntegrity
	}

	key := security.DeriveKey(challenge.Passphrase)
	submitted, err := security.Decrypt(encryptedCode, key)
	if err != nil {
		// Malformed ciphertext is indistinguishable from a wrong code to the
		// client; the challenge stays pending for further attempts.
		return ErrInvalidCode
	}
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(challenge.Code)) != 1 {
		return ErrInvalidCode
	}

	return e.repo.Finish(ctx, challenge.ID, domain.StatusConsumed)
}

// generateCode returns a 6-digit numeric code drawn uniformly from crypto/rand.
func generateCode() (string, error) {
	out := make([]byte, codeDigits)
	buf := make([]byte, 1)
	for i := 0; i < codeDigits; i++ {
		for {
			if _, err := rand.Read(buf); err != nil {
				return "", err
			}
			// Reject the top of the byte range so each digit stays uniform.
			if buf[0] < 250 {
				out[i] = '0' + buf[0]%10
				break
			}
		}
	}
	return string(out), nil
}
