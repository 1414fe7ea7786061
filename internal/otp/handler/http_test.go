package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lm-identity/internal/audit"
	"lm-identity/internal/otp"
	"lm-identity/internal/otp/domain"
)

type memRepo struct {
	functionality *domain.Functionality
	challenges    []*domain.Challenge
}

func (m *memRepo) FunctionalityByName(ctx context.Context, name string) (*domain.Functionality, error) {
	if m.functionality != nil && m.functionality.Name == name {
		return m.functionality, nil
	}
	return nil, nil
}

func (m *memRepo) CreateFunctionality(ctx context.Context, f *domain.Functionality) error {
	m.functionality = f
	return nil
}

func (m *memRepo) ReplaceActive(ctx context.Context, c *domain.Challenge) error {
	for _, existing := range m.challenges {
		if existing.Email == c.Email {
			existing.Active = false
		}
	}
	m.challenges = append(m.challenges, c)
	return nil
}

func (m *memRepo) LatestActiveByHash(ctx context.Context, hash string) (*domain.Challenge, error) {
	for i := len(m.challenges) - 1; i >= 0; i-- {
		if m.challenges[i].Active && m.challenges[i].PayloadHash == hash {
			return m.challenges[i], nil
		}
	}
	return nil, nil
}

func (m *memRepo) IncrementAttempt(ctx context.Context, id string) (int, error) {
	for _, c := range m.challenges {
		if c.ID == id {
			c.Attempt++
			return c.Attempt, nil
		}
	}
	return 0, errors.New("challenge not found")
}

func (m *memRepo) Finish(ctx context.Context, id string, status domain.Status) error {
	for _, c := range m.challenges {
		if c.ID == id {
			c.Status = status
			c.Active = false
		}
	}
	return nil
}

type stubUsers struct{ known map[string]bool }

func (s stubUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.known[email], nil
}

type stubMailer struct{ err error }

func (s stubMailer) SendOTP(ctx context.Context, to, code string) error { return s.err }

func newHandler(mailerErr error) (*OTPHandler, *memRepo) {
	repo := &memRepo{functionality: &domain.Functionality{
		ID:           "f-1",
		Name:         "REGISTER",
		TimeToLive:   120,
		AttemptLimit: 3,
	}}
	engine := otp.NewEngine(repo, stubUsers{known: map[string]bool{"a@x.com": true}}, stubMailer{err: mailerErr}, nil)
	return NewOTPHandler(engine, audit.Nop{}), repo
}

func issueBody() *strings.Reader {
	return strings.NewReader(`{"email":"a@x.com","functionality":"REGISTER","firstName":"Ada","lastName":"Lovelace"}`)
}

func TestIssue_ReturnsChallengeAndPassphrase(t *testing.T) {
	h, repo := newHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/otp", issueBody())
	rec := httptest.NewRecorder()
	h.Issue(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "challengeId") || !strings.Contains(body, "passphrase") {
		t.Errorf("body = %s", body)
	}
	if strings.Contains(body, repo.challenges[0].Code) {
		t.Error("plaintext code must not appear in the response")
	}
}

func TestIssue_UnknownEmail(t *testing.T) {
	h, _ := newHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/otp",
		strings.NewReader(`{"email":"nobody@x.com","functionality":"REGISTER"}`))
	rec := httptest.NewRecorder()
	h.Issue(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestIssue_UnknownFunctionality(t *testing.T) {
	h, _ := newHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/otp",
		strings.NewReader(`{"email":"a@x.com","functionality":"RESET"}`))
	rec := httptest.NewRecorder()
	h.Issue(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestIssue_DeliveryFailureStillReturnsChallenge(t *testing.T) {
	h, repo := newHandler(errors.New("smtp down"))

	req := httptest.NewRequest(http.MethodPost, "/otp", issueBody())
	rec := httptest.NewRecorder()
	h.Issue(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "challengeId") {
		t.Error("delivery failure should still return the committed challenge")
	}
	if len(repo.challenges) != 1 || !repo.challenges[0].Active {
		t.Error("challenge should stay active for later verification")
	}
}

func TestIssue_MissingFields(t *testing.T) {
	h, _ := newHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/otp", strings.NewReader(`{"email":"a@x.com"}`))
	rec := httptest.NewRecorder()
	h.Issue(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
