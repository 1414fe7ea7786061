package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lm-identity/internal/audit"
	"lm-identity/internal/identity/google"
	"lm-identity/internal/otp"
	"lm-identity/internal/security"
	userdomain "lm-identity/internal/user/domain"
)

// RegisterFunctionality is the OTP policy name gating account activation.
const RegisterFunctionality = "REGISTER"

// Sentinel errors for the auth service; handler maps them to status codes.
var (
	ErrNotAuthorized      = errors.New("account is not provisioned")
	ErrAlreadyRegistered  = errors.New("account is already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoPassword         = errors.New("account has no password set")
	ErrServiceUnavailable = errors.New("downstream service unavailable")
)

// AuthResult holds the outcome of Login, GoogleLogin, or Refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
}

// RegisterRequest carries the OTP-gated activation data. The encrypted code is
// the client's proof of possession for the challenge issued on these fields.
type RegisterRequest struct {
	Email         string
	FirstName     string
	LastName      string
	Password      string
	EncryptedCode string
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	CompleteRegistration(ctx context.Context, id, firstName, lastName, passwordHash string) error
	LinkGoogle(ctx context.Context, id, googleID, picture string) error
}

// OtpVerifier is the slice of the OTP engine the auth service uses.
type OtpVerifier interface {
	Verify(ctx context.Context, email, functionality string, payload otp.Payload, encryptedCode string) error
}

// RefreshManager issues, redeems, and revokes opaque refresh tokens.
type RefreshManager interface {
	Issue(ctx context.Context, userID string) (string, error)
	Redeem(ctx context.Context, token string) (userID, nextToken string, err error)
	Revoke(ctx context.Context, token string) (bool, error)
}

// PermissionLookup fetches the permission names for a role from the role service.
type PermissionLookup interface {
	PermissionsFor(ctx context.Context, role, orgID string) ([]string, error)
}

// GoogleVerifier validates a Google ID token and returns its claims.
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*google.TokenInfo, error)
}

// AuthService implements OTP-gated registration, password and Google login,
// refresh, and logout. Permissions are fetched at token-issuance time and
// embedded in the access token; they go stale until the next refresh.
type AuthService struct {
	users    UserRepo
	otp      OtpVerifier
	hasher   *security.Hasher
	tokens   *security.TokenProvider
	refresh  RefreshManager
	perms    PermissionLookup
	googleV  GoogleVerifier
	auditLog audit.AuditLogger
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	users UserRepo,
	otpVerifier OtpVerifier,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	refresh RefreshManager,
	perms PermissionLookup,
	googleV GoogleVerifier,
	auditLog audit.AuditLogger,
) *AuthService {
	return &AuthService{
		users:    users,
		otp:      otpVerifier,
		hasher:   hasher,
		tokens:   tokens,
		refresh:  refresh,
		perms:    perms,
		googleV:  googleV,
		auditLog: auditLog,
	}
}

// Register activates a pre-provisioned account: the OTP challenge issued on
// exactly these registration fields must verify before the name and password
// are stored. Creating brand-new accounts goes through the user service, not here.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) error {
	email := normalizeEmail(req.Email)
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrNotAuthorized
	}
	if u.Registered {
		return ErrAlreadyRegistered
	}

	payload := otp.Payload{Email: email, FirstName: req.FirstName, LastName: req.LastName}
	if err := s.otp.Verify(ctx, email, RegisterFunctionality, payload, req.EncryptedCode); err != nil {
		return err
	}

	hashed, err := s.hasher.Hash([]byte(req.Password))
	if err != nil {
		return err
	}
	if err := s.users.CompleteRegistration(ctx, u.ID, req.FirstName, req.LastName, hashed); err != nil {
		return err
	}
	s.auditLog.LogEvent(ctx, u.OrganizationID, u.ID, "register", "auth", "")
	return nil
}

// Login authenticates with email/password and returns fresh tokens.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		s.auditLog.LogEvent(ctx, "", "", "login_failure", "auth", "unknown email")
		return nil, ErrNotAuthorized
	}
	if !u.HasPassword() {
		return nil, ErrNoPassword
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		s.auditLog.LogEvent(ctx, u.OrganizationID, u.ID, "login_failure", "auth", "password mismatch")
		return nil, ErrInvalidCredentials
	}

	result, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}
	s.auditLog.LogEvent(ctx, u.OrganizationID, u.ID, "login", "auth", `{"method":"password"}`)
	return result, nil
}

// GoogleLogin authenticates with a Google ID token. Only pre-provisioned
// emails may sign in; the first successful login links the Google identity
// and marks the account registered.
func (s *AuthService) GoogleLogin(ctx context.Context, idToken string) (*AuthResult, error) {
	info, err := s.googleV.Verify(ctx, idToken)
	if err != nil {
		if errors.Is(err, google.ErrInvalidIDToken) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	u, err := s.users.GetByEmail(ctx, normalizeEmail(info.Email))
	if err != nil {
		return nil, err
	}
	if u == nil {
		s.auditLog.LogEvent(ctx, "", "", "login_failure", "auth", "unknown google email")
		return nil, ErrNotAuthorized
	}

	if u.GoogleID != info.Subject || u.Picture != info.Picture {
		if err := s.users.LinkGoogle(ctx, u.ID, info.Subject, info.Picture); err != nil {
			return nil, err
		}
	}

	result, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}
	s.auditLog.LogEvent(ctx, u.OrganizationID, u.ID, "login", "auth", `{"method":"google"}`)
	return result, nil
}

// Refresh redeems the refresh token from the cookie and re-mints an access
// token with freshly fetched permissions. The refresh token itself is only
// replaced when rotate-on-use is configured on the manager.
func (s *AuthService) Refresh(ctx context.Context, cookieToken string) (*AuthResult, error) {
	userID, nextToken, err := s.refresh.Redeem(ctx, cookieToken)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotAuthorized
	}

	permissions, err := s.permissionsFor(ctx, u)
	if err != nil {
		return nil, err
	}
	access, expiresAt, err := s.tokens.Issue(identityOf(u, permissions))
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  access,
		RefreshToken: nextToken,
		ExpiresAt:    expiresAt,
		UserID:       u.ID,
	}, nil
}

// Logout revokes the refresh token and reports whether a live token was
// actually revoked. Empty and unknown tokens return false without an error;
// the handler clears the cookie regardless.
func (s *AuthService) Logout(ctx context.Context, cookieToken string) (bool, error) {
	if cookieToken == "" {
		return false, nil
	}
	revoked, err := s.refresh.Revoke(ctx, cookieToken)
	if err != nil {
		return false, err
	}
	if revoked {
		s.auditLog.LogEvent(ctx, "", "", "logout", "auth", "")
	}
	return revoked, nil
}

func (s *AuthService) issueTokens(ctx context.Context, u *userdomain.User) (*AuthResult, error) {
	permissions, err := s.permissionsFor(ctx, u)
	if err != nil {
		return nil, err
	}
	access, expiresAt, err := s.tokens.Issue(identityOf(u, permissions))
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.refresh.Issue(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		UserID:       u.ID,
	}, nil
}

func (s *AuthService) permissionsFor(ctx context.Context, u *userdomain.User) ([]string, error) {
	permissions, err := s.perms.PermissionsFor(ctx, u.Role, u.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return permissions, nil
}

func identityOf(u *userdomain.User, permissions []string) security.Identity {
	return security.Identity{
		UserID:         u.ID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Picture:        u.Picture,
		Role:           u.Role,
		Permissions:    permissions,
		OrganizationID: u.OrganizationID,
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
