package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, badly signed, or expired.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the request-scoped identity embedded in an access token at issuance.
// Permissions are fetched once when the token is minted and ride in the claims
// until the next refresh; downstream authorization reads them from the token only.
type Identity struct {
	UserID         string
	Email          string
	FirstName      string
	LastName       string
	Picture        string
	Role           string
	Permissions    []string
	OrganizationID string
}

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email          string   `json:"email"`
	FirstName      string   `json:"firstName,omitempty"`
	LastName       string   `json:"lastName,omitempty"`
	Picture        string   `json:"picture,omitempty"`
	Role           string   `json:"role,omitempty"`
	Permissions    []string `json:"permissions"`
	OrganizationID string   `json:"organizationId,omitempty"`
}

// Identity converts verified claims back into the Identity they were built from.
func (c *AccessClaims) Identity() Identity {
	return Identity{
		UserID:         c.Subject,
		Email:          c.Email,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		Picture:        c.Picture,
		Role:           c.Role,
		Permissions:    c.Permissions,
		OrganizationID: c.OrganizationID,
	}
}

// TokenProvider issues and verifies access JWTs using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on verification.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
	}
}

// Issue mints a signed access token carrying the given identity.
// Returns the compact token string and its expiration time.
func (p *TokenProvider) Issue(id Identity) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	permissions := id.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:          id.Email,
		FirstName:      id.FirstName,
		LastName:       id.LastName,
		Picture:        id.Picture,
		Role:           id.Role,
		Permissions:    permissions,
		OrganizationID: id.OrganizationID,
	}
	token, err = p.sign(claims)
	return token, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// Verify parses and validates an access token (signature, exp, iss, aud).
// Both the signature and the expiry check are mandatory: a well-signed token
// past its expiry fails with ErrInvalidToken.
func (p *TokenProvider) Verify(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return p.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != p.issuer {
		return nil, ErrInvalidToken
	}
	audOk := false
	for _, a := range claims.Audience {
		if a == p.audience {
			audOk = true
			break
		}
	}
	if !audOk {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
