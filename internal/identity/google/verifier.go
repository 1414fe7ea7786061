// Package google verifies Google ID tokens against the tokeninfo endpoint.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrInvalidIDToken means Google rejected the token.
	ErrInvalidIDToken = errors.New("invalid google id token")
	// ErrUnavailable means the tokeninfo endpoint could not be reached.
	ErrUnavailable = errors.New("google tokeninfo unavailable")
)

// TokenInfo is the subset of the tokeninfo response this service uses.
type TokenInfo struct {
	Subject    string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}

// Verifier validates ID tokens by asking Google directly. Remote validation
// keeps this service out of the JWK caching business.
type Verifier struct {
	URL        string
	HTTPClient *http.Client
}

// NewVerifier returns a Verifier against the tokeninfo endpoint at rawURL.
func NewVerifier(rawURL string) *Verifier {
	return &Verifier{
		URL:        rawURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Verify checks the ID token and returns its claims. A rejection is
// ErrInvalidIDToken; a transport failure is ErrUnavailable.
func (v *Verifier) Verify(ctx context.Context, idToken string) (*TokenInfo, error) {
	if idToken == "" {
		return nil, ErrInvalidIDToken
	}
	u := v.URL + "?id_token=" + url.QueryEscape(idToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, ErrInvalidIDToken
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var info TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if info.Subject == "" || info.Email == "" {
		return nil, ErrInvalidIDToken
	}
	return &info, nil
}
