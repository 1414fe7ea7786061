// Package organization is an HTTP client for the external organization
// service. Organizations live there; this service only validates references.
package organization

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

// ErrUnavailable means the organization service could not be reached.
var ErrUnavailable = errors.New("organization service unavailable")

// Client talks to the organization service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client for the organization service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Exists reports whether the organization id is known to the organization
// service. A 404 means no; any other failure is ErrUnavailable.
func (c *Client) Exists(ctx context.Context, orgID string) (bool, error) {
	u := fmt.Sprintf("%s/organizationExists/%s", c.BaseURL, url.PathEscape(orgID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var exists bool
	if err := json.NewDecoder(resp.Body).Decode(&exists); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return exists, nil
}
