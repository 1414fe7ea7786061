// Package roles is an HTTP client for the external role service, which owns
// role definitions and their permission sets.
package roles

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

// ErrUnavailable means the role service could not be reached. Callers may
// retry; permissions are never guessed locally.
var ErrUnavailable = errors.New("role service unavailable")

// Client talks to the role service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client for the role service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type roleResponse struct {
	Name        string `json:"name"`
	Permissions []struct {
		Name string `json:"name"`
	} `json:"permissions"`
}

// PermissionsFor returns the permission names for the role within the
// organization, in the order the role service reports them. An empty or
// unknown role yields an empty list rather than an error, so a user with a
// stale role can still log in with no permissions.
func (c *Client) PermissionsFor(ctx context.Context, role, orgID string) ([]string, error) {
	if role == "" {
		return []string{}, nil
	}
	u := fmt.Sprintf("%s/%s", c.BaseURL, url.PathEscape(role))
	if orgID != "" {
		u += "?organizationId=" + url.QueryEscape(orgID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return []string{}, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body roleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	out := make([]string, 0, len(body.Permissions))
	for _, p := range body.Permissions {
		out = append(out, p.Name)
	}
	return out, nil
}

// Exists reports whether the role is defined for the organization.
func (c *Client) Exists(ctx context.Context, role, orgID string) (bool, error) {
	if role == "" {
		return false, nil
	}
	u := fmt.Sprintf("%s/exists/%s", c.BaseURL, url.PathEscape(role))
	if orgID != "" {
		u += "?organizationId=" + url.QueryEscape(orgID)
	}
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
