package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TokenSource supplies the bearer credential for outbound calls. An empty
// string sends the request unauthenticated.
type TokenSource func() string

// HTTPClient talks to the dashboard backend's identity and activity
// endpoints. It implements both Provider and ActivitySource.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

// NewHTTPClient creates a client for the backend at baseURL. The token
// source may be nil.
func NewHTTPClient(baseURL string, token TokenSource) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		token:   token,
	}
}

func (c *HTTPClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return c.http.Do(req)
}

// CurrentUser resolves the authenticated identity from GET /auth/me.
// A 401 maps to ErrNoUser.
func (c *HTTPClient) CurrentUser(ctx context.Context) (*User, error) {
	resp, err := c.get(ctx, "/auth/me")
	if err != nil {
		return nil, fmt.Errorf("fetch current user: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var u User
		if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
			return nil, fmt.Errorf("parse current user: %w", err)
		}
		if u.ID == "" {
			return nil, ErrNoUser
		}
		return &u, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrNoUser
	default:
		return nil, fmt.Errorf("fetch current user: unexpected status %d", resp.StatusCode)
	}
}

// SignOut revokes the credential via POST /auth/signout. Already-revoked
// credentials (401) are treated as success so repeated sign-outs are no-ops.
func (c *HTTPClient) SignOut(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/signout", nil)
	if err != nil {
		return err
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusUnauthorized:
		return nil
	default:
		return fmt.Errorf("sign out: unexpected status %d", resp.StatusCode)
	}
}

type activityResponse struct {
	LastActivity *time.Time `json:"last_activity"`
}

// LastActivity fetches GET /activity/last for the current identity.
// 401 means "not yet authenticated" and is reported as absent, not an
// error; the monitor skips the inactivity check for that cycle.
func (c *HTTPClient) LastActivity(ctx context.Context) (time.Time, bool, error) {
	resp, err := c.get(ctx, "/activity/last")
	if err != nil {
		return time.Time{}, false, fmt.Errorf("fetch last activity: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body activityResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return time.Time{}, false, fmt.Errorf("parse last activity: %w", err)
		}
		if body.LastActivity == nil {
			return time.Time{}, false, nil
		}
		return *body.LastActivity, true, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return time.Time{}, false, nil
	default:
		return time.Time{}, false, fmt.Errorf("fetch last activity: unexpected status %d", resp.StatusCode)
	}
}
