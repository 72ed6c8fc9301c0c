package portalsdk

import (
	"context"
)

const (
	loginPath  = "/auth/login/"
	logoutPath = "/auth/logout/"
)

// LoginRequest carries portal credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by the login endpoint. Alongside the access
// token, the backend sets the HTTP-only refresh cookie on the client's
// cookie jar; the SDK never sees the refresh credential itself.
type LoginResponse struct {
	Access string `json:"access"`
}

// Login authenticates with the portal backend and stores the returned
// access token for subsequent requests. Failed logins classify as
// KindUnauthorized (bad credentials) or KindValidation (malformed input);
// they never trigger the session-expired callback.
func (c *Client) Login(ctx context.Context, creds LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.Post(ctx, loginPath, creds, &resp, &CallOptions{SkipAuth: true}); err != nil {
		return nil, err
	}

	c.tokens.set(resp.Access)
	c.logger.Debug("login succeeded")
	return &resp, nil
}

// Logout invalidates the server-side session and drops the held access
// token. The token is cleared even when the backend call fails, so the
// client never keeps credentials past an attempted logout.
func (c *Client) Logout(ctx context.Context) error {
	err := c.Post(ctx, logoutPath, nil, nil, &CallOptions{SuppressNotification: true})
	c.tokens.clear()
	return err
}

// SetAccessToken seeds the client with an access token obtained elsewhere,
// e.g. restored host-application state. The session cookie must already be
// present in the HTTP client's jar for refresh to work afterwards.
func (c *Client) SetAccessToken(token string) { c.tokens.set(token) }

// AccessToken returns the currently held access token without refreshing.
func (c *Client) AccessToken() string { return c.tokens.get() }

// ClearAccessToken drops the held access token.
func (c *Client) ClearAccessToken() { c.tokens.clear() }
