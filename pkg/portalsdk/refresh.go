package portalsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// refreshPath is the backend endpoint that mints a new access token from the
// HTTP-only session cookie carried by the client's cookie jar.
const refreshPath = "/auth/token/refresh/"

// tokenResponse is the refresh/login endpoint payload.
type tokenResponse struct {
	Access string `json:"access"`
}

// refreshAccessToken obtains a new access token from the backend.
//
// Refresh is single-flight: no matter how many requests discover an expired
// or rejected token concurrently, exactly one refresh call reaches the
// backend and every caller observes the same outcome. A failed refresh is
// terminal for the session; it clears the held token and returns an error
// wrapping ErrSessionExpired. The coordinator never retries itself.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	v, err, shared := c.refresh.Do("refresh", func() (any, error) {
		return c.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.logger.Debug("joined in-flight token refresh")
	}
	return v.(string), nil
}

// doRefresh performs the actual refresh call. Only ever runs inside the
// single-flight group, which makes it the sole writer of the token store for
// an established session.
func (c *Client) doRefresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, nil)
	if err != nil {
		return "", fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.tokens.clear()
		return "", fmt.Errorf("%w: refresh request failed: %w", ErrSessionExpired, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.tokens.clear()
		c.logger.Warn("token refresh rejected", "status", resp.StatusCode)
		return "", fmt.Errorf(
			"%w: refresh returned status %d: %s",
			ErrSessionExpired,
			resp.StatusCode,
			strings.TrimSpace(string(body)),
		)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		c.tokens.clear()
		return "", fmt.Errorf("%w: decode refresh response: %w", ErrSessionExpired, err)
	}
	if tr.Access == "" {
		c.tokens.clear()
		return "", fmt.Errorf("%w: refresh response contained no access token", ErrSessionExpired)
	}

	c.tokens.set(tr.Access)
	c.logger.Debug("access token refreshed")
	return tr.Access, nil
}
