package portalsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pulsecare/portal/pkg/reqid"
)

// requestDescriptor captures one outgoing request. It is immutable once
// built and consumed by exactly one execute call; the auth-retry path
// replays the same descriptor rather than mutating it.
type requestDescriptor struct {
	method       string
	path         string
	params       map[string]any
	body         any
	headers      map[string]string
	requiresAuth bool
	errorMessage string
	notify       bool
}

// methodHasBody reports whether the request body is serialized for method.
// Only mutating methods carry one.
func methodHasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// encodeQuery stringifies query parameters: slices join with commas, nil
// values are omitted, everything else renders with its default format.
func encodeQuery(params map[string]any) url.Values {
	q := url.Values{}
	for key, value := range params {
		if value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			q.Set(key, v)
		case []string:
			q.Set(key, strings.Join(v, ","))
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				if item != nil {
					parts = append(parts, fmt.Sprint(item))
				}
			}
			q.Set(key, strings.Join(parts, ","))
		case fmt.Stringer:
			q.Set(key, v.String())
		default:
			q.Set(key, fmt.Sprint(v))
		}
	}
	return q
}

// buildURL resolves the full request URL from the configured base, the
// descriptor path, and encoded query parameters.
func (c *Client) buildURL(path string, params map[string]any) string {
	full := c.baseURL + path
	if q := encodeQuery(params); len(q) > 0 {
		full += "?" + q.Encode()
	}
	return full
}

// dispatch builds and sends one HTTP request. It knows nothing about auth
// retries: it attaches the token it is given and reports the raw outcome.
// A returned error means the transport failed and no response was received.
func (c *Client) dispatch(ctx context.Context, desc requestDescriptor, token string) (*http.Response, error) {
	var body io.Reader
	if desc.body != nil && methodHasBody(desc.method) {
		encoded, err := json.Marshal(desc.body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, desc.method, c.buildURL(desc.path, desc.params), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if desc.requiresAuth && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	id := reqid.New()
	req.Header.Set("X-Request-Id", id.String())

	for key, value := range desc.headers {
		req.Header.Set(key, value)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	c.logger.Debug("dispatching request",
		"method", desc.method,
		"path", desc.path,
		"req_id", id.String(),
	)

	return c.httpClient.Do(req)
}

// execute runs the full auth pipeline for one descriptor: proactive refresh
// when the held token is absent or inside the expiry margin, dispatch, and
// at most one refresh-and-replay on 401. The retry is structural - there is
// no loop - so a 401 on the replayed request terminates with SessionExpired.
func (c *Client) execute(ctx context.Context, desc requestDescriptor) (*http.Response, *APIError) {
	token := c.tokens.get()

	if desc.requiresAuth && TokenExpiringSoon(token, c.expiryMargin, time.Now()) {
		refreshed, err := c.refreshAccessToken(ctx)
		if err != nil {
			return nil, c.terminalAuthFailure(desc, err)
		}
		token = refreshed
	}

	resp, err := c.dispatch(ctx, desc, token)
	if err != nil {
		return nil, classifyTransport(err, desc.errorMessage)
	}

	if resp.StatusCode != http.StatusUnauthorized || !desc.requiresAuth {
		return resp, nil
	}

	// First 401: refresh once and replay the identical descriptor.
	drainBody(resp)

	refreshed, err := c.refreshAccessToken(ctx)
	if err != nil {
		return nil, c.terminalAuthFailure(desc, err)
	}

	retryResp, err := c.dispatch(ctx, desc, refreshed)
	if err != nil {
		return nil, classifyTransport(err, desc.errorMessage)
	}

	if retryResp.StatusCode == http.StatusUnauthorized {
		// The freshly-minted token was rejected too. Give up rather
		// than refresh again.
		drainBody(retryResp)
		c.tokens.clear()
		return nil, c.terminalAuthFailure(
			desc,
			fmt.Errorf("%w: token rejected after refresh", ErrSessionExpired),
		)
	}

	return retryResp, nil
}

// terminalAuthFailure logs the failure, fires the registered
// session-expired callback, and builds the classified error.
func (c *Client) terminalAuthFailure(desc requestDescriptor, cause error) *APIError {
	c.logger.Warn("terminal authentication failure",
		"method", desc.method,
		"path", desc.path,
		"error", cause,
	)
	if c.sessionExpired != nil {
		c.sessionExpired()
	}
	return sessionExpiredError(cause, desc.errorMessage)
}

// drainBody discards and closes a response body so the underlying
// connection can be reused.
func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
