package portalsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// CallOptions carries the per-call options recognized by the verb helpers.
// The zero value is the default behavior: auth required, failures surfaced
// through the notification callback.
type CallOptions struct {
	// Params are query parameters appended to the URL. Values are
	// stringified, slices join with commas, nil values are omitted.
	Params map[string]any

	// Headers are extra headers set on the request.
	Headers map[string]string

	// ErrorMessage overrides the default user-facing message should the
	// call fail.
	ErrorMessage string

	// SuppressNotification disables the error-notification callback for
	// this call. Default false: failures are shown to the user.
	SuppressNotification bool

	// SkipAuth sends the request without an Authorization header and
	// disables the auth-refresh-retry path. Default false: auth required.
	SkipAuth bool
}

// Get issues a GET request and decodes the JSON response into out.
// Pass a nil out to discard the response body.
func (c *Client) Get(ctx context.Context, path string, out any, opts *CallOptions) error {
	return c.call(ctx, http.MethodGet, path, nil, out, opts)
}

// Post issues a POST request with a JSON-encoded payload.
func (c *Client) Post(ctx context.Context, path string, payload, out any, opts *CallOptions) error {
	return c.call(ctx, http.MethodPost, path, payload, out, opts)
}

// Put issues a PUT request with a JSON-encoded payload.
func (c *Client) Put(ctx context.Context, path string, payload, out any, opts *CallOptions) error {
	return c.call(ctx, http.MethodPut, path, payload, out, opts)
}

// Patch issues a PATCH request with a JSON-encoded payload.
func (c *Client) Patch(ctx context.Context, path string, payload, out any, opts *CallOptions) error {
	return c.call(ctx, http.MethodPatch, path, payload, out, opts)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out any, opts *CallOptions) error {
	return c.call(ctx, http.MethodDelete, path, nil, out, opts)
}

// call is the shared implementation behind the verb helpers. Every failure
// leaves here as an *APIError; raw transport errors never escape.
func (c *Client) call(ctx context.Context, method, path string, payload, out any, opts *CallOptions) error {
	if opts == nil {
		opts = &CallOptions{}
	}

	desc := requestDescriptor{
		method:       method,
		path:         path,
		params:       opts.Params,
		body:         payload,
		headers:      opts.Headers,
		requiresAuth: !opts.SkipAuth,
		errorMessage: opts.ErrorMessage,
		notify:       !opts.SuppressNotification,
	}

	resp, apiErr := c.execute(ctx, desc)
	if apiErr != nil {
		c.deliverFailure(desc, apiErr)
		return apiErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr := classifyTransport(fmt.Errorf("read response body: %w", err), desc.errorMessage)
		c.deliverFailure(desc, apiErr)
		return apiErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := classifyResponse(resp, body, desc.errorMessage)
		c.deliverFailure(desc, apiErr)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		// A successful response with a non-JSON body decodes as empty.
		c.logger.Debug("response body is not JSON, ignoring",
			"method", method,
			"path", path,
		)
	}
	return nil
}

// deliverFailure performs the facade's failure side effects: structured log,
// user notification (unless suppressed), and best-effort telemetry for
// non-auth failures.
func (c *Client) deliverFailure(desc requestDescriptor, apiErr *APIError) {
	c.logger.Warn("request failed",
		"method", desc.method,
		"path", desc.path,
		"kind", apiErr.Kind,
		"status", apiErr.StatusCode,
	)

	if desc.notify && c.notify != nil {
		c.notify(apiErr.Message)
	}

	if apiErr.Kind != KindUnauthorized && apiErr.Kind != KindSessionExpired {
		c.reportFailure(desc, apiErr)
	}
}
