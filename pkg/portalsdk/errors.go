package portalsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"unicode"
)

// Kind classifies a request failure. Every error surfaced by the SDK carries
// exactly one Kind so callers never branch on raw transport errors or status
// codes.
type Kind string

const (
	// KindNetwork covers transport-level failures where no response was
	// received, including timeouts.
	KindNetwork Kind = "network"

	// KindUnauthorized is a 401 on a request that did not go through the
	// auth-retry path (e.g. a login attempt with bad credentials).
	KindUnauthorized Kind = "unauthorized"

	// KindForbidden is a 403: authenticated but not permitted.
	KindForbidden Kind = "forbidden"

	// KindNotFound is a 404.
	KindNotFound Kind = "not_found"

	// KindValidation is a 422 carrying field-level detail.
	KindValidation Kind = "validation"

	// KindServerError covers 5xx responses.
	KindServerError Kind = "server_error"

	// KindSessionExpired is the terminal auth condition: a 401 that
	// survived one refresh-and-retry, or a failed refresh.
	KindSessionExpired Kind = "session_expired"

	// KindUnknown covers everything else.
	KindUnknown Kind = "unknown"
)

// ErrSessionExpired is the sentinel wrapped into every terminal
// authentication failure. Check with errors.Is.
var ErrSessionExpired = errors.New("session expired")

// Default user-facing messages per kind; overridable per call via
// CallOptions.ErrorMessage.
const (
	msgNetwork        = "Unable to reach the server. Check your connection and try again."
	msgUnauthorized   = "You are not signed in."
	msgForbidden      = "You do not have permission to perform this action."
	msgNotFound       = "The requested resource was not found."
	msgValidation     = "Some fields contain invalid values."
	msgServerError    = "The server encountered an error. Please try again later."
	msgSessionExpired = "Your session has expired. Please sign in again."
	msgUnknown        = "The request could not be completed."
)

// APIError is the classified form of every failure returned by the SDK.
type APIError struct {
	// Kind is the stable failure class.
	Kind Kind

	// Message is safe for direct user display.
	Message string

	// StatusCode is the HTTP status, or 0 for network-level failures.
	StatusCode int

	// Details carries field-level validation errors for KindValidation,
	// keyed by the backend's field names. Nil for other kinds.
	Details map[string][]string

	// Err is the original cause. Retained for diagnostics and telemetry,
	// never shown to the user.
	Err error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsKind reports whether err is an *APIError of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// errorBody mirrors the backend's error payload shapes. The portal API
// returns either {"detail": "..."} or, for validation failures,
// {"details": {"field": ["msg", ...]}}.
type errorBody struct {
	Detail  string              `json:"detail"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details"`
}

// classifyResponse maps a non-2xx HTTP response to an APIError. The body has
// already been read by the caller; a malformed body falls back to the
// per-kind default message.
func classifyResponse(resp *http.Response, body []byte, override string) *APIError {
	var payload errorBody
	_ = json.Unmarshal(body, &payload)

	var kind Kind
	var msg string

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		kind, msg = KindUnauthorized, msgUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		kind, msg = KindForbidden, msgForbidden
	case resp.StatusCode == http.StatusNotFound:
		kind, msg = KindNotFound, msgNotFound
	case resp.StatusCode == http.StatusUnprocessableEntity:
		kind, msg = KindValidation, msgValidation
		if len(payload.Details) > 0 {
			msg = validationSummary(payload.Details)
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		kind, msg = KindServerError, msgServerError
	default:
		kind, msg = KindUnknown, msgUnknown
	}

	if override != "" {
		msg = override
	}

	return &APIError{
		Kind:       kind,
		Message:    msg,
		StatusCode: resp.StatusCode,
		Details:    payload.Details,
		Err:        fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
	}
}

// classifyTransport maps a network-level failure (no response reached) to an
// APIError. Timeouts classify identically to connection failures.
func classifyTransport(err error, override string) *APIError {
	msg := msgNetwork
	if override != "" {
		msg = override
	}
	return &APIError{
		Kind:       KindNetwork,
		Message:    msg,
		StatusCode: 0,
		Err:        err,
	}
}

// sessionExpiredError builds the terminal authentication failure. The cause
// always wraps ErrSessionExpired so errors.Is(err, ErrSessionExpired) holds.
func sessionExpiredError(cause error, override string) *APIError {
	msg := msgSessionExpired
	if override != "" {
		msg = override
	}
	if !errors.Is(cause, ErrSessionExpired) {
		cause = fmt.Errorf("%w: %w", ErrSessionExpired, cause)
	}
	return &APIError{
		Kind:       KindSessionExpired,
		Message:    msg,
		StatusCode: http.StatusUnauthorized,
		Err:        cause,
	}
}

// validationSummary flattens field-level validation errors into one line for
// direct display, e.g. "First Name: Required; Email: Enter a valid email".
// Fields are sorted for deterministic output.
func validationSummary(details map[string][]string) string {
	fields := make([]string, 0, len(details))
	for field := range details {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fieldLabel(field)+": "+strings.Join(details[field], ", "))
	}
	return strings.Join(parts, "; ")
}

// fieldLabel converts an identifier-case field name to words:
// "first_name" and "firstName" both become "First Name".
func fieldLabel(name string) string {
	var words []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = nil
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()

	for i, word := range words {
		r := []rune(word)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
