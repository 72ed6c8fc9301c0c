package portalsdk

import (
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// NotifyFunc receives the user-facing message of a classified failure.
// Host applications typically surface it as a toast.
type NotifyFunc func(message string)

// SessionExpiredFunc is invoked on terminal authentication failure (a failed
// refresh, or a 401 that survived one retry). Host applications typically
// redirect to their login view; the SDK itself never navigates.
type SessionExpiredFunc func()

// Client is the resilient authenticated API client for the portal backend.
// It owns the shared access token, coordinates single-flight refreshes, and
// normalizes every failure into an *APIError. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter

	expiryMargin time.Duration

	tokens  *tokenStore
	refresh singleflight.Group

	notify         NotifyFunc
	sessionExpired SessionExpiredFunc
	telemetry      TelemetrySink
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. If the supplied client
// has no cookie jar, one is installed: the refresh endpoint authenticates
// through the HTTP-only session cookie.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the transport timeout. Timed-out requests classify as
// KindNetwork, the same as any other transport failure.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the structured logger used for dispatch, refresh, and
// failure logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRateLimit enables client-side request throttling. Dispatches wait for
// limiter capacity before hitting the transport.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithExpiryMargin overrides DefaultExpiryMargin for proactive refresh.
func WithExpiryMargin(margin time.Duration) Option {
	return func(c *Client) { c.expiryMargin = margin }
}

// WithNotifier registers the UI notification callback.
func WithNotifier(fn NotifyFunc) Option {
	return func(c *Client) { c.notify = fn }
}

// WithSessionExpiredHandler registers the terminal-auth-failure callback.
func WithSessionExpiredHandler(fn SessionExpiredFunc) Option {
	return func(c *Client) { c.sessionExpired = fn }
}

// WithTelemetry registers the sink that receives classified non-auth
// failures. Reporting is fire-and-forget; see TelemetrySink.
func WithTelemetry(sink TelemetrySink) Option {
	return func(c *Client) { c.telemetry = sink }
}

// NewClient creates a Client for the portal API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		expiryMargin: DefaultExpiryMargin,
		tokens:       newTokenStore(),
	}

	for _, opt := range opts {
		opt(c)
	}

	// The session credential lives in an HTTP-only cookie, so the client
	// must carry cookies across calls for refresh to work.
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err == nil {
			c.httpClient.Jar = jar
		}
	}

	return c
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string { return c.baseURL }
