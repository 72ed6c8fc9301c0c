package portalsdk

// TelemetryEvent is the structured record forwarded to the telemetry sink
// for every classified non-auth failure.
type TelemetryEvent struct {
	Method     string
	Endpoint   string
	StatusCode int
	Kind       Kind

	// Err is the original cause retained on the classified error.
	Err error
}

// TelemetrySink receives failure events from the client. Implementations
// must be safe for concurrent use: Report is called on its own goroutine and
// panics are swallowed, so a misbehaving sink can never block or break a
// request.
type TelemetrySink interface {
	Report(event TelemetryEvent)
}

// reportFailure forwards a classified failure to the telemetry sink,
// fire-and-forget.
func (c *Client) reportFailure(desc requestDescriptor, apiErr *APIError) {
	if c.telemetry == nil {
		return
	}

	event := TelemetryEvent{
		Method:     desc.method,
		Endpoint:   desc.path,
		StatusCode: apiErr.StatusCode,
		Kind:       apiErr.Kind,
		Err:        apiErr.Err,
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Warn("telemetry sink panicked", "panic", r)
			}
		}()
		c.telemetry.Report(event)
	}()
}
