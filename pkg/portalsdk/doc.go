/*
Package portalsdk provides the resilient authenticated API client used by
every PulseCare portal front end.

# Overview

The package wraps the portal's REST backend behind a small verb-based
facade. The client owns the short-lived access token, refreshes it through
the backend's cookie-authenticated refresh endpoint, and normalizes every
failure - network, HTTP, or validation - into a single *APIError taxonomy so
feature code never handles raw transport errors.

Create a client and sign in:

	client := portalsdk.NewClient("https://api.portal.example.com",
		portalsdk.WithNotifier(toast.Show),
		portalsdk.WithSessionExpiredHandler(router.GoToLogin),
	)

	_, err := client.Login(ctx, portalsdk.LoginRequest{
		Email:    "pat@example.com",
		Password: password,
	})

Then call endpoints through the facade:

	var patient Patient
	err := client.Get(ctx, "/patients/42/", &patient, nil)

	var created Appointment
	err = client.Post(ctx, "/appointments/", req, &created, &portalsdk.CallOptions{
		ErrorMessage: "Could not book the appointment.",
	})

# Token lifecycle

Access tokens are JWTs with an embedded expiry. Before each authenticated
request the client checks the held token; if it is absent or expires within
the configured margin (60 seconds by default) the token is refreshed first.
Refreshes are single-flight: any number of concurrent requests observing an
expired token produce exactly one refresh call, and all of them proceed with
the same new token.

A 401 response triggers one refresh followed by one replay of the original
request. A second 401, or a failed refresh, is terminal: the token is
cleared, the registered session-expired callback fires, and the call returns
an *APIError of KindSessionExpired.

# Error handling

Every failure is an *APIError with a stable Kind, a user-displayable
Message, the HTTP StatusCode (0 for network failures), field-level Details
for validation errors, and the original cause available via errors.Unwrap.

	var apiErr *portalsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Kind == portalsdk.KindValidation {
		form.ShowFieldErrors(apiErr.Details)
	}

Unless suppressed per call, the facade also forwards the classified message
to the registered notification callback, and non-auth failures to the
telemetry sink.

# Thread safety

The Client is safe for concurrent use. Token state is guarded by a
read-write lock with the refresh coordinator as its only writer.
*/
package portalsdk
