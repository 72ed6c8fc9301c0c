package portalsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test401TriggersSingleRefreshAndReplay(t *testing.T) {
	t.Parallel()

	fixture := newPortalFixture(t)
	c := newTestClient(t, fixture.srv.URL)

	// Token looks healthy to the tracker but the backend no longer
	// accepts it (e.g. revoked server-side).
	c.SetAccessToken(mintToken(t, time.Now().Add(time.Hour)))

	var out struct {
		Status string `json:"status"`
	}
	err := c.Get(context.Background(), "/patients/", &out, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", out.Status)

	require.EqualValues(t, 1, fixture.refreshCalls.Load())
	require.EqualValues(t, 2, fixture.dataCalls.Load(), "original request plus exactly one replay")
	require.Equal(t, fixture.validToken(), c.AccessToken())
}

func Test401AfterRetryIsTerminal(t *testing.T) {
	t.Parallel()

	fixture := newPortalFixture(t)
	fixture.rejectAll = true

	var expired atomic.Int64
	c := newTestClient(t, fixture.srv.URL,
		WithSessionExpiredHandler(func() { expired.Add(1) }),
	)
	c.SetAccessToken(mintToken(t, time.Now().Add(time.Hour)))

	err := c.Get(context.Background(), "/patients/", nil, nil)
	require.Error(t, err)
	require.True(t, IsKind(err, KindSessionExpired))

	require.EqualValues(t, 1, fixture.refreshCalls.Load(), "no second refresh after a rejected replay")
	require.EqualValues(t, 2, fixture.dataCalls.Load(), "no retry loop")
	require.EqualValues(t, 1, expired.Load())
	require.Empty(t, c.AccessToken())
}

func TestForbiddenDoesNotRefresh(t *testing.T) {
	t.Parallel()

	var refreshCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == refreshPath {
			refreshCalls.Add(1)
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.SetAccessToken(mintToken(t, time.Now().Add(time.Hour)))

	err := c.Get(context.Background(), "/patients/42/", nil, nil)
	require.True(t, IsKind(err, KindForbidden))
	require.EqualValues(t, 0, refreshCalls.Load(), "403 must not trigger the auth-retry path")
}

func TestNotificationCallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var messages []string
	c := newTestClient(t, srv.URL, WithNotifier(func(msg string) {
		messages = append(messages, msg)
	}))

	t.Run("notified by default", func(t *testing.T) {
		err := c.Get(context.Background(), "/reports/", nil, &CallOptions{SkipAuth: true})
		require.True(t, IsKind(err, KindServerError))
		require.Equal(t, []string{msgServerError}, messages)
	})

	t.Run("custom message", func(t *testing.T) {
		messages = nil
		err := c.Get(context.Background(), "/reports/", nil, &CallOptions{
			SkipAuth:     true,
			ErrorMessage: "Could not load reports.",
		})
		require.Error(t, err)
		require.Equal(t, []string{"Could not load reports."}, messages)
	})

	t.Run("suppressed", func(t *testing.T) {
		messages = nil
		err := c.Get(context.Background(), "/reports/", nil, &CallOptions{
			SkipAuth:             true,
			SuppressNotification: true,
		})
		require.Error(t, err)
		require.Empty(t, messages)
	})
}

type captureSink struct {
	events chan TelemetryEvent
}

func (s *captureSink) Report(event TelemetryEvent) { s.events <- event }

type panicSink struct{}

func (panicSink) Report(TelemetryEvent) { panic("sink exploded") }

func TestTelemetryReporting(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/boom/":
			w.WriteHeader(http.StatusInternalServerError)
		case "/login-fail/":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	sink := &captureSink{events: make(chan TelemetryEvent, 4)}
	c := newTestClient(t, srv.URL, WithTelemetry(sink))

	t.Run("server error reported", func(t *testing.T) {
		err := c.Post(context.Background(), "/boom/", map[string]int{"a": 1}, nil, &CallOptions{SkipAuth: true})
		require.Error(t, err)

		select {
		case event := <-sink.events:
			require.Equal(t, http.MethodPost, event.Method)
			require.Equal(t, "/boom/", event.Endpoint)
			require.Equal(t, http.StatusInternalServerError, event.StatusCode)
			require.Equal(t, KindServerError, event.Kind)
			require.Error(t, event.Err)
		case <-time.After(time.Second):
			t.Fatal("telemetry event not delivered")
		}
	})

	t.Run("auth failures are not reported", func(t *testing.T) {
		err := c.Get(context.Background(), "/login-fail/", nil, &CallOptions{SkipAuth: true})
		require.True(t, IsKind(err, KindUnauthorized))

		select {
		case event := <-sink.events:
			t.Fatalf("unexpected telemetry event: %+v", event)
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestTelemetryPanicIsSwallowed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithTelemetry(panicSink{}))

	err := c.Get(context.Background(), "/missing/", nil, &CallOptions{SkipAuth: true})
	require.True(t, IsKind(err, KindNotFound))

	// Give the reporting goroutine a beat; the test fails via the race
	// detector or an unrecovered panic if the recover is missing.
	time.Sleep(50 * time.Millisecond)
}

func TestSuccessDecoding(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/patients/42/":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 42, "name": "Jordan Li"})
		case "/empty/":
			w.WriteHeader(http.StatusNoContent)
		case "/plain/":
			_, _ = w.Write([]byte("OK"))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	t.Run("decodes json", func(t *testing.T) {
		var patient struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		}
		err := c.Get(context.Background(), "/patients/42/", &patient, &CallOptions{SkipAuth: true})
		require.NoError(t, err)
		require.Equal(t, 42, patient.ID)
		require.Equal(t, "Jordan Li", patient.Name)
	})

	t.Run("empty body is fine", func(t *testing.T) {
		var out map[string]any
		err := c.Delete(context.Background(), "/empty/", &out, &CallOptions{SkipAuth: true})
		require.NoError(t, err)
		require.Empty(t, out)
	})

	t.Run("non-json success body decodes as empty", func(t *testing.T) {
		var out map[string]any
		err := c.Get(context.Background(), "/plain/", &out, &CallOptions{SkipAuth: true})
		require.NoError(t, err)
		require.Empty(t, out)
	})
}

func TestValidationErrorRoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"details":{"first_name":["Required"]}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	err := c.Post(context.Background(), "/patients/", map[string]string{}, nil, &CallOptions{SkipAuth: true})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, KindValidation, apiErr.Kind)
	require.Contains(t, apiErr.Message, "First Name: Required")
	require.Equal(t, map[string][]string{"first_name": {"Required"}}, apiErr.Details)
}

func TestSkipAuthRequests(t *testing.T) {
	t.Parallel()

	var sawAuth atomic.Bool
	var refreshCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == refreshPath {
			refreshCalls.Add(1)
			return
		}
		if r.Header.Get("Authorization") != "" {
			sawAuth.Store(true)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var expired atomic.Int64
	c := newTestClient(t, srv.URL,
		WithSessionExpiredHandler(func() { expired.Add(1) }),
	)
	c.SetAccessToken(mintToken(t, time.Now().Add(time.Hour)))

	err := c.Get(context.Background(), "/public/", nil, &CallOptions{SkipAuth: true})
	require.True(t, IsKind(err, KindUnauthorized), "plain Unauthorized, not SessionExpired")

	require.False(t, sawAuth.Load(), "SkipAuth must not attach the token")
	require.EqualValues(t, 0, refreshCalls.Load(), "SkipAuth must not enter the retry path")
	require.EqualValues(t, 0, expired.Load())
}

func TestVerbHelpers(t *testing.T) {
	t.Parallel()

	methods := make(chan string, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods <- r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	opts := &CallOptions{SkipAuth: true}
	payload := map[string]string{"k": "v"}

	require.NoError(t, c.Get(ctx, "/r/", nil, opts))
	require.NoError(t, c.Post(ctx, "/r/", payload, nil, opts))
	require.NoError(t, c.Put(ctx, "/r/", payload, nil, opts))
	require.NoError(t, c.Patch(ctx, "/r/", payload, nil, opts))
	require.NoError(t, c.Delete(ctx, "/r/", nil, opts))

	want := []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete,
	}
	for _, m := range want {
		require.Equal(t, m, <-methods)
	}
}

func TestQueryParamsReachServer(t *testing.T) {
	t.Parallel()

	query := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query <- r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.Get(context.Background(), "/patients/", nil, &CallOptions{
		SkipAuth: true,
		Params:   map[string]any{"page": 2, "search": "lee"},
	})
	require.NoError(t, err)

	raw := <-query
	require.Contains(t, raw, "page=2")
	require.Contains(t, raw, "search=lee")
}
