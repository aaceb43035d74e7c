package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tsnetmon/internal/shared"
)

func newTestClient(url string) *Client {
	c := NewClient(url, "test-key", 2*time.Second)
	c.Backoff = []time.Duration{0} // no sleeping in tests
	return c
}

func testSubmission() shared.MetricSubmission {
	return shared.MetricSubmission{
		Hostname:    "h1",
		Timestamp:   time.Now().UTC(),
		TailscaleIP: "100.64.0.1",
		Metrics:     shared.MetricsData{BytesSent: 100, BytesReceived: 200},
	}
}

func TestSubmit_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Submit(context.Background(), testSubmission()))
	require.EqualValues(t, 3, calls.Load())
}

func TestSubmit_AuthFailureIsFatal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Submit(context.Background(), testSubmission())
	require.ErrorIs(t, err, ErrUnauthorized)
	require.EqualValues(t, 1, calls.Load(), "auth rejections must not be retried")
}

func TestSubmit_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.Attempts = 2
	err := c.Submit(context.Background(), testSubmission())
	require.Error(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestSubmit_SendsBearerHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, shared.APIPrefix+"/metrics", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Submit(context.Background(), testSubmission()))
}

func TestRegister_AdoptsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"agent_id":"a1","api_key":"fresh-key","message":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.APIKey = ""
	resp, err := c.Register(context.Background(), shared.RegisterRequest{
		Hostname: "h1", TailscaleIP: "100.64.0.1", OSType: "linux",
	})
	require.NoError(t, err)
	require.Equal(t, "a1", resp.AgentID)
	require.Equal(t, "fresh-key", c.APIKey)
}

func TestRegister_ConflictIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Register(context.Background(), shared.RegisterRequest{
		Hostname: "h1", TailscaleIP: "100.64.0.1", OSType: "linux",
	})
	require.ErrorIs(t, err, ErrConflict)
}
