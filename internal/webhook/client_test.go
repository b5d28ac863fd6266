package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAddsSigningHeaders(t *testing.T) {
	var (
		gotSig  string
		gotTS   string
		gotEvt  string
		gotBody []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotEvt = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Config{
		SigningSecret:  "test-secret",
		Timeout:        2 * time.Second,
		MaxAttempts:    1,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	})

	err := client.Send(context.Background(), srv.URL, EventBatchCompleted, map[string]any{"run_id": "run-1"})
	require.NoError(t, err)

	require.NotEmpty(t, gotSig)
	require.NotEmpty(t, gotTS)
	assert.Equal(t, EventBatchCompleted, gotEvt)
	assert.True(t, Verify("test-secret", gotTS, gotBody, gotSig))
	assert.False(t, Verify("other-secret", gotTS, gotBody, gotSig))
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
	require.NoError(t, client.Send(context.Background(), srv.URL, EventBatchCompleted, map[string]any{}))
	assert.EqualValues(t, 3, calls.Load())
}

func TestSendGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{MaxAttempts: 2, InitialBackoff: time.Millisecond})
	err := client.Send(context.Background(), srv.URL, EventBatchCompleted, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestSendSkipsEmptyEndpoint(t *testing.T) {
	client := NewClient(Config{})
	require.NoError(t, client.Send(context.Background(), "  ", EventBatchCompleted, nil))
}

func TestSendWrapsPayloadInEnvelope(t *testing.T) {
	var (
		envelope   Envelope
		deliveryID string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deliveryID = r.Header.Get(HeaderDelivery)
		_ = json.NewDecoder(r.Body).Decode(&envelope)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(Config{MaxAttempts: 1})
	require.NoError(t, client.Send(context.Background(), srv.URL, EventBatchCompleted, map[string]any{"run_id": "run-9"}))

	assert.Equal(t, EventBatchCompleted, envelope.Event)
	assert.Equal(t, deliveryID, envelope.ID)
	assert.NotEmpty(t, envelope.ID)
	assert.False(t, envelope.CreatedAt.IsZero())
	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "run-9", data["run_id"])
}

func TestSendStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	client := NewClient(Config{MaxAttempts: 4, InitialBackoff: time.Millisecond})
	err := client.Send(context.Background(), srv.URL, EventBatchCompleted, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=410")
	assert.EqualValues(t, 1, calls.Load())
}

func TestSendRetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// MaxBackoff caps the one second Retry-After hint.
	client := NewClient(Config{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})
	start := time.Now()
	require.NoError(t, client.Send(context.Background(), srv.URL, EventBatchCompleted, nil))
	assert.EqualValues(t, 2, calls.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Zero(t, retryAfter(""))
	assert.Zero(t, retryAfter("-1"))
	assert.Zero(t, retryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}
