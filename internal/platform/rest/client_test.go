package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalens/avalens/internal/domain"
)

func newTestClient(t *testing.T, baseURL string, cache *Cache, obs Observer) *Client {
	t.Helper()
	c := New(Config{
		Service:      "testsvc",
		BaseURL:      baseURL,
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}, cache, obs, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestGetJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	var out struct {
		OK bool `json:"ok"`
	}
	err := c.GetJSON(context.Background(), "/thing", nil, &out, 0)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	var out map[string]any
	err := c.GetJSON(context.Background(), "/missing", nil, &out, 0)
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, int32(1), calls.Load(), "4xx must be terminal")
}

func TestGetJSONExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	var out map[string]any
	err := c.GetJSON(context.Background(), "/limited", nil, &out, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRetryExhausted))
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
	assert.Equal(t, int32(4), calls.Load(), "initial attempt plus three retries")
}

func TestGetJSONServesFromCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"n":42}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, NewCache(), nil)

	for i := 0; i < 3; i++ {
		var out struct {
			N int `json:"n"`
		}
		err := c.GetJSON(context.Background(), "/cached", nil, &out, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 42, out.N)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestErrorResponsesAreNotCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, NewCache(), nil)

	var out map[string]any
	require.Error(t, c.GetJSON(context.Background(), "/x", nil, &out, time.Minute))
	require.NoError(t, c.GetJSON(context.Background(), "/x", nil, &out, time.Minute))
	assert.Equal(t, int32(2), calls.Load())
}

func TestObserverReceivesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var got []Result
	c := newTestClient(t, srv.URL, nil, func(r Result) { got = append(got, r) })

	var out map[string]any
	require.NoError(t, c.GetJSON(context.Background(), "/observed", nil, &out, 0))

	require.Len(t, got, 1)
	assert.Equal(t, "testsvc", got[0].Service)
	assert.Equal(t, "/observed", got[0].Endpoint)
	assert.Equal(t, http.MethodGet, got[0].Method)
	assert.Equal(t, http.StatusOK, got[0].Status)
	assert.Equal(t, 0, got[0].Retries)
	assert.Empty(t, got[0].Err)
}
