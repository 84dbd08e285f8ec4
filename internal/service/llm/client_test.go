package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietleaf/journal/internal/logger"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:    baseURL,
		Model:      "phi3:mini",
		Timeout:    time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, logger.NewNoOp())
}

func Test_Generate(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		var gotBody generateRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/api/generate", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

			_, _ = w.Write([]byte(`{"response": "  Why not start with one small win?  "}`))
		}))
		defer srv.Close()

		got, err := newTestClient(srv.URL).Generate(t.Context(), "Say hi.", "Be terse.", 500, 0.7)

		require.NoError(t, err)
		assert.Equal(t, "Why not start with one small win?", got, "response should be trimmed")
		assert.Equal(t, "phi3:mini", gotBody.Model)
		assert.Equal(t, "Be terse.\n\nSay hi.", gotBody.Prompt, "system text goes first, blank line, then prompt")
		assert.False(t, gotBody.Stream)
		assert.Equal(t, 500, gotBody.Options.NumPredict)
		assert.InDelta(t, 0.7, gotBody.Options.Temperature, 0.0001)
	})

	t.Run("no system text", func(t *testing.T) {
		var gotBody generateRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			_, _ = w.Write([]byte(`{"response": "ok"}`))
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).Generate(t.Context(), "Say hi.", "", 100, 0.1)

		require.NoError(t, err)
		assert.Equal(t, "Say hi.", gotBody.Prompt)
	})

	t.Run("absent response field is empty string", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		got, err := newTestClient(srv.URL).Generate(t.Context(), "Say hi.", "", 100, 0.1)

		require.NoError(t, err)
		assert.Equal(t, "", got)
	})

	t.Run("model missing fails immediately", func(t *testing.T) {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).Generate(t.Context(), "Say hi.", "", 100, 0.1)

		require.Error(t, err)
		var genErr *Error
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, CodeModelMissing, genErr.Code)
		assert.Equal(t, "phi3:mini", genErr.Model, "error must name the model to provision")
		assert.Contains(t, genErr.Err.Error(), "ollama pull phi3:mini")
		assert.Equal(t, int64(1), hits.Load(), "model missing must not be retried")
	})

	t.Run("transport errors are retried until exhausted", func(t *testing.T) {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).Generate(t.Context(), "Say hi.", "", 100, 0.1)

		require.Error(t, err)
		var genErr *Error
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, CodeExhausted, genErr.Code)
		assert.Equal(t, 3, genErr.Attempts)
		assert.Equal(t, int64(3), hits.Load())

		var cause *Error
		require.ErrorAs(t, genErr.Err, &cause, "last cause should be kept")
		assert.Equal(t, CodeTransport, cause.Code)
	})

	t.Run("connection refused is retried with growing delay", func(t *testing.T) {
		// Grab an address nothing listens on
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		addr := srv.URL
		srv.Close()

		client := NewClient(Config{
			BaseURL:    addr,
			Model:      "phi3:mini",
			Timeout:    time.Second,
			MaxRetries: 3,
			RetryDelay: 10 * time.Millisecond,
		}, logger.NewNoOp())

		start := time.Now()
		_, err := client.Generate(t.Context(), "Say hi.", "", 100, 0.1)
		elapsed := time.Since(start)

		require.Error(t, err)
		var genErr *Error
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, CodeExhausted, genErr.Code)
		assert.Equal(t, 3, genErr.Attempts)

		var cause *Error
		require.ErrorAs(t, genErr.Err, &cause)
		assert.Equal(t, CodeConnection, cause.Code)

		// Linear backoff: delay*1 + delay*2 between the three attempts
		assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond, "connection failures should back off linearly")
	})

	t.Run("cancelled while waiting reports real attempt count", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		addr := srv.URL
		srv.Close()

		client := NewClient(Config{
			BaseURL:    addr,
			Model:      "phi3:mini",
			Timeout:    time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
		}, logger.NewNoOp())

		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()

		_, err := client.Generate(ctx, "Say hi.", "", 100, 0.1)

		var genErr *Error
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, CodeExhausted, genErr.Code)
		assert.Equal(t, 1, genErr.Attempts, "only one attempt ran before the context expired")
		assert.ErrorIs(t, err, context.DeadlineExceeded, "the cancellation should be visible in the error chain")

		var cause *Error
		require.ErrorAs(t, genErr.Err, &cause)
		assert.Equal(t, CodeConnection, cause.Code)
	})
}

func Test_CheckHealth(t *testing.T) {
	t.Parallel()

	t.Run("reachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/tags", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		assert.True(t, newTestClient(srv.URL).CheckHealth(t.Context()))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		addr := srv.URL
		srv.Close()

		assert.False(t, newTestClient(addr).CheckHealth(t.Context()))
	})

	t.Run("bad status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		assert.False(t, newTestClient(srv.URL).CheckHealth(t.Context()))
	})
}
