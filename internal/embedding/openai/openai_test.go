package openai

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
)

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: url, APIKey: "test-key", Model: "m1", MaxRetries: retries})
	require.NoError(t, err)
	c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return c
}

func TestNewClient(t *testing.T) {
	t.Run("Missing key", func(t *testing.T) {
		t.Setenv("SCHEMARAG_TEST_KEY", "")
		_, err := NewClient(Config{APIKeyEnv: "SCHEMARAG_TEST_KEY"})
		assert.Error(t, err)
	})

	t.Run("Key from env and defaults", func(t *testing.T) {
		t.Setenv("SCHEMARAG_TEST_KEY", "abc")
		c, err := NewClient(Config{APIKeyEnv: "SCHEMARAG_TEST_KEY"})
		require.NoError(t, err)
		assert.Equal(t, "openai:"+DefaultModel, c.Model())
		assert.Equal(t, DefaultBaseURL, c.baseURL)
	})
}

func TestEmbed(t *testing.T) {
	t.Run("OpenAI response shape", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "m1", body["model"])
			assert.Equal(t, "hello", body["input"])
			_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
		}))
		defer srv.Close()

		v, err := newTestClient(t, srv.URL, 1).Embed(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
	})

	t.Run("Ollama response shape", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"embedding":[1,2]}`))
		}))
		defer srv.Close()

		v, err := newTestClient(t, srv.URL, 1).Embed(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2}, v)
	})

	t.Run("Retries on 429 and 5xx", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch calls.Add(1) {
			case 1:
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
			case 2:
				w.WriteHeader(http.StatusBadGateway)
			default:
				_, _ = w.Write([]byte(`{"data":[{"embedding":[1]}]}`))
			}
		}))
		defer srv.Close()

		v, err := newTestClient(t, srv.URL, 3).Embed(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, []float32{1}, v)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("Client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, 3).Embed(context.Background(), "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("Empty payload is not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, 2).Embed(context.Background(), "x")
		assert.ErrorIs(t, err, ErrNoEmbedding)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("Malformed payload is not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`not json`))
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, 3).Embed(context.Background(), "x")
		assert.ErrorContains(t, err, "decode embeddings response")
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("Negative MaxRetries disables retries", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, -1).Embed(context.Background(), "x")
		assert.ErrorContains(t, err, "503")
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("Canceled context stops retrying", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newTestClient(t, srv.URL, 3).Embed(ctx, "x")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 400*time.Millisecond, retryDelay(1))
	assert.Equal(t, 5*time.Second, retryDelay(10))
	assert.Equal(t, 5*time.Second, retryDelay(40))
	assert.Equal(t, 5*time.Second, retryDelay(1<<20))
}
