package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treesum-io/treesum/internal/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:  "sk-test",
		BaseURL: srv.URL,
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	}, nil)
}

func TestInvokeSuccess(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "  a short summary  "}}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150}
		}`))
	})

	resp, err := client.Invoke(context.Background(), "summarize this", llm.Options{
		MaxOutputTokens: 500,
		Temperature:     0.2,
	})
	require.NoError(t, err)

	assert.Equal(t, "a short summary", resp.Content)
	require.NotNil(t, resp.Usage)
	billed, ok := resp.Usage.Billed()
	assert.True(t, ok)
	assert.Equal(t, 150, billed)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotBody["model"])
	assert.Equal(t, float64(500), gotBody["max_tokens"])
	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
}

func TestInvokeRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limit"}}`))
	})

	_, err := client.Invoke(context.Background(), "p", llm.Options{})
	require.Error(t, err)

	var perr *llm.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusTooManyRequests, perr.Status)
	assert.Equal(t, 3*time.Second, perr.RetryAfter)
	assert.True(t, perr.Transient())
}

func TestInvokeServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream exploded"))
	})

	_, err := client.Invoke(context.Background(), "p", llm.Options{})
	var perr *llm.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 500, perr.Status)
	assert.Zero(t, perr.RetryAfter)
	assert.Contains(t, perr.Body, "upstream exploded")
}

func TestInvokeClientErrorNotTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad model"}}`))
	})

	_, err := client.Invoke(context.Background(), "p", llm.Options{})
	var perr *llm.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 400, perr.Status)
	assert.False(t, perr.Transient())
}

func TestInvokeNoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	})

	_, err := client.Invoke(context.Background(), "p", llm.Options{})
	require.Error(t, err)
	var perr *llm.ProviderError
	assert.False(t, errors.As(err, &perr))
}

func TestInvokeMissingUsage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	})

	resp, err := client.Invoke(context.Background(), "p", llm.Options{})
	require.NoError(t, err)
	assert.Nil(t, resp.Usage)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, 1500*time.Millisecond, parseRetryAfter("1.5"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
	assert.Zero(t, parseRetryAfter("-2"))
}
