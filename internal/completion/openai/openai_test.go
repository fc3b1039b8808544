package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgrag/internal/domain"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	t.Setenv("TEST_CHAT_KEY", "sk-chat")
	c, err := NewClient(Config{BaseURL: url + "/", APIKeyEnv: "TEST_CHAT_KEY"})
	require.NoError(t, err)
	return c
}

func TestCompleteSendsSystemUserAndZeroTemperature(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-chat", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Scope 1 was 123 tCO2e."}}]}`))
	}))
	defer srv.Close()

	answer, err := newTestClient(t, srv.URL).Complete(context.Background(), domain.CompletionRequest{
		System: "sys", User: "usr", Tier: domain.TierAdvanced, Temperature: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, "Scope 1 was 123 tCO2e.", answer)

	assert.Equal(t, "gpt-4.1", got["model"])
	temp, ok := got["temperature"]
	require.True(t, ok, "temperature must be sent explicitly")
	assert.Equal(t, float64(0), temp)

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "sys", msgs[0].(map[string]any)["content"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestModelByTier(t *testing.T) {
	c := newTestClient(t, "http://example.invalid")
	assert.Equal(t, "gpt-4.1-mini", c.Model(domain.TierStandard))
	assert.Equal(t, "gpt-4.1", c.Model(domain.TierAdvanced))
	assert.Equal(t, "gpt-4.1-mini", c.Model(domain.Tier("unknown")))
}

func TestCompleteQuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"insufficient_quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), domain.CompletionRequest{User: "q"})
	var perr *domain.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, domain.StageComplete, perr.Stage)
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), domain.CompletionRequest{User: "q"})
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestCompleteCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(t, srv.URL).Complete(ctx, domain.CompletionRequest{User: "q"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.StageComplete, domain.StageOf(err))
}
