package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ally/pkg/errors"
)

func TestValueClient_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat", r.URL.Path)

		var req struct {
			TenantID string `json:"tenantId"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			Settings map[string]interface{} `json:"settings"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "acme", req.TenantID)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.True(t, strings.HasSuffix(req.Messages[0].Content, "is this helpful?"))
		assert.Equal(t, "gpt-4o-mini", req.Settings["model"])

		w.Write([]byte(`{"model":"gpt-4o-mini","content":"0.75"}`))
	}))
	defer srv.Close()

	client := NewValueClient(ValueConfig{
		BaseURL:  srv.URL,
		Timeout:  5 * time.Second,
		Settings: map[string]interface{}{"model": "gpt-4o-mini"},
	})

	res, err := client.Score(context.Background(), "acme", "is this helpful?")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, res.Score, 1e-9)
	assert.Equal(t, "0.75", res.Content)
	assert.Equal(t, "gpt-4o-mini", res.Model)
	assert.NotEmpty(t, res.Raw)
}

func TestValueClient_LooseResponseShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Score: 0.4"}}]}`))
	}))
	defer srv.Close()

	client := NewValueClient(ValueConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})

	res, err := client.Score(context.Background(), "acme", "hello")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, res.Score, 1e-9)
}

func TestValueClient_NoScoreInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":"I cannot rate this message."}`))
	}))
	defer srv.Close()

	client := NewValueClient(ValueConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})

	_, err := client.Score(context.Background(), "acme", "hello")
	require.Error(t, err)
	assert.True(t, errors.IsUpstreamSignal(err))
}

func TestValueClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewValueClient(ValueConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})

	_, err := client.Score(context.Background(), "acme", "hello")
	require.Error(t, err)

	var appErr *errors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, NameValue, appErr.Provider)
	assert.Equal(t, http.StatusTooManyRequests, appErr.StatusCode)
}
