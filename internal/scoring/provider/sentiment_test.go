package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ally/pkg/errors"
)

func TestSentimentClient_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/score", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "love this project", req["text"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"label": "positive",
			"score": 0.8,
			"probs": {"positive": 0.9, "negative": 0.05, "neutral": 0.05},
			"entities": [{"text": "project", "label": "MISC", "start": 10, "end": 17}],
			"model": {"sentiment": "distilbert-sst2", "ner": "bert-ner"}
		}`))
	}))
	defer srv.Close()

	client := NewSentimentClient(SentimentConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})

	res, err := client.Score(context.Background(), "love this project")
	require.NoError(t, err)
	assert.Equal(t, "positive", res.Label)
	assert.InDelta(t, 0.8, res.Score, 1e-9)
	assert.InDelta(t, 0.9, res.Probs["positive"], 1e-9)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "project", res.Entities[0].Text)
	assert.Equal(t, "distilbert-sst2", res.Model["sentiment"])
	assert.NotEmpty(t, res.Raw)
}

func TestSentimentClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewSentimentClient(SentimentConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})

	_, err := client.Score(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.IsUpstreamSignal(err))

	var appErr *errors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, NameSentiment, appErr.Provider)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.StatusCode)
}

func TestSentimentClient_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{invalid`))
	}))
	defer srv.Close()

	client := NewSentimentClient(SentimentConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})

	_, err := client.Score(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.IsUpstreamSignal(err))
}

func TestSentimentClient_ScoreBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/batch/score", r.URL.Path)

		var req struct {
			Texts []string `json:"texts"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Texts, 2)

		w.Write([]byte(`[{"label":"positive","score":0.7},{"label":"negative","score":-0.4}]`))
	}))
	defer srv.Close()

	client := NewSentimentClient(SentimentConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})

	results, err := client.ScoreBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "positive", results[0].Label)
	assert.InDelta(t, -0.4, results[1].Score, 1e-9)
}

func TestSentimentClient_ScoreBatchLimits(t *testing.T) {
	client := NewSentimentClient(SentimentConfig{BaseURL: "http://unused", MaxBatch: 2})

	_, err := client.ScoreBatch(context.Background(), nil)
	assert.True(t, errors.IsValidation(err))

	_, err = client.ScoreBatch(context.Background(), []string{"a", "b", "c"})
	assert.True(t, errors.IsValidation(err))
}
