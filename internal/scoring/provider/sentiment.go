package provider

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ally/pkg/circuitbreaker"
	"ally/pkg/errors"
	"ally/pkg/metrics"
)

const defaultMaxBatch = 64

type SentimentConfig struct {
	BaseURL  string
	Timeout  time.Duration
	MaxBatch int
}

// SentimentClient talks to the sentiment classification service. The HTTP
// client is constructed here and shut down with the process; no shared
// global state.
type SentimentClient struct {
	baseURL  string
	client   *http.Client
	breaker  *circuitbreaker.Wrapper
	maxBatch int
}

func NewSentimentClient(cfg SentimentConfig) *SentimentClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	return &SentimentClient{
		baseURL:  cfg.BaseURL,
		client:   &http.Client{Timeout: timeout},
		breaker:  circuitbreaker.NewWrapper(circuitbreaker.DefaultConfig(NameSentiment)),
		maxBatch: maxBatch,
	}
}

func (c *SentimentClient) Name() string { return NameSentiment }

func (c *SentimentClient) Score(ctx context.Context, text string) (*SentimentResult, error) {
	res, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.score(ctx, text)
	})
	if err != nil {
		metrics.SignalCallsTotal.WithLabelValues(NameSentiment, "error").Inc()
		return nil, classify(NameSentiment, err)
	}
	metrics.SignalCallsTotal.WithLabelValues(NameSentiment, "ok").Inc()
	return res.(*SentimentResult), nil
}

// ScoreBatch scores up to MaxBatch texts in one round trip, mirroring the
// backend's batch endpoint cap.
func (c *SentimentClient) ScoreBatch(ctx context.Context, texts []string) ([]SentimentResult, error) {
	if len(texts) == 0 {
		return nil, errors.Validation("at least one text is required")
	}
	if len(texts) > c.maxBatch {
		return nil, errors.Validation(fmt.Sprintf("batch size %d exceeds maximum %d", len(texts), c.maxBatch))
	}

	res, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		body, err := c.post(ctx, "/batch/score", map[string]interface{}{"texts": texts})
		if err != nil {
			return nil, err
		}
		var results []SentimentResult
		if err := json.Unmarshal(body, &results); err != nil {
			return nil, errors.Wrap(err, errors.KindUpstreamSignal, "malformed batch response")
		}
		return results, nil
	})
	if err != nil {
		metrics.SignalCallsTotal.WithLabelValues(NameSentiment, "error").Inc()
		return nil, classify(NameSentiment, err)
	}
	metrics.SignalCallsTotal.WithLabelValues(NameSentiment, "ok").Inc()
	return res.([]SentimentResult), nil
}

func (c *SentimentClient) score(ctx context.Context, text string) (*SentimentResult, error) {
	body, err := c.post(ctx, "/score", map[string]interface{}{"text": text})
	if err != nil {
		return nil, err
	}

	var result SentimentResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, errors.KindUpstreamSignal, "malformed sentiment response")
	}
	result.Raw = body
	return &result, nil
}

func (c *SentimentClient) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUpstreamSignal, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.UpstreamSignal(NameSentiment, fmt.Sprintf("unexpected status %d", resp.StatusCode)).
			WithStatusCode(resp.StatusCode)
	}
	return body, nil
}

// classify maps transport-level failures onto the upstream-signal error kind,
// preserving a structured error object for the caller.
func classify(providerName string, err error) error {
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		if appErr.Provider == "" {
			withProvider := *appErr
			withProvider.Provider = providerName
			return &withProvider
		}
		return appErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.UpstreamSignal(providerName, "call timed out").WithCause(err)
	}
	return errors.UpstreamSignal(providerName, "call failed").WithCause(err)
}
