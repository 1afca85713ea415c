package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ally/pkg/circuitbreaker"
	"ally/pkg/errors"
	"ally/pkg/metrics"
)

type ValueConfig struct {
	BaseURL string
	Timeout time.Duration
	// Settings are forwarded verbatim to the backend (model, temperature, ...).
	Settings map[string]interface{}
}

// ValueClient asks the RAG/LLM backend how valuable a message is to the
// community. The response body shape is not trusted; content is extracted
// defensively.
type ValueClient struct {
	baseURL  string
	client   *http.Client
	breaker  *circuitbreaker.Wrapper
	settings map[string]interface{}
}

func NewValueClient(cfg ValueConfig) *ValueClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ValueClient{
		baseURL:  cfg.BaseURL,
		client:   &http.Client{Timeout: timeout},
		breaker:  circuitbreaker.NewWrapper(circuitbreaker.DefaultConfig(NameValue)),
		settings: cfg.Settings,
	}
}

func (c *ValueClient) Name() string { return NameValue }

const valuePrompt = "Rate how valuable the following community message is on a scale from 0 to 1. Respond with only the number.\n\n"

func (c *ValueClient) Score(ctx context.Context, tenantID, text string) (*ValueResult, error) {
	res, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.score(ctx, tenantID, text)
	})
	if err != nil {
		metrics.SignalCallsTotal.WithLabelValues(NameValue, "error").Inc()
		return nil, classify(NameValue, err)
	}
	metrics.SignalCallsTotal.WithLabelValues(NameValue, "ok").Inc()
	return res.(*ValueResult), nil
}

func (c *ValueClient) score(ctx context.Context, tenantID, text string) (*ValueResult, error) {
	request := map[string]interface{}{
		"tenantId": tenantID,
		"messages": []map[string]string{
			{"role": "user", "content": valuePrompt + text},
		},
	}
	if len(c.settings) > 0 {
		request["settings"] = c.settings
	}

	encoded, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(encoded))
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
		return nil, errors.UpstreamSignal(NameValue, fmt.Sprintf("unexpected status %d", resp.StatusCode)).
			WithStatusCode(resp.StatusCode)
	}

	content, err := ExtractContent(body)
	if err != nil {
		return nil, err
	}
	score, err := ParseScore(content)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Model string `json:"model"`
	}
	_ = json.Unmarshal(body, &envelope)

	return &ValueResult{
		Score:   score,
		Content: content,
		Model:   envelope.Model,
		Raw:     body,
	}, nil
}
