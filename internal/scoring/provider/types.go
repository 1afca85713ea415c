package provider

import (
	"context"
	"encoding/json"
)

const (
	NameSentiment = "sentiment"
	NameValue     = "value"
)

// Entity is a named entity span returned by the sentiment backend.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// SentimentResult is the decoded sentiment backend response. Score is in
// [-1, 1] as produced by the model; normalization happens in the orchestrator.
type SentimentResult struct {
	Label    string             `json:"label"`
	Score    float64            `json:"score"`
	Probs    map[string]float64 `json:"probs"`
	Entities []Entity           `json:"entities"`
	Model    map[string]string  `json:"model"`
	Raw      json.RawMessage    `json:"-"`
}

// ValueResult is the decoded value backend response with the extracted
// numeric score in [0, 1].
type ValueResult struct {
	Score   float64
	Content string
	Model   string
	Raw     json.RawMessage
}

type SentimentProvider interface {
	Name() string
	Score(ctx context.Context, text string) (*SentimentResult, error)
}

type ValueProvider interface {
	Name() string
	Score(ctx context.Context, tenantID, text string) (*ValueResult, error)
}
