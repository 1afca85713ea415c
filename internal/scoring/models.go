package scoring

import (
	"encoding/json"
	"time"
)

const (
	SignalSentiment  = "sentiment"
	SignalValue      = "value"
	SignalUniqueness = "uniqueness"
)

// Request is the ephemeral input to one combined score call. Context narrows
// the uniqueness comparison neighborhood; nil means tenant-wide.
type Request struct {
	Text     string
	TenantID string
	Context  *RequestContext
}

type RequestContext struct {
	Platform  string
	ChannelID string
	AuthorID  string
	MessageID string
}

// SignalBreakdown is one signal's contribution to the final score.
type SignalBreakdown struct {
	Score         float64 `json:"score"`
	Weight        float64 `json:"weight"`
	WeightedScore float64 `json:"weighted_score"`
}

// Metadata makes a result reproducible and auditable.
type Metadata struct {
	ProcessingTimeMs int64             `json:"processing_time_ms"`
	Timestamp        time.Time         `json:"timestamp"`
	ModelIDs         map[string]string `json:"model_ids,omitempty"`
}

// CombinedScoringResult is immutable once constructed; safe to persist and
// replay.
type CombinedScoringResult struct {
	FinalScore   float64                    `json:"final_score"`
	Breakdown    map[string]SignalBreakdown `json:"breakdown"`
	Metadata     Metadata                   `json:"metadata"`
	RawResponses map[string]json.RawMessage `json:"raw_responses,omitempty"`
}
