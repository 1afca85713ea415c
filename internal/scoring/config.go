package scoring

import (
	"sync"
	"time"

	"ally/pkg/errors"
)

// Weights are the per-signal contributions to the weighted mean. Negative
// weights are rejected at update time; a zero weight disables the signal.
type Weights struct {
	Sentiment  float64 `json:"sentiment"`
	Value      float64 `json:"value"`
	Uniqueness float64 `json:"uniqueness"`
}

type Config struct {
	Weights       Weights       `json:"weights"`
	SignalTimeout time.Duration `json:"signal_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Weights:       Weights{Sentiment: 0.4, Value: 0.5, Uniqueness: 0.1},
		SignalTimeout: 15 * time.Second,
	}
}

// WeightsUpdate is a partial weights change; nil fields keep their current
// value.
type WeightsUpdate struct {
	Sentiment  *float64 `json:"sentiment,omitempty"`
	Value      *float64 `json:"value,omitempty"`
	Uniqueness *float64 `json:"uniqueness,omitempty"`
}

type ConfigUpdate struct {
	Weights       WeightsUpdate  `json:"weights"`
	SignalTimeout *time.Duration `json:"signal_timeout,omitempty"`
}

// configHolder guards the effective configuration with validate-then-swap
// semantics: an invalid update leaves the prior config untouched.
type configHolder struct {
	mu  sync.RWMutex
	cfg Config
}

func newConfigHolder(cfg Config) *configHolder {
	return &configHolder{cfg: cfg}
}

func (h *configHolder) get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

func (h *configHolder) update(partial ConfigUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	merged := h.cfg
	if partial.Weights.Sentiment != nil {
		merged.Weights.Sentiment = *partial.Weights.Sentiment
	}
	if partial.Weights.Value != nil {
		merged.Weights.Value = *partial.Weights.Value
	}
	if partial.Weights.Uniqueness != nil {
		merged.Weights.Uniqueness = *partial.Weights.Uniqueness
	}
	if partial.SignalTimeout != nil {
		merged.SignalTimeout = *partial.SignalTimeout
	}

	if err := validate(merged); err != nil {
		return err
	}

	h.cfg = merged
	return nil
}

func validate(cfg Config) error {
	if cfg.Weights.Sentiment < 0 || cfg.Weights.Value < 0 || cfg.Weights.Uniqueness < 0 {
		return errors.InvalidConfig("all weights must be non-negative")
	}
	if cfg.SignalTimeout <= 0 {
		return errors.InvalidConfig("signal timeout must be positive")
	}
	return nil
}
