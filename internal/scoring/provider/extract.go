package provider

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"ally/pkg/errors"
)

// Upstream value backends disagree on response shape. ExtractContent tries
// the strict {"content": ...} schema first and only then falls back to a
// best-effort structural scan for the first plausible string field. The
// fallback is explicit and tested, not implicit probing.
func ExtractContent(raw []byte) (string, error) {
	var strict struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &strict); err == nil && strict.Content != "" {
		return strict.Content, nil
	}

	var loose interface{}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return "", errors.Wrap(err, errors.KindUpstreamSignal, "response is not valid JSON")
	}

	if content, ok := scanForContent(loose); ok {
		return content, nil
	}
	return "", errors.New(errors.KindUpstreamSignal, "no content field found in response")
}

// metadataKeys are string fields that never hold the answer body.
var metadataKeys = map[string]struct{}{
	"model":         {},
	"id":            {},
	"object":        {},
	"role":          {},
	"finish_reason": {},
	"created":       {},
	"type":          {},
}

// preferredKeys are checked first at every level, in order.
var preferredKeys = []string{"content", "text", "output", "answer", "message", "response"}

func scanForContent(node interface{}) (string, bool) {
	switch v := node.(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return v, true
		}
	case map[string]interface{}:
		for _, key := range preferredKeys {
			if child, ok := v[key]; ok {
				if content, found := scanForContent(child); found {
					return content, true
				}
			}
		}
		// Deterministic fallback order over the remaining keys.
		keys := make([]string, 0, len(v))
		for key := range v {
			if _, skip := metadataKeys[key]; skip {
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if content, found := scanForContent(v[key]); found {
				return content, true
			}
		}
	case []interface{}:
		for _, child := range v {
			if content, found := scanForContent(child); found {
				return content, true
			}
		}
	}
	return "", false
}

// ParseScore interprets the extracted content as a numeric score in [0, 1].
// The backend is prompted to answer with a bare number, but a leading number
// inside a short sentence is accepted too.
func ParseScore(content string) (float64, error) {
	trimmed := strings.TrimSpace(content)
	if s, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return clamp01(s), nil
	}

	for _, token := range strings.Fields(trimmed) {
		token = strings.Trim(token, ".,;:!?()[]")
		if s, err := strconv.ParseFloat(token, 64); err == nil {
			return clamp01(s), nil
		}
	}
	return 0, errors.New(errors.KindUpstreamSignal, "content does not contain a numeric score")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
