package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ally/pkg/errors"
)

// SchemaVersion is the envelope schema tag stamped on every published event.
// Consumers reject envelopes whose major version differs.
const SchemaVersion = "v1"

// Source describes where on the platform the event originated. All fields are
// optional; a bare tenant-level event carries an empty Source.
type Source struct {
	GuildID   string `json:"guild_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// EventEnvelope is the unit of transport: one normalized platform event plus
// the routing coordinates the stream layer partitions on. Envelopes are
// immutable once appended; corrections arrive as new "updated" events.
type EventEnvelope struct {
	Version        string          `json:"version"`
	IdempotencyKey string          `json:"idempotency_key"`
	TenantID       string          `json:"tenant_id"`
	Platform       string          `json:"platform"`
	Type           string          `json:"type"`
	Timestamp      time.Time       `json:"ts"`
	Source         Source          `json:"source"`
	Payload        json.RawMessage `json:"payload"`
}

// NewEnvelope builds a v1 envelope around a payload. The idempotency key is
// derived from immutable identity fields of the payload, so rebuilding the
// envelope from the same source event always yields the same key.
func NewEnvelope(tenantID, platform string, src Source, p Payload, producedAt time.Time) (*EventEnvelope, error) {
	if tenantID == "" {
		return nil, errors.Validation("tenant id is required")
	}
	if platform == "" {
		return nil, errors.Validation("platform is required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to encode payload")
	}

	if producedAt.IsZero() {
		producedAt = time.Now().UTC()
	}

	return &EventEnvelope{
		Version:        SchemaVersion,
		IdempotencyKey: DeriveIdempotencyKey(tenantID, platform, p),
		TenantID:       tenantID,
		Platform:       platform,
		Type:           p.EventType(),
		Timestamp:      producedAt,
		Source:         src,
		Payload:        body,
	}, nil
}

// DeriveIdempotencyKey hashes the payload's identity under its routing
// coordinates. Redelivery of the same logical event reproduces the key.
func DeriveIdempotencyKey(tenantID, platform string, p Payload) string {
	sum := sha256.Sum256([]byte(tenantID + "|" + platform + "|" + p.EventType() + "|" + p.IdentityKey()))
	return hex.EncodeToString(sum[:])
}

// Validate checks the envelope invariants shared by all event types.
func (e *EventEnvelope) Validate() error {
	if err := CheckVersion(e.Version); err != nil {
		return err
	}
	if e.IdempotencyKey == "" {
		return errors.Validation("idempotency key is required")
	}
	if e.TenantID == "" {
		return errors.Validation("tenant id is required")
	}
	if e.Platform == "" {
		return errors.Validation("platform is required")
	}
	if e.Type == "" {
		return errors.Validation("event type is required")
	}
	if len(e.Payload) == 0 {
		return errors.Validation("payload is required")
	}
	return nil
}

// CheckVersion rejects envelopes from an unknown major schema version.
// "v1" and "v1.x" tags are accepted.
func CheckVersion(version string) error {
	major := version
	if i := strings.IndexByte(version, '.'); i >= 0 {
		major = version[:i]
	}
	if major != SchemaVersion {
		return errors.Validation(fmt.Sprintf("unsupported envelope version %q", version))
	}
	return nil
}

// Flatten encodes the envelope as the flat string record the stream layer
// appends. Structured sub-objects travel as JSON-encoded strings.
func (e *EventEnvelope) Flatten() (map[string]interface{}, error) {
	src, err := json.Marshal(e.Source)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to encode source")
	}

	return map[string]interface{}{
		"version":         e.Version,
		"idempotency_key": e.IdempotencyKey,
		"tenant_id":       e.TenantID,
		"platform":        e.Platform,
		"type":            e.Type,
		"ts":              e.Timestamp.UTC().Format(time.RFC3339Nano),
		"source":          string(src),
		"payload":         string(e.Payload),
	}, nil
}

// FromFields rebuilds an envelope from a flat stream record and validates it.
func FromFields(fields map[string]interface{}) (*EventEnvelope, error) {
	env := &EventEnvelope{
		Version:        stringField(fields, "version"),
		IdempotencyKey: stringField(fields, "idempotency_key"),
		TenantID:       stringField(fields, "tenant_id"),
		Platform:       stringField(fields, "platform"),
		Type:           stringField(fields, "type"),
	}

	if raw := stringField(fields, "ts"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindValidation, "invalid envelope timestamp")
		}
		env.Timestamp = ts
	}

	if raw := stringField(fields, "source"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &env.Source); err != nil {
			return nil, errors.Wrap(err, errors.KindValidation, "invalid envelope source")
		}
	}

	if raw := stringField(fields, "payload"); raw != "" {
		env.Payload = json.RawMessage(raw)
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

func stringField(fields map[string]interface{}, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
