package stream

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"ally/internal/logger"
	"ally/pkg/errors"
	"ally/pkg/metrics"
)

// DeadLetterEntry is a failed entry held for inspection and replay. Created on
// unrecoverable processing failure, consumed only by replay tooling, deleted
// on successful requeue.
type DeadLetterEntry struct {
	ID             string
	SourceStream   string
	SourceEntryID  string
	OriginalFields map[string]interface{}
	Error          string
	ErrorKind      string
	FirstFailedAt  time.Time
	Attempts       int
}

// DeadLetter appends failed entries to the tenant's dead-letter stream and
// reads them back for the replay tooling.
type DeadLetter struct {
	transport *Transport
	trim      TrimPolicy
	log       logger.Logger
}

func NewDeadLetter(transport *Transport, trim TrimPolicy, log logger.Logger) *DeadLetter {
	return &DeadLetter{transport: transport, trim: trim, log: log}
}

// Send records the failed entry with the error attached. The attempt count
// carries across replays: a requeued entry that fails again arrives here with
// its prior attempts in the original fields.
func (d *DeadLetter) Send(ctx context.Context, entry Entry, cause error) error {
	tenantID := fieldString(entry.Fields, "tenant_id")
	if tenantID == "" {
		tenantID = "unknown"
	}

	original, err := json.Marshal(entry.Fields)
	if err != nil {
		return errors.Wrap(err, errors.KindTransport, "failed to encode dead-letter original fields")
	}

	attempts := fieldInt(entry.Fields, "attempts") + 1
	firstFailedAt := fieldString(entry.Fields, "first_failed_at")
	if firstFailedAt == "" {
		firstFailedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	kind := string(errors.KindOf(cause))
	fields := map[string]interface{}{
		"source_stream":   entry.Stream.String(),
		"source_entry_id": entry.ID,
		"original":        string(original),
		"error":           cause.Error(),
		"error_kind":      kind,
		"first_failed_at": firstFailedAt,
		"attempts":        strconv.Itoa(attempts),
	}

	if _, err := d.transport.Append(ctx, DeadLetterKey(tenantID), fields, d.trim); err != nil {
		return err
	}

	metrics.DeadLetterTotal.WithLabelValues(kind).Inc()
	d.log.WarnwCtx(ctx, "Entry redirected to dead-letter",
		"source_stream", entry.Stream.String(),
		"entry_id", entry.ID,
		"error_kind", kind,
		"attempts", attempts,
	)
	return nil
}

// List returns up to limit dead-letter entries for the tenant, oldest first,
// optionally filtered by an error-message substring.
func (d *DeadLetter) List(ctx context.Context, tenantID, errorFilter string, limit int64) ([]DeadLetterEntry, error) {
	if limit <= 0 {
		limit = 1000
	}

	raw, err := d.transport.Range(ctx, DeadLetterKey(tenantID), "-", "+", limit)
	if err != nil {
		return nil, err
	}

	entries := make([]DeadLetterEntry, 0, len(raw))
	for _, e := range raw {
		dle, err := decodeDeadLetter(e)
		if err != nil {
			d.log.WarnwCtx(ctx, "Skipping undecodable dead-letter entry", "entry_id", e.ID, "error", err)
			continue
		}
		if errorFilter != "" && !strings.Contains(dle.Error, errorFilter) {
			continue
		}
		entries = append(entries, dle)
	}
	return entries, nil
}

// Delete removes a dead-letter entry after successful reprocessing.
func (d *DeadLetter) Delete(ctx context.Context, tenantID string, id string) error {
	return d.transport.Delete(ctx, DeadLetterKey(tenantID), id)
}

func decodeDeadLetter(e Entry) (DeadLetterEntry, error) {
	dle := DeadLetterEntry{
		ID:            e.ID,
		SourceStream:  fieldString(e.Fields, "source_stream"),
		SourceEntryID: fieldString(e.Fields, "source_entry_id"),
		Error:         fieldString(e.Fields, "error"),
		ErrorKind:     fieldString(e.Fields, "error_kind"),
		Attempts:      fieldInt(e.Fields, "attempts"),
	}

	if raw := fieldString(e.Fields, "first_failed_at"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return DeadLetterEntry{}, errors.Wrap(err, errors.KindValidation, "invalid first_failed_at")
		}
		dle.FirstFailedAt = ts
	}

	raw := fieldString(e.Fields, "original")
	if raw == "" {
		return DeadLetterEntry{}, errors.Validation("dead-letter entry missing original fields")
	}
	if err := json.Unmarshal([]byte(raw), &dle.OriginalFields); err != nil {
		return DeadLetterEntry{}, errors.Wrap(err, errors.KindValidation, "invalid original fields")
	}
	return dle, nil
}

func fieldString(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func fieldInt(fields map[string]interface{}, key string) int {
	switch v := fields[key].(type) {
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
