package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDeadLetter(t *testing.T) {
	firstFailed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	entry := Entry{
		Stream: DeadLetterKey("acme"),
		ID:     "1700000000000-0",
		Fields: map[string]interface{}{
			"source_stream":   "ally:ingest:v1:acme:discord",
			"source_entry_id": "1699999999999-0",
			"original":        `{"tenant_id":"acme","type":"message.created"}`,
			"error":           "sentiment: call timed out",
			"error_kind":      "UPSTREAM_SIGNAL",
			"first_failed_at": firstFailed.Format(time.RFC3339Nano),
			"attempts":        "2",
		},
	}

	dle, err := decodeDeadLetter(entry)
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-0", dle.ID)
	assert.Equal(t, "ally:ingest:v1:acme:discord", dle.SourceStream)
	assert.Equal(t, "1699999999999-0", dle.SourceEntryID)
	assert.Equal(t, "sentiment: call timed out", dle.Error)
	assert.Equal(t, "UPSTREAM_SIGNAL", dle.ErrorKind)
	assert.True(t, firstFailed.Equal(dle.FirstFailedAt))
	assert.Equal(t, 2, dle.Attempts)
	assert.Equal(t, "acme", dle.OriginalFields["tenant_id"])
}

func TestDecodeDeadLetter_MissingOriginal(t *testing.T) {
	_, err := decodeDeadLetter(Entry{
		ID:     "1-0",
		Fields: map[string]interface{}{"error": "boom"},
	})
	assert.Error(t, err)
}

func TestDecodeDeadLetter_BadOriginal(t *testing.T) {
	_, err := decodeDeadLetter(Entry{
		ID:     "1-0",
		Fields: map[string]interface{}{"original": "{not json"},
	})
	assert.Error(t, err)
}

func TestDecodeDeadLetter_BadTimestamp(t *testing.T) {
	_, err := decodeDeadLetter(Entry{
		ID: "1-0",
		Fields: map[string]interface{}{
			"original":        "{}",
			"first_failed_at": "yesterday",
		},
	})
	assert.Error(t, err)
}

func TestFieldHelpers(t *testing.T) {
	fields := map[string]interface{}{
		"s":     "hello",
		"n":     "3",
		"i":     7,
		"i64":   int64(8),
		"f":     float64(9),
		"badN":  "x",
		"other": struct{}{},
	}

	assert.Equal(t, "hello", fieldString(fields, "s"))
	assert.Equal(t, "", fieldString(fields, "missing"))
	assert.Equal(t, "", fieldString(fields, "i"))

	assert.Equal(t, 3, fieldInt(fields, "n"))
	assert.Equal(t, 7, fieldInt(fields, "i"))
	assert.Equal(t, 8, fieldInt(fields, "i64"))
	assert.Equal(t, 9, fieldInt(fields, "f"))
	assert.Equal(t, 0, fieldInt(fields, "badN"))
	assert.Equal(t, 0, fieldInt(fields, "missing"))
	assert.Equal(t, 0, fieldInt(fields, "other"))
}
