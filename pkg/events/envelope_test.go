package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ally/pkg/errors"
)

func TestNewEnvelope(t *testing.T) {
	producedAt := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	payload := MessageCreated{
		ExternalID: "msg-100",
		AuthorID:   "author-1",
		Content:    "hello there",
		CreatedAt:  producedAt,
	}

	env, err := NewEnvelope("acme", "discord", Source{GuildID: "g1", ChannelID: "c1"}, payload, producedAt)
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, env.Version)
	assert.Equal(t, "acme", env.TenantID)
	assert.Equal(t, "discord", env.Platform)
	assert.Equal(t, TypeMessageCreated, env.Type)
	assert.Equal(t, producedAt, env.Timestamp)
	assert.NotEmpty(t, env.IdempotencyKey)
	assert.NoError(t, env.Validate())
}

func TestNewEnvelope_ValidationFailures(t *testing.T) {
	payload := MessageCreated{ExternalID: "msg-1", AuthorID: "a1"}

	_, err := NewEnvelope("", "discord", Source{}, payload, time.Time{})
	assert.True(t, errors.IsValidation(err))

	_, err = NewEnvelope("acme", "", Source{}, payload, time.Time{})
	assert.True(t, errors.IsValidation(err))

	_, err = NewEnvelope("acme", "discord", Source{}, MessageCreated{AuthorID: "a1"}, time.Time{})
	assert.True(t, errors.IsValidation(err))
}

func TestDeriveIdempotencyKey_Deterministic(t *testing.T) {
	payload := MessageCreated{ExternalID: "msg-42", AuthorID: "a1", Content: "first"}

	key1 := DeriveIdempotencyKey("acme", "discord", payload)

	// Mutable fields do not participate in the key.
	payload.Content = "second"
	key2 := DeriveIdempotencyKey("acme", "discord", payload)

	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 64)
}

func TestDeriveIdempotencyKey_VariesByIdentity(t *testing.T) {
	base := MessageCreated{ExternalID: "msg-42", AuthorID: "a1"}
	baseKey := DeriveIdempotencyKey("acme", "discord", base)

	assert.NotEqual(t, baseKey, DeriveIdempotencyKey("other", "discord", base))
	assert.NotEqual(t, baseKey, DeriveIdempotencyKey("acme", "slack", base))
	assert.NotEqual(t, baseKey, DeriveIdempotencyKey("acme", "discord", MessageCreated{ExternalID: "msg-43", AuthorID: "a1"}))
}

func TestDeriveIdempotencyKey_EditIsDistinctEvent(t *testing.T) {
	editedAt := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	created := MessageCreated{ExternalID: "msg-42", AuthorID: "a1"}
	updated := MessageUpdated{ExternalID: "msg-42", AuthorID: "a1", EditedAt: editedAt}
	updatedLater := MessageUpdated{ExternalID: "msg-42", AuthorID: "a1", EditedAt: editedAt.Add(time.Minute)}

	createdKey := DeriveIdempotencyKey("acme", "discord", created)
	updatedKey := DeriveIdempotencyKey("acme", "discord", updated)

	assert.NotEqual(t, createdKey, updatedKey)
	assert.NotEqual(t, updatedKey, DeriveIdempotencyKey("acme", "discord", updatedLater))
}

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, CheckVersion("v1"))
	assert.NoError(t, CheckVersion("v1.3"))
	assert.True(t, errors.IsValidation(CheckVersion("v2")))
	assert.True(t, errors.IsValidation(CheckVersion("")))
	assert.True(t, errors.IsValidation(CheckVersion("1")))
}

func TestFlattenRoundTrip(t *testing.T) {
	producedAt := time.Date(2026, 3, 14, 10, 30, 0, 123456789, time.UTC)
	payload := ReactionAdded{MessageExternalID: "msg-7", AuthorID: "a2", Emoji: "🔥"}

	env, err := NewEnvelope("acme", "discord", Source{GuildID: "g1", ThreadID: "t9"}, payload, producedAt)
	require.NoError(t, err)

	fields, err := env.Flatten()
	require.NoError(t, err)
	assert.Equal(t, "acme", fields["tenant_id"])
	assert.Equal(t, TypeReactionAdded, fields["type"])

	restored, err := FromFields(fields)
	require.NoError(t, err)
	assert.Equal(t, env.Version, restored.Version)
	assert.Equal(t, env.IdempotencyKey, restored.IdempotencyKey)
	assert.Equal(t, env.TenantID, restored.TenantID)
	assert.Equal(t, env.Platform, restored.Platform)
	assert.Equal(t, env.Type, restored.Type)
	assert.True(t, env.Timestamp.Equal(restored.Timestamp))
	assert.Equal(t, env.Source, restored.Source)
	assert.JSONEq(t, string(env.Payload), string(restored.Payload))
}

func TestFromFields_Invalid(t *testing.T) {
	_, err := FromFields(map[string]interface{}{
		"version": "v1",
	})
	assert.True(t, errors.IsValidation(err))

	_, err = FromFields(map[string]interface{}{
		"version":         "v2",
		"idempotency_key": "k",
		"tenant_id":       "acme",
		"platform":        "discord",
		"type":            TypeMessageCreated,
		"payload":         "{}",
	})
	assert.True(t, errors.IsValidation(err))

	_, err = FromFields(map[string]interface{}{
		"version":         "v1",
		"idempotency_key": "k",
		"tenant_id":       "acme",
		"platform":        "discord",
		"type":            TypeMessageCreated,
		"ts":              "not-a-timestamp",
		"payload":         "{}",
	})
	assert.True(t, errors.IsValidation(err))
}

func TestPayloadValidation(t *testing.T) {
	assert.Error(t, MessageCreated{AuthorID: "a1"}.Validate())
	assert.Error(t, MessageCreated{ExternalID: "m1"}.Validate())
	assert.NoError(t, MessageCreated{ExternalID: "m1", AuthorID: "a1"}.Validate())

	assert.Error(t, MessageUpdated{ExternalID: "m1", AuthorID: "a1"}.Validate())
	assert.NoError(t, MessageUpdated{ExternalID: "m1", AuthorID: "a1", EditedAt: time.Now()}.Validate())

	assert.Error(t, ReactionAdded{MessageExternalID: "m1", AuthorID: "a1"}.Validate())
	assert.NoError(t, ReactionAdded{MessageExternalID: "m1", AuthorID: "a1", Emoji: "👍"}.Validate())
}
