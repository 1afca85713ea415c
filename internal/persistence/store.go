package persistence

import (
	"context"

	"ally/pkg/events"
)

// InteractionKey is the natural identity a scored interaction is upserted
// under, so an "updated" event overwrites the prior score.
type InteractionKey struct {
	Platform   string
	ExternalID string
}

// InteractionFields are the derived values persisted per interaction.
type InteractionFields struct {
	TenantID   string
	ChannelID  string
	AuthorID   string
	Content    string
	FinalScore float64
	Breakdown  []byte
	ModelIDs   []byte
}

// Store is the persistence collaborator. CreateEventRaw fails with a
// duplicate-key kind when the idempotency key already exists; callers treat
// that as "already recorded", not as a failure.
type Store interface {
	CreateEventRaw(ctx context.Context, env *events.EventEnvelope) error
	UpsertInteraction(ctx context.Context, key InteractionKey, fields InteractionFields) error
}
