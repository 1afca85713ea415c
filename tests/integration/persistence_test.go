package integration

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ally/internal/persistence"
	"ally/pkg/errors"
)

func TestPostgresStore_CreateEventRaw_Idempotent(t *testing.T) {
	infra := SetupPostgres(t)

	ctx := context.Background()
	store := persistence.NewPostgresStore(infra.PostgresDB)

	env := testEnvelope(t, "m10", "stored once")
	require.NoError(t, store.CreateEventRaw(ctx, env))

	err := store.CreateEventRaw(ctx, env)
	require.Error(t, err)
	assert.True(t, errors.IsDuplicateKey(err))

	var count int
	require.NoError(t, infra.PostgresDB.QueryRowContext(ctx,
		`SELECT count(*) FROM events_raw WHERE idempotency_key = $1`, env.IdempotencyKey,
	).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPostgresStore_UpsertInteraction(t *testing.T) {
	infra := SetupPostgres(t)

	ctx := context.Background()
	store := persistence.NewPostgresStore(infra.PostgresDB)

	key := persistence.InteractionKey{Platform: "discord", ExternalID: "m11"}
	breakdown, _ := json.Marshal(map[string]float64{"sentiment": 0.36})
	modelIDs, _ := json.Marshal(map[string]string{"sentiment": "distilbert-sst2"})

	require.NoError(t, store.UpsertInteraction(ctx, key, persistence.InteractionFields{
		TenantID:   "acme",
		ChannelID:  "c1",
		AuthorID:   "a1",
		Content:    "original",
		FinalScore: 0.5,
		Breakdown:  breakdown,
		ModelIDs:   modelIDs,
	}))

	// Rescoring the same message updates in place.
	require.NoError(t, store.UpsertInteraction(ctx, key, persistence.InteractionFields{
		TenantID:   "acme",
		ChannelID:  "c1",
		AuthorID:   "a1",
		Content:    "edited content",
		FinalScore: 0.86,
		Breakdown:  breakdown,
		ModelIDs:   modelIDs,
	}))

	var content string
	var score float64
	var count int
	require.NoError(t, infra.PostgresDB.QueryRowContext(ctx,
		`SELECT content, final_score FROM interactions WHERE platform = $1 AND external_id = $2`,
		key.Platform, key.ExternalID,
	).Scan(&content, &score))
	assert.Equal(t, "edited content", content)
	assert.InDelta(t, 0.86, score, 1e-9)

	require.NoError(t, infra.PostgresDB.QueryRowContext(ctx,
		`SELECT count(*) FROM interactions`).Scan(&count))
	assert.Equal(t, 1, count)
}
