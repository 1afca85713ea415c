package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/lib/pq"

	"ally/pkg/errors"
	"ally/pkg/events"
)

const uniqueViolation = "23505"

// PostgresStore persists raw events and scored interactions. The connection
// pool is injected and owned by the caller's lifecycle.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateEventRaw(ctx context.Context, env *events.EventEnvelope) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events_raw (idempotency_key, tenant_id, platform, event_type, produced_at, source, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		env.IdempotencyKey, env.TenantID, env.Platform, env.Type, env.Timestamp, sourceJSON(env), []byte(env.Payload),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.DuplicateKey("event already recorded").WithCause(err)
		}
		return errors.Wrap(err, errors.KindTransport, "raw event insert failed")
	}
	return nil
}

func (s *PostgresStore) UpsertInteraction(ctx context.Context, key InteractionKey, fields InteractionFields) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions
			(platform, external_id, tenant_id, channel_id, author_id, content, final_score, breakdown, model_ids, scored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (platform, external_id)
		DO UPDATE SET
			content = EXCLUDED.content,
			final_score = EXCLUDED.final_score,
			breakdown = EXCLUDED.breakdown,
			model_ids = EXCLUDED.model_ids,
			scored_at = now()`,
		key.Platform, key.ExternalID, fields.TenantID, fields.ChannelID, fields.AuthorID,
		fields.Content, fields.FinalScore, fields.Breakdown, fields.ModelIDs,
	)
	if err != nil {
		return errors.Wrap(err, errors.KindTransport, "interaction upsert failed")
	}
	return nil
}

func sourceJSON(env *events.EventEnvelope) []byte {
	src, err := json.Marshal(env.Source)
	if err != nil {
		return []byte("{}")
	}
	return src
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
