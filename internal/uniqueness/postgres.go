package uniqueness

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"ally/pkg/errors"
)

// PostgresBackend is the durable store for production scale. Scope fields are
// caller-supplied and treated as untrusted input: every query is
// parameterized, never assembled from strings.
type PostgresBackend struct {
	db *sql.DB
}

func NewPostgresBackend(ctx context.Context, db *sql.DB) (*PostgresBackend, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, errors.KindTransport, "uniqueness store unreachable")
	}
	return &PostgresBackend{db: db}, nil
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) Upsert(ctx context.Context, scope Scope, rec Record) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	storedAt := rec.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO uniqueness_vectors
			(tenant_id, platform, channel_key, author_key, window_days, message_id, vector, shingles, stored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, platform, channel_key, author_key, window_days, message_id)
		DO UPDATE SET vector = EXCLUDED.vector, shingles = EXCLUDED.shingles, stored_at = EXCLUDED.stored_at`,
		scope.TenantID, scope.Platform, scope.channelKey(), scope.authorKey(), scope.WindowDays,
		rec.MessageID, pq.Array(rec.Vector), pq.Array(rec.Shingles), storedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.KindTransport, "uniqueness upsert failed")
	}
	return nil
}

func (b *PostgresBackend) Fetch(ctx context.Context, scope Scope, since time.Time) ([]Record, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT message_id, vector, shingles, stored_at
		FROM uniqueness_vectors
		WHERE tenant_id = $1 AND platform = $2 AND channel_key = $3 AND author_key = $4
			AND window_days = $5 AND stored_at >= $6`,
		scope.TenantID, scope.Platform, scope.channelKey(), scope.authorKey(), scope.WindowDays, since,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransport, "uniqueness fetch failed")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var vector pq.Float64Array
		var shingles pq.StringArray
		if err := rows.Scan(&rec.MessageID, &vector, &shingles, &rec.StoredAt); err != nil {
			return nil, errors.Wrap(err, errors.KindTransport, "uniqueness row scan failed")
		}
		rec.Vector = []float64(vector)
		rec.Shingles = []string(shingles)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.KindTransport, "uniqueness fetch failed")
	}
	return records, nil
}

// PruneExpired deletes records older than the scope window across all scopes.
// Run periodically by the worker.
func (b *PostgresBackend) PruneExpired(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx, `
		DELETE FROM uniqueness_vectors
		WHERE stored_at < now() - (window_days * interval '1 day')`)
	if err != nil {
		return 0, errors.Wrap(err, errors.KindTransport, "uniqueness prune failed")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
