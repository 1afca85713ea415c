package uniqueness

import (
	"context"
	"time"
)

// Record is one stored message representation inside a scope.
type Record struct {
	MessageID string
	Vector    []float64
	Shingles  []string
	StoredAt  time.Time
}

// Backend stores and retrieves records per scope key. Implementations must
// replace on re-upsert of the same message id (last write wins) and must only
// return records whose StoredAt falls after the cutoff.
type Backend interface {
	Name() string
	Upsert(ctx context.Context, scope Scope, rec Record) error
	Fetch(ctx context.Context, scope Scope, since time.Time) ([]Record, error)
}
