package uniqueness

import (
	"context"
	"sync"
	"time"

	"ally/pkg/metrics"
)

// MemoryBackend keeps records in process memory. Bounded by process lifetime;
// suitable for low volume and tests. Records older than the scope window are
// pruned opportunistically on fetch.
type MemoryBackend struct {
	mu     sync.RWMutex
	scopes map[string]map[string]Record
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{scopes: make(map[string]map[string]Record)}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Upsert(ctx context.Context, scope Scope, rec Record) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := scope.Key()
	records, ok := b.scopes[key]
	if !ok {
		records = make(map[string]Record)
		b.scopes[key] = records
	}
	records[rec.MessageID] = rec

	b.updateSizeMetricLocked()
	return nil
}

func (b *MemoryBackend) Fetch(ctx context.Context, scope Scope, since time.Time) ([]Record, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	records := b.scopes[scope.Key()]
	out := make([]Record, 0, len(records))
	for id, rec := range records {
		if rec.StoredAt.Before(since) {
			delete(records, id)
			continue
		}
		out = append(out, rec)
	}

	b.updateSizeMetricLocked()
	return out, nil
}

func (b *MemoryBackend) updateSizeMetricLocked() {
	total := 0
	for _, records := range b.scopes {
		total += len(records)
	}
	metrics.UniquenessStoreSize.WithLabelValues(b.Name()).Set(float64(total))
}
