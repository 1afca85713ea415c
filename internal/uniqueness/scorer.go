package uniqueness

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"ally/internal/logger"
)

const (
	DefaultWindowDays = 30
	DefaultTopK       = 10
)

// Result carries the uniqueness score plus the similarity evidence behind it,
// so a combined scoring result stays auditable.
type Result struct {
	Score      float64
	MaxCosine  float64
	MaxJaccard float64
	Neighbors  int
	Backend    string
}

// Scorer estimates how novel a text is relative to recent same-scope text.
// Higher distance from the nearest neighbor means higher uniqueness.
type Scorer struct {
	embedder Embedder
	shingleN int
	backend  Backend
	log      logger.Logger
}

type ScorerConfig struct {
	EmbeddingDim int
	ShingleSize  int
}

// NewScorer selects the durable backend when a database is available and
// falls back to the in-memory backend otherwise, logging the degradation
// rather than failing startup.
func NewScorer(ctx context.Context, cfg ScorerConfig, db *sql.DB, log logger.Logger) *Scorer {
	var backend Backend
	if db != nil {
		pg, err := NewPostgresBackend(ctx, db)
		if err != nil {
			log.WarnwCtx(ctx, "Durable uniqueness backend unavailable, falling back to in-memory store", "error", err)
		} else {
			backend = pg
		}
	}
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return NewScorerWithBackend(cfg, backend, log)
}

func NewScorerWithBackend(cfg ScorerConfig, backend Backend, log logger.Logger) *Scorer {
	shingleN := cfg.ShingleSize
	if shingleN <= 0 {
		shingleN = DefaultShingleSize
	}
	return &Scorer{
		embedder: NewHashEmbedder(cfg.EmbeddingDim),
		shingleN: shingleN,
		backend:  backend,
		log:      log,
	}
}

func (s *Scorer) BackendName() string { return s.backend.Name() }

// Score ranks same-scope candidates by cosine similarity, takes the top K,
// and returns 1 - maxCosine clamped to [0, 1]. A message with no scoped
// history is maximally unique.
func (s *Scorer) Score(ctx context.Context, text string, scope Scope) (*Result, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	since := time.Now().UTC().AddDate(0, 0, -scope.WindowDays)
	candidates, err := s.backend.Fetch(ctx, scope, since)
	if err != nil {
		return nil, err
	}

	result := &Result{Score: 1, Backend: s.backend.Name()}
	if len(candidates) == 0 {
		return result, nil
	}

	vector := s.embedder.Embed(text)
	type ranked struct {
		rec    Record
		cosine float64
	}
	neighbors := make([]ranked, 0, len(candidates))
	for _, cand := range candidates {
		neighbors = append(neighbors, ranked{rec: cand, cosine: Cosine(vector, cand.Vector)})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].cosine > neighbors[j].cosine
	})

	topK := scope.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(neighbors) > topK {
		neighbors = neighbors[:topK]
	}

	shingles := Shingles(text, s.shingleN)
	for _, n := range neighbors {
		if n.cosine > result.MaxCosine {
			result.MaxCosine = n.cosine
		}
		if jac := Jaccard(shingles, n.rec.Shingles); jac > result.MaxJaccard {
			result.MaxJaccard = jac
		}
	}

	result.Neighbors = len(neighbors)
	result.Score = clampUnit(1 - result.MaxCosine)
	return result, nil
}

// Upsert stores or replaces the embedding and shingles for the message under
// the scope key, making it a candidate neighbor for later scoring calls.
func (s *Scorer) Upsert(ctx context.Context, messageID, text string, scope Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return s.backend.Upsert(ctx, scope, Record{
		MessageID: messageID,
		Vector:    s.embedder.Embed(text),
		Shingles:  Shingles(text, s.shingleN),
		StoredAt:  time.Now().UTC(),
	})
}

// Prune removes expired records when the backend supports bulk expiry.
// The in-memory backend expires lazily on fetch and reports zero here.
func (s *Scorer) Prune(ctx context.Context) (int64, error) {
	type pruner interface {
		PruneExpired(ctx context.Context) (int64, error)
	}
	if p, ok := s.backend.(pruner); ok {
		return p.PruneExpired(ctx)
	}
	return 0, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
