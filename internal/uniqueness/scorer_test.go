package uniqueness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ally/internal/logger"
)

func testScope() Scope {
	return Scope{
		TenantID:   "acme",
		Platform:   "discord",
		ChannelID:  "c1",
		AuthorID:   "a1",
		WindowDays: 30,
		TopK:       10,
	}
}

func newMemoryScorer(t *testing.T) *Scorer {
	t.Helper()
	return NewScorerWithBackend(ScorerConfig{EmbeddingDim: 256, ShingleSize: 3}, NewMemoryBackend(), logger.NopLogger())
}

func TestScorer_NoHistoryIsMaximallyUnique(t *testing.T) {
	scorer := newMemoryScorer(t)

	res, err := scorer.Score(context.Background(), "a brand new thought", testScope())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Score, 1e-9)
	assert.Zero(t, res.MaxCosine)
	assert.Zero(t, res.MaxJaccard)
	assert.Zero(t, res.Neighbors)
	assert.Equal(t, "memory", res.Backend)
}

func TestScorer_NearDuplicateScoresNearZero(t *testing.T) {
	scorer := newMemoryScorer(t)
	ctx := context.Background()
	scope := testScope()

	text := "check out the new release notes for version two"
	require.NoError(t, scorer.Upsert(ctx, "m1", text, scope))

	res, err := scorer.Score(ctx, text, scope)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.Score, 1e-9)
	assert.InDelta(t, 1.0, res.MaxCosine, 1e-9)
	assert.InDelta(t, 1.0, res.MaxJaccard, 1e-9)
	assert.Equal(t, 1, res.Neighbors)
}

func TestScorer_UnrelatedTextStaysUnique(t *testing.T) {
	scorer := newMemoryScorer(t)
	ctx := context.Background()
	scope := testScope()

	require.NoError(t, scorer.Upsert(ctx, "m1", "deployment pipeline failed on staging again", scope))

	res, err := scorer.Score(ctx, "anyone up for lunch tacos today", scope)
	require.NoError(t, err)
	// No token overlap: lexical similarity is exactly zero and any cosine
	// similarity comes only from rare hash-bucket collisions.
	assert.Greater(t, res.Score, 0.7)
	assert.Zero(t, res.MaxJaccard)
}

func TestScorer_ScopeIsolation(t *testing.T) {
	scorer := newMemoryScorer(t)
	ctx := context.Background()

	text := "identical message in two places"
	require.NoError(t, scorer.Upsert(ctx, "m1", text, testScope()))

	otherChannel := testScope()
	otherChannel.ChannelID = "c2"

	res, err := scorer.Score(ctx, text, otherChannel)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Score, 1e-9)

	otherTenant := testScope()
	otherTenant.TenantID = "globex"
	res, err = scorer.Score(ctx, text, otherTenant)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Score, 1e-9)
}

func TestScorer_UpsertReplacesByMessageID(t *testing.T) {
	scorer := newMemoryScorer(t)
	ctx := context.Background()
	scope := testScope()

	require.NoError(t, scorer.Upsert(ctx, "m1", "original wording of the message", scope))
	require.NoError(t, scorer.Upsert(ctx, "m1", "completely different text after an edit", scope))

	res, err := scorer.Score(ctx, "original wording of the message", scope)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Neighbors)
	assert.Greater(t, res.Score, 0.5)
}

func TestScorer_TopKBoundsNeighbors(t *testing.T) {
	scorer := newMemoryScorer(t)
	ctx := context.Background()
	scope := testScope()
	scope.TopK = 2

	for i, text := range []string{
		"first stored message about kubernetes",
		"second stored message about gardening",
		"third stored message about databases",
		"fourth stored message about music",
	} {
		require.NoError(t, scorer.Upsert(ctx, string(rune('a'+i)), text, scope))
	}

	res, err := scorer.Score(ctx, "a message about kubernetes databases", scope)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Neighbors)
}

func TestScorer_InvalidScope(t *testing.T) {
	scorer := newMemoryScorer(t)
	ctx := context.Background()

	_, err := scorer.Score(ctx, "text", Scope{Platform: "discord", WindowDays: 30})
	assert.Error(t, err)

	err = scorer.Upsert(ctx, "m1", "text", Scope{TenantID: "acme", WindowDays: 30})
	assert.Error(t, err)

	_, err = scorer.Score(ctx, "text", Scope{TenantID: "acme", Platform: "discord"})
	assert.Error(t, err)
}
