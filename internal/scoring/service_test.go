package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ally/internal/logger"
	"ally/internal/scoring/provider"
	"ally/internal/uniqueness"
	"ally/pkg/errors"
)

type fakeSentiment struct {
	result *provider.SentimentResult
	err    error
	calls  int
}

func (f *fakeSentiment) Name() string { return provider.NameSentiment }

func (f *fakeSentiment) Score(ctx context.Context, text string) (*provider.SentimentResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeValue struct {
	result *provider.ValueResult
	err    error
	calls  int
}

func (f *fakeValue) Name() string { return provider.NameValue }

func (f *fakeValue) Score(ctx context.Context, tenantID, text string) (*provider.ValueResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeUniqueness struct {
	result *uniqueness.Result
	err    error
	scope  uniqueness.Scope
}

func (f *fakeUniqueness) Score(ctx context.Context, text string, scope uniqueness.Scope) (*uniqueness.Result, error) {
	f.scope = scope
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestOrchestrator(t *testing.T, sent *fakeSentiment, val *fakeValue, uniq UniquenessProvider, opts Options) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(sent, val, uniq, opts, logger.NopLogger())
	require.NoError(t, err)
	return o
}

func TestScore_WeightedCombination(t *testing.T) {
	sent := &fakeSentiment{result: &provider.SentimentResult{
		Label: "positive",
		Score: 0.8,
		Model: map[string]string{"sentiment": "distilbert-sst2"},
	}}
	val := &fakeValue{result: &provider.ValueResult{Score: 0.5, Model: "gpt-4o-mini"}}
	uniq := &fakeUniqueness{result: &uniqueness.Result{Score: 0.5, Backend: "memory"}}

	o := newTestOrchestrator(t, sent, val, uniq, Options{})

	res, err := o.Score(context.Background(), Request{Text: "great community work", TenantID: "acme"})
	require.NoError(t, err)

	// sentiment 0.8 normalizes to 0.9; (0.9*0.4 + 0.5*0.5 + 0.5*0.1) / 1.0
	assert.InDelta(t, 0.66, res.FinalScore, 1e-9)

	require.Contains(t, res.Breakdown, SignalSentiment)
	assert.InDelta(t, 0.9, res.Breakdown[SignalSentiment].Score, 1e-9)
	assert.InDelta(t, 0.4, res.Breakdown[SignalSentiment].Weight, 1e-9)
	assert.InDelta(t, 0.36, res.Breakdown[SignalSentiment].WeightedScore, 1e-9)

	require.Contains(t, res.Breakdown, SignalValue)
	assert.InDelta(t, 0.25, res.Breakdown[SignalValue].WeightedScore, 1e-9)

	require.Contains(t, res.Breakdown, SignalUniqueness)
	assert.InDelta(t, 0.05, res.Breakdown[SignalUniqueness].WeightedScore, 1e-9)

	assert.Equal(t, "distilbert-sst2", res.Metadata.ModelIDs["sentiment"])
	assert.Equal(t, "gpt-4o-mini", res.Metadata.ModelIDs["value"])
	assert.False(t, res.Metadata.Timestamp.IsZero())
}

func TestScore_RequestValidation(t *testing.T) {
	o := newTestOrchestrator(t, &fakeSentiment{result: &provider.SentimentResult{}}, &fakeValue{result: &provider.ValueResult{}}, nil, Options{})

	_, err := o.Score(context.Background(), Request{TenantID: "acme"})
	assert.True(t, errors.IsValidation(err))

	_, err = o.Score(context.Background(), Request{Text: "hello"})
	assert.True(t, errors.IsValidation(err))
}

func TestScore_RequiredSignalFailure(t *testing.T) {
	upstreamErr := errors.UpstreamSignal("sentiment", "call timed out")
	sent := &fakeSentiment{err: upstreamErr}
	val := &fakeValue{result: &provider.ValueResult{Score: 0.5}}

	o := newTestOrchestrator(t, sent, val, nil, Options{})

	_, err := o.Score(context.Background(), Request{Text: "hello", TenantID: "acme"})
	require.Error(t, err)
	assert.True(t, errors.IsUpstreamSignal(err))
}

func TestScore_UniquenessFailureTolerated(t *testing.T) {
	sent := &fakeSentiment{result: &provider.SentimentResult{Score: 0.8}}
	val := &fakeValue{result: &provider.ValueResult{Score: 0.5}}
	uniq := &fakeUniqueness{err: errors.Transport("store unavailable")}

	o := newTestOrchestrator(t, sent, val, uniq, Options{})

	res, err := o.Score(context.Background(), Request{Text: "hello", TenantID: "acme"})
	require.NoError(t, err)

	// Uniqueness drops out of both numerator and denominator.
	assert.NotContains(t, res.Breakdown, SignalUniqueness)
	expected := (0.9*0.4 + 0.5*0.5) / 0.9
	assert.InDelta(t, expected, res.FinalScore, 1e-9)
}

func TestScore_ZeroWeightSkipsSignal(t *testing.T) {
	sent := &fakeSentiment{result: &provider.SentimentResult{Score: 0.8}}
	val := &fakeValue{result: &provider.ValueResult{Score: 0.5}}

	o := newTestOrchestrator(t, sent, val, nil, Options{
		Config: Config{
			Weights:       Weights{Sentiment: 0, Value: 1, Uniqueness: 0},
			SignalTimeout: 5 * time.Second,
		},
	})

	res, err := o.Score(context.Background(), Request{Text: "hello", TenantID: "acme"})
	require.NoError(t, err)
	assert.Zero(t, sent.calls)
	assert.InDelta(t, 0.5, res.FinalScore, 1e-9)
	assert.NotContains(t, res.Breakdown, SignalSentiment)
}

func TestScore_UniquenessScopeFromRequestContext(t *testing.T) {
	sent := &fakeSentiment{result: &provider.SentimentResult{Score: 0}}
	val := &fakeValue{result: &provider.ValueResult{Score: 0.5}}
	uniq := &fakeUniqueness{result: &uniqueness.Result{Score: 1}}

	o := newTestOrchestrator(t, sent, val, uniq, Options{
		UniquenessWindowDays: 7,
		UniquenessTopK:       5,
	})

	_, err := o.Score(context.Background(), Request{
		Text:     "hello",
		TenantID: "acme",
		Context: &RequestContext{
			Platform:  "discord",
			ChannelID: "c1",
			AuthorID:  "a1",
			MessageID: "m1",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "acme", uniq.scope.TenantID)
	assert.Equal(t, "discord", uniq.scope.Platform)
	assert.Equal(t, "c1", uniq.scope.ChannelID)
	assert.Equal(t, "a1", uniq.scope.AuthorID)
	assert.Equal(t, 7, uniq.scope.WindowDays)
	assert.Equal(t, 5, uniq.scope.TopK)
}

func TestScore_CachesRepeatCalls(t *testing.T) {
	sent := &fakeSentiment{result: &provider.SentimentResult{Score: 0.8}}
	val := &fakeValue{result: &provider.ValueResult{Score: 0.5}}

	o := newTestOrchestrator(t, sent, val, nil, Options{})

	req := Request{Text: "same text", TenantID: "acme"}
	_, err := o.Score(context.Background(), req)
	require.NoError(t, err)
	_, err = o.Score(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, sent.calls)
	assert.Equal(t, 1, val.calls)
}

func TestUpdateConfig_RejectsNegativeWeight(t *testing.T) {
	o := newTestOrchestrator(t, &fakeSentiment{result: &provider.SentimentResult{}}, &fakeValue{result: &provider.ValueResult{}}, nil, Options{})

	before := o.GetConfig()

	negative := -0.2
	err := o.UpdateConfig(ConfigUpdate{Weights: WeightsUpdate{Value: &negative}})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidConfig(err))

	assert.Equal(t, before, o.GetConfig())
}

func TestUpdateConfig_PartialMerge(t *testing.T) {
	o := newTestOrchestrator(t, &fakeSentiment{result: &provider.SentimentResult{}}, &fakeValue{result: &provider.ValueResult{}}, nil, Options{})

	newValue := 0.7
	newTimeout := 30 * time.Second
	err := o.UpdateConfig(ConfigUpdate{
		Weights:       WeightsUpdate{Value: &newValue},
		SignalTimeout: &newTimeout,
	})
	require.NoError(t, err)

	cfg := o.GetConfig()
	assert.InDelta(t, 0.7, cfg.Weights.Value, 1e-9)
	assert.InDelta(t, 0.4, cfg.Weights.Sentiment, 1e-9)
	assert.Equal(t, newTimeout, cfg.SignalTimeout)
}

func TestUpdateConfig_RejectsNonPositiveTimeout(t *testing.T) {
	o := newTestOrchestrator(t, &fakeSentiment{result: &provider.SentimentResult{}}, &fakeValue{result: &provider.ValueResult{}}, nil, Options{})

	zero := time.Duration(0)
	err := o.UpdateConfig(ConfigUpdate{SignalTimeout: &zero})
	assert.True(t, errors.IsInvalidConfig(err))
}

func TestGetConfig_ReturnsCopy(t *testing.T) {
	o := newTestOrchestrator(t, &fakeSentiment{result: &provider.SentimentResult{}}, &fakeValue{result: &provider.ValueResult{}}, nil, Options{})

	cfg := o.GetConfig()
	cfg.Weights.Sentiment = 99

	assert.InDelta(t, 0.4, o.GetConfig().Weights.Sentiment, 1e-9)
}

func TestNewOrchestrator_RejectsInvalidConfig(t *testing.T) {
	_, err := NewOrchestrator(&fakeSentiment{}, &fakeValue{}, nil, Options{
		Config: Config{
			Weights:       Weights{Sentiment: -1, Value: 0.5, Uniqueness: 0.1},
			SignalTimeout: time.Second,
		},
	}, logger.NopLogger())
	assert.True(t, errors.IsInvalidConfig(err))
}

func TestCombine_AllWeightsZeroAtScoreTime(t *testing.T) {
	sent := &fakeSentiment{result: &provider.SentimentResult{Score: 0.8}}
	val := &fakeValue{result: &provider.ValueResult{Score: 0.5}}

	o := newTestOrchestrator(t, sent, val, nil, Options{})

	zero := 0.0
	require.NoError(t, o.UpdateConfig(ConfigUpdate{Weights: WeightsUpdate{
		Sentiment:  &zero,
		Value:      &zero,
		Uniqueness: &zero,
	}}))

	_, err := o.Score(context.Background(), Request{Text: "hello", TenantID: "acme"})
	assert.True(t, errors.IsInvalidConfig(err))
}
