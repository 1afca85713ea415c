package scoring

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"ally/internal/logger"
	"ally/internal/scoring/provider"
	"ally/internal/uniqueness"
	"ally/pkg/errors"
	"ally/pkg/metrics"
)

// UniquenessProvider is the narrow surface the orchestrator needs from the
// uniqueness scorer.
type UniquenessProvider interface {
	Score(ctx context.Context, text string, scope uniqueness.Scope) (*uniqueness.Result, error)
}

type Options struct {
	Config               Config
	MaxConcurrentCalls   int64
	CacheSize            int
	UniquenessWindowDays int
	UniquenessTopK       int
}

// Orchestrator fans out to the independent signal providers, applies the
// weighted combination under the current validated configuration, and
// returns one reproducible result per request. Sentiment and value are
// required signals; uniqueness is best-effort.
type Orchestrator struct {
	sentiment provider.SentimentProvider
	value     provider.ValueProvider
	uniq      UniquenessProvider

	holder     *configHolder
	sem        *semaphore.Weighted
	cache      *resultCache
	windowDays int
	topK       int
	log        logger.Logger
}

func NewOrchestrator(sentiment provider.SentimentProvider, value provider.ValueProvider, uniq UniquenessProvider, opts Options, log logger.Logger) (*Orchestrator, error) {
	cfg := opts.Config
	if cfg.SignalTimeout <= 0 {
		cfg = DefaultConfig()
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	maxCalls := opts.MaxConcurrentCalls
	if maxCalls <= 0 {
		maxCalls = 32
	}
	windowDays := opts.UniquenessWindowDays
	if windowDays <= 0 {
		windowDays = uniqueness.DefaultWindowDays
	}
	topK := opts.UniquenessTopK
	if topK <= 0 {
		topK = uniqueness.DefaultTopK
	}

	return &Orchestrator{
		sentiment:  sentiment,
		value:      value,
		uniq:       uniq,
		holder:     newConfigHolder(cfg),
		sem:        semaphore.NewWeighted(maxCalls),
		cache:      newResultCache(opts.CacheSize),
		windowDays: windowDays,
		topK:       topK,
		log:        log,
	}, nil
}

// GetConfig returns a snapshot of the effective configuration. Mutating the
// returned value does not affect orchestrator state.
func (o *Orchestrator) GetConfig() Config {
	return o.holder.get()
}

// UpdateConfig merges a partial update into the current configuration,
// validating atomically. Invalid updates are rejected without mutating state.
func (o *Orchestrator) UpdateConfig(partial ConfigUpdate) error {
	return o.holder.update(partial)
}

// Score produces one combined result. All required signal calls run
// concurrently; total latency is bounded by the slowest required call.
func (o *Orchestrator) Score(ctx context.Context, req Request) (*CombinedScoringResult, error) {
	if req.Text == "" {
		return nil, errors.Validation("text is required")
	}
	if req.TenantID == "" {
		return nil, errors.Validation("tenant id is required")
	}

	cfg := o.holder.get()
	start := time.Now()

	var (
		sentRes *provider.SentimentResult
		valRes  *provider.ValueResult
		uniqRes *uniqueness.Result
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Weights.Sentiment > 0 {
		g.Go(func() error {
			res, err := o.callSentiment(gctx, cfg, req.Text)
			if err != nil {
				return err
			}
			sentRes = res
			return nil
		})
	}

	if cfg.Weights.Value > 0 {
		g.Go(func() error {
			res, err := o.callValue(gctx, cfg, req.TenantID, req.Text)
			if err != nil {
				return err
			}
			valRes = res
			return nil
		})
	}

	if cfg.Weights.Uniqueness > 0 && o.uniq != nil {
		g.Go(func() error {
			res, err := o.callUniqueness(gctx, cfg, req)
			if err != nil {
				// Best-effort signal: excluded from the combination on
				// failure instead of failing the whole request.
				o.log.WarnwCtx(gctx, "Uniqueness signal unavailable, excluding from combination", "error", err)
				return nil
			}
			uniqRes = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		metrics.ObserveScoreDuration(time.Since(start), "error")
		return nil, err
	}

	result, err := o.combine(cfg, sentRes, valRes, uniqRes, start)
	if err != nil {
		metrics.ObserveScoreDuration(time.Since(start), "error")
		return nil, err
	}
	metrics.ObserveScoreDuration(time.Since(start), "ok")
	return result, nil
}

func (o *Orchestrator) callSentiment(ctx context.Context, cfg Config, text string) (*provider.SentimentResult, error) {
	if cached, ok := o.cache.get(provider.NameSentiment, text); ok {
		return cached.(*provider.SentimentResult), nil
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, errors.KindUpstreamSignal, "concurrency limiter wait aborted")
	}
	defer o.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, cfg.SignalTimeout)
	defer cancel()

	res, err := o.sentiment.Score(callCtx, text)
	if err != nil {
		return nil, err
	}
	o.cache.put(provider.NameSentiment, text, res)
	return res, nil
}

func (o *Orchestrator) callValue(ctx context.Context, cfg Config, tenantID, text string) (*provider.ValueResult, error) {
	cacheText := tenantID + "|" + text
	if cached, ok := o.cache.get(provider.NameValue, cacheText); ok {
		return cached.(*provider.ValueResult), nil
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, errors.KindUpstreamSignal, "concurrency limiter wait aborted")
	}
	defer o.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, cfg.SignalTimeout)
	defer cancel()

	res, err := o.value.Score(callCtx, tenantID, text)
	if err != nil {
		return nil, err
	}
	o.cache.put(provider.NameValue, cacheText, res)
	return res, nil
}

func (o *Orchestrator) callUniqueness(ctx context.Context, cfg Config, req Request) (*uniqueness.Result, error) {
	scope := uniqueness.Scope{
		TenantID:   req.TenantID,
		WindowDays: o.windowDays,
		TopK:       o.topK,
	}
	if req.Context != nil {
		scope.Platform = req.Context.Platform
		scope.ChannelID = req.Context.ChannelID
		scope.AuthorID = req.Context.AuthorID
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.SignalTimeout)
	defer cancel()

	return o.uniq.Score(callCtx, req.Text, scope)
}

// combine computes the weighted mean over the available signals with weight
// greater than zero. Sentiment arrives in [-1, 1] and is rescaled to [0, 1]
// before weighting; value and uniqueness are already unit-interval.
func (o *Orchestrator) combine(cfg Config, sentRes *provider.SentimentResult, valRes *provider.ValueResult, uniqRes *uniqueness.Result, start time.Time) (*CombinedScoringResult, error) {
	type signal struct {
		name   string
		score  float64
		weight float64
	}

	var signals []signal
	if sentRes != nil {
		signals = append(signals, signal{SignalSentiment, (sentRes.Score + 1) / 2, cfg.Weights.Sentiment})
	}
	if valRes != nil {
		signals = append(signals, signal{SignalValue, valRes.Score, cfg.Weights.Value})
	}
	if uniqRes != nil {
		signals = append(signals, signal{SignalUniqueness, uniqRes.Score, cfg.Weights.Uniqueness})
	}

	var totalWeight float64
	for _, s := range signals {
		totalWeight += s.weight
	}
	if totalWeight <= 0 {
		return nil, errors.InvalidConfig("no signals with positive weight available")
	}

	breakdown := make(map[string]SignalBreakdown, len(signals))
	var weightedSum float64
	for _, s := range signals {
		weighted := s.score * s.weight
		weightedSum += weighted
		breakdown[s.name] = SignalBreakdown{
			Score:         s.score,
			Weight:        s.weight,
			WeightedScore: weighted,
		}
	}

	modelIDs := make(map[string]string)
	if sentRes != nil {
		for name, id := range sentRes.Model {
			modelIDs[name] = id
		}
	}
	if valRes != nil && valRes.Model != "" {
		modelIDs[SignalValue] = valRes.Model
	}

	raw := make(map[string]json.RawMessage)
	if sentRes != nil && len(sentRes.Raw) > 0 {
		raw[SignalSentiment] = sentRes.Raw
	}
	if valRes != nil && len(valRes.Raw) > 0 {
		raw[SignalValue] = valRes.Raw
	}
	if uniqRes != nil {
		if encoded, err := json.Marshal(uniqRes); err == nil {
			raw[SignalUniqueness] = encoded
		}
	}

	return &CombinedScoringResult{
		FinalScore: weightedSum / totalWeight,
		Breakdown:  breakdown,
		Metadata: Metadata{
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			Timestamp:        time.Now().UTC(),
			ModelIDs:         modelIDs,
		},
		RawResponses: raw,
	}, nil
}
