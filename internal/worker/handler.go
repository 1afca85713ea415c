package worker

import (
	"context"
	"encoding/json"

	"ally/internal/logger"
	"ally/internal/persistence"
	"ally/internal/scoring"
	"ally/internal/stream"
	"ally/internal/uniqueness"
	"ally/pkg/errors"
	"ally/pkg/events"
	"ally/pkg/logging"
)

// UniquenessStore is the write side of the uniqueness scorer: once a message
// is scored it becomes a candidate neighbor for later messages.
type UniquenessStore interface {
	Upsert(ctx context.Context, messageID, text string, scope uniqueness.Scope) error
}

type Config struct {
	UniquenessWindowDays int
	ScoredTrim           stream.TrimPolicy
}

// Handler turns one delivered stream entry into a persisted scored
// interaction. It is invoked by the consume loop; any returned error routes
// the entry to the dead-letter stream.
type Handler struct {
	catalog      *events.Catalog
	orchestrator *scoring.Orchestrator
	store        persistence.Store
	uniqStore    UniquenessStore
	transport    *stream.Transport
	cfg          Config
	log          logger.Logger
}

func NewHandler(catalog *events.Catalog, orchestrator *scoring.Orchestrator, store persistence.Store, uniqStore UniquenessStore, transport *stream.Transport, cfg Config, log logger.Logger) *Handler {
	if cfg.UniquenessWindowDays <= 0 {
		cfg.UniquenessWindowDays = uniqueness.DefaultWindowDays
	}
	return &Handler{
		catalog:      catalog,
		orchestrator: orchestrator,
		store:        store,
		uniqStore:    uniqStore,
		transport:    transport,
		cfg:          cfg,
		log:          log,
	}
}

// Handle implements the stream.Handler contract.
func (h *Handler) Handle(ctx context.Context, entry stream.Entry) error {
	env, err := events.FromFields(entry.Fields)
	if err != nil {
		return err
	}

	ctx = logging.WithTenantID(ctx, env.TenantID)
	ctx = logging.WithMessageID(ctx, env.IdempotencyKey)

	payload, err := h.catalog.Decode(env)
	if err != nil {
		return err
	}

	// Record the raw event first; a duplicate key means this delivery is a
	// redelivery of something already recorded and processing continues.
	if err := h.store.CreateEventRaw(ctx, env); err != nil && !errors.IsDuplicateKey(err) {
		return err
	}

	switch p := payload.(type) {
	case *events.MessageCreated:
		return h.scoreMessage(ctx, env, p.ExternalID, p.AuthorID, p.Content)
	case *events.MessageUpdated:
		return h.scoreMessage(ctx, env, p.ExternalID, p.AuthorID, p.Content)
	case *events.ReactionAdded:
		// Reactions carry no scoreable text; the raw event record is enough.
		return nil
	default:
		return errors.Validation("no handler for event type")
	}
}

func (h *Handler) scoreMessage(ctx context.Context, env *events.EventEnvelope, externalID, authorID, content string) error {
	if content == "" {
		h.log.DebugwCtx(ctx, "Skipping empty message content", "external_id", externalID)
		return nil
	}

	result, err := h.orchestrator.Score(ctx, scoring.Request{
		Text:     content,
		TenantID: env.TenantID,
		Context: &scoring.RequestContext{
			Platform:  env.Platform,
			ChannelID: env.Source.ChannelID,
			AuthorID:  authorID,
			MessageID: externalID,
		},
	})
	if err != nil {
		return err
	}

	// Store the message as a future uniqueness neighbor after scoring, so a
	// message never competes against itself. The scope must carry the same
	// channel and author coordinates the scoring call uses, or later fetches
	// will never see this record.
	if h.uniqStore != nil {
		scope := uniqueness.Scope{
			TenantID:   env.TenantID,
			Platform:   env.Platform,
			ChannelID:  env.Source.ChannelID,
			AuthorID:   authorID,
			WindowDays: h.cfg.UniquenessWindowDays,
		}
		if err := h.uniqStore.Upsert(ctx, externalID, content, scope); err != nil {
			h.log.WarnwCtx(ctx, "Uniqueness upsert failed", "external_id", externalID, "error", err)
		}
	}

	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to encode breakdown")
	}
	modelIDs, err := json.Marshal(result.Metadata.ModelIDs)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to encode model ids")
	}

	key := persistence.InteractionKey{Platform: env.Platform, ExternalID: externalID}
	if err := h.store.UpsertInteraction(ctx, key, persistence.InteractionFields{
		TenantID:   env.TenantID,
		ChannelID:  env.Source.ChannelID,
		AuthorID:   authorID,
		Content:    content,
		FinalScore: result.FinalScore,
		Breakdown:  breakdown,
		ModelIDs:   modelIDs,
	}); err != nil {
		return err
	}

	if err := h.publishScored(ctx, env, externalID, result); err != nil {
		// The score is durably persisted; a scored-stream hiccup is not
		// worth a dead-letter round trip.
		h.log.WarnwCtx(ctx, "Scored stream publish failed", "external_id", externalID, "error", err)
	}
	return nil
}

func (h *Handler) publishScored(ctx context.Context, env *events.EventEnvelope, externalID string, result *scoring.CombinedScoringResult) error {
	if h.transport == nil {
		return nil
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to encode scoring result")
	}

	_, err = h.transport.Append(ctx, stream.ScoredKey(env.TenantID), map[string]interface{}{
		"tenant_id":       env.TenantID,
		"platform":        env.Platform,
		"external_id":     externalID,
		"idempotency_key": env.IdempotencyKey,
		"result":          string(encoded),
	}, h.cfg.ScoredTrim)
	return err
}
