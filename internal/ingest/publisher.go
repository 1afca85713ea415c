package ingest

import (
	"context"

	"ally/internal/logger"
	"ally/internal/stream"
	"ally/pkg/errors"
	"ally/pkg/events"
)

// Publisher is what platform adapters call to hand a normalized envelope to
// the pipeline.
type Publisher interface {
	Publish(ctx context.Context, env *events.EventEnvelope) error
}

// ErrFiltered is returned when the gate drops an event on purpose. Adapters
// treat it as a normal outcome, not a failure.
var ErrFiltered = errors.Validation("event filtered by ingest policy")

type GateConfig struct {
	// AllowedGuilds and AllowedChannels are allow-lists; empty means allow
	// all.
	AllowedGuilds   []string
	AllowedChannels []string
	MinContentLen   int
	AllowBots       bool
	Trim            stream.TrimPolicy
}

// Gate applies tenant allow-lists, the minimum-content-length filter, and bot
// suppression before appending to the ingest stream.
type Gate struct {
	transport *stream.Transport
	catalog   *events.Catalog
	cfg       GateConfig
	guilds    map[string]struct{}
	channels  map[string]struct{}
	log       logger.Logger
}

func NewGate(transport *stream.Transport, catalog *events.Catalog, cfg GateConfig, log logger.Logger) *Gate {
	guilds := make(map[string]struct{}, len(cfg.AllowedGuilds))
	for _, g := range cfg.AllowedGuilds {
		guilds[g] = struct{}{}
	}
	channels := make(map[string]struct{}, len(cfg.AllowedChannels))
	for _, c := range cfg.AllowedChannels {
		channels[c] = struct{}{}
	}
	return &Gate{transport: transport, catalog: catalog, cfg: cfg, guilds: guilds, channels: channels, log: log}
}

// Publish validates and filters the envelope, then appends it idempotently:
// the idempotency key travels with the envelope so redelivered publishes
// collapse at the persistence layer.
func (g *Gate) Publish(ctx context.Context, env *events.EventEnvelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	payload, err := g.catalog.Decode(env)
	if err != nil {
		return err
	}

	if reason := g.filterReason(env, payload); reason != "" {
		g.log.DebugwCtx(ctx, "Event filtered", "reason", reason, "type", env.Type)
		return ErrFiltered
	}

	_, err = g.transport.AppendEnvelope(ctx, stream.IngestKey(env.TenantID, env.Platform), env, g.cfg.Trim)
	return err
}

func (g *Gate) filterReason(env *events.EventEnvelope, payload events.Payload) string {
	// When an allow-list is configured, an event without that coordinate
	// cannot be matched against it and is dropped rather than waved through.
	if len(g.guilds) > 0 {
		if _, ok := g.guilds[env.Source.GuildID]; !ok {
			return "guild not allow-listed"
		}
	}
	if len(g.channels) > 0 {
		if _, ok := g.channels[env.Source.ChannelID]; !ok {
			return "channel not allow-listed"
		}
	}

	switch p := payload.(type) {
	case *events.MessageCreated:
		if p.AuthorIsBot && !g.cfg.AllowBots {
			return "bot author suppressed"
		}
		if len(p.Content) < g.cfg.MinContentLen {
			return "content below minimum length"
		}
	case *events.MessageUpdated:
		if p.AuthorIsBot && !g.cfg.AllowBots {
			return "bot author suppressed"
		}
		if len(p.Content) < g.cfg.MinContentLen {
			return "content below minimum length"
		}
	case *events.ReactionAdded:
		if p.AuthorIsBot && !g.cfg.AllowBots {
			return "bot author suppressed"
		}
	}
	return ""
}
