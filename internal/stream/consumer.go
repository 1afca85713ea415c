package stream

import (
	"context"
	"time"

	"ally/internal/logger"
	"ally/pkg/errors"
	"ally/pkg/logging"
	"ally/pkg/metrics"
	"ally/pkg/retry"
)

// Handler processes one delivered entry. A nil return acks the entry; any
// error routes it to the dead-letter stream.
type Handler func(ctx context.Context, entry Entry) error

type ConsumerConfig struct {
	Group        string
	Consumer     string
	Streams      []Key
	BatchSize    int64
	BlockTimeout time.Duration
	ErrorBackoff time.Duration
	Retry        retry.Policy
}

// Consumer runs the competing-consumer loop over one or more streams. It is
// the only component permitted to swallow per-entry errors, and it never
// drops one silently: failed entries go to the dead-letter stream and are
// acked on the source so the group does not redeliver them forever.
type Consumer struct {
	transport *Transport
	dlq       *DeadLetter
	cfg       ConsumerConfig
	handler   Handler
	log       logger.Logger
}

func NewConsumer(transport *Transport, dlq *DeadLetter, cfg ConsumerConfig, handler Handler, log logger.Logger) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Consumer{transport: transport, dlq: dlq, cfg: cfg, handler: handler, log: log}
}

// Run consumes until the context is cancelled. Cancellation is checked
// between batches; in-flight handler invocations complete before exit.
func (c *Consumer) Run(ctx context.Context) error {
	for _, key := range c.cfg.Streams {
		if err := c.transport.EnsureGroup(ctx, key, c.cfg.Group); err != nil {
			return err
		}
	}

	c.log.InfowCtx(ctx, "Consumer started",
		"group", c.cfg.Group,
		"consumer", c.cfg.Consumer,
		"streams", len(c.cfg.Streams),
	)

	for {
		select {
		case <-ctx.Done():
			c.log.InfowCtx(ctx, "Consumer stopped", "group", c.cfg.Group, "consumer", c.cfg.Consumer)
			return ctx.Err()
		default:
		}

		entries, err := c.transport.ReadBatch(ctx, c.cfg.Group, c.cfg.Consumer, c.cfg.Streams, c.cfg.BatchSize, c.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			metrics.TransportFailuresTotal.Inc()
			c.log.ErrorwCtx(ctx, "Stream read failed, backing off", "error", err)
			c.sleep(ctx, c.cfg.ErrorBackoff)
			continue
		}

		for _, entry := range entries {
			c.process(ctx, entry)
		}
	}
}

func (c *Consumer) process(ctx context.Context, entry Entry) {
	entryCtx := logging.WithStream(ctx, entry.Stream.String())
	if tenantID := fieldString(entry.Fields, "tenant_id"); tenantID != "" {
		entryCtx = logging.WithTenantID(entryCtx, tenantID)
	}

	// Transient handler failures are retried in-process before the entry is
	// given up on; deterministic error kinds abort the retry loop at once.
	err := retry.RetryNotify(entryCtx, c.cfg.Retry, func() error {
		return c.invoke(entryCtx, entry)
	}, func(retryErr error, next time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(streamKind(entry.Stream)).Inc()
		c.log.WarnwCtx(entryCtx, "Retrying entry after handler failure",
			"entry_id", entry.ID,
			"next_delay", next,
			"error", retryErr,
		)
	})
	if err == nil {
		if ackErr := c.transport.Ack(entryCtx, entry.Stream, c.cfg.Group, entry.ID); ackErr != nil {
			metrics.TransportFailuresTotal.Inc()
			c.log.ErrorwCtx(entryCtx, "Ack failed, entry may be redelivered", "entry_id", entry.ID, "error", ackErr)
			return
		}
		metrics.EntriesProcessedTotal.WithLabelValues("ok").Inc()
		return
	}

	metrics.EntriesProcessedTotal.WithLabelValues("error").Inc()
	c.log.ErrorwCtx(entryCtx, "Handler failed, redirecting entry to dead-letter",
		"entry_id", entry.ID,
		"error", err,
		"error_kind", string(errors.KindOf(err)),
	)

	if dlqErr := c.dlq.Send(entryCtx, entry, err); dlqErr != nil {
		// Leave the entry unacked so the group eventually redelivers it;
		// losing it silently is worse than a duplicate attempt.
		metrics.TransportFailuresTotal.Inc()
		c.log.ErrorwCtx(entryCtx, "Dead-letter append failed, leaving entry pending", "entry_id", entry.ID, "error", dlqErr)
		c.sleep(ctx, c.cfg.ErrorBackoff)
		return
	}

	if ackErr := c.transport.Ack(entryCtx, entry.Stream, c.cfg.Group, entry.ID); ackErr != nil {
		metrics.TransportFailuresTotal.Inc()
		c.log.ErrorwCtx(entryCtx, "Ack after dead-letter failed", "entry_id", entry.ID, "error", ackErr)
	}
}

func (c *Consumer) invoke(ctx context.Context, entry Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
	}()
	return c.handler(ctx, entry)
}

func streamKind(key Key) string {
	parts, err := ParseKey(key.String())
	if err != nil {
		return "unknown"
	}
	return parts.Logical
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
