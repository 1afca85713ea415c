package stream

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"ally/internal/logger"
	"ally/pkg/metrics"
)

// ReplayReport summarizes one requeue run.
type ReplayReport struct {
	Tenant   string
	Matched  int
	Requeued int
	DryRun   bool
	EntryIDs []string
}

// Replayer re-appends dead-letter entries to their original ingest stream for
// reprocessing. Requeues are rate limited so a large backlog does not flood
// the consumer group.
type Replayer struct {
	dlq       *DeadLetter
	transport *Transport
	trim      TrimPolicy
	limiter   *rate.Limiter
	log       logger.Logger
}

func NewReplayer(dlq *DeadLetter, transport *Transport, trim TrimPolicy, requeuePerSecond float64, log logger.Logger) *Replayer {
	if requeuePerSecond <= 0 {
		requeuePerSecond = 50
	}
	return &Replayer{
		dlq:       dlq,
		transport: transport,
		trim:      trim,
		limiter:   rate.NewLimiter(rate.Limit(requeuePerSecond), 1),
		log:       log,
	}
}

// Requeue moves matching dead-letter entries back onto their source stream
// and deletes them from the dead-letter stream. In dry-run mode it reports
// what would be requeued without writing anything.
func (r *Replayer) Requeue(ctx context.Context, tenantID, errorFilter string, dryRun bool) (*ReplayReport, error) {
	entries, err := r.dlq.List(ctx, tenantID, errorFilter, 0)
	if err != nil {
		return nil, err
	}

	report := &ReplayReport{Tenant: tenantID, Matched: len(entries), DryRun: dryRun}

	for _, e := range entries {
		report.EntryIDs = append(report.EntryIDs, e.ID)
		if dryRun {
			continue
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return report, err
		}

		// Carry the attempt count forward so a repeat failure increments it.
		fields := make(map[string]interface{}, len(e.OriginalFields)+2)
		for k, v := range e.OriginalFields {
			fields[k] = v
		}
		fields["attempts"] = e.Attempts
		if !e.FirstFailedAt.IsZero() {
			fields["first_failed_at"] = e.FirstFailedAt.UTC().Format(time.RFC3339Nano)
		}

		if _, err := r.transport.Append(ctx, Key(e.SourceStream), fields, r.trim); err != nil {
			r.log.ErrorwCtx(ctx, "Requeue append failed", "dead_letter_id", e.ID, "error", err)
			return report, err
		}

		if err := r.dlq.Delete(ctx, tenantID, e.ID); err != nil {
			r.log.ErrorwCtx(ctx, "Dead-letter delete after requeue failed", "dead_letter_id", e.ID, "error", err)
			return report, err
		}

		metrics.ReplayedEntriesTotal.WithLabelValues(tenantID).Inc()
		report.Requeued++
	}

	r.log.InfowCtx(ctx, "Replay finished",
		"tenant_id", tenantID,
		"matched", report.Matched,
		"requeued", report.Requeued,
		"dry_run", dryRun,
	)
	return report, nil
}
