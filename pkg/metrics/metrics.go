package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	StreamAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_appends_total",
			Help: "Total number of envelopes appended to a stream (count)",
		},
		[]string{"stream_kind", "status"},
	)

	EntriesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entries_processed_total",
			Help: "Total number of stream entries handled by the consume loop (count)",
		},
		[]string{"status"},
	)

	DeadLetterTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dead_letter_entries_total",
			Help: "Total number of entries redirected to the dead-letter stream (count)",
		},
		[]string{"error_kind"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handler_retry_attempts_total",
			Help: "Total number of in-process handler retries before dead-lettering (count)",
		},
		[]string{"stream_kind"},
	)

	TransportFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transport_failures_total",
			Help: "Total number of stream read/append failures absorbed by the consume loop (count)",
		},
	)

	ScoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "score_duration_ms",
			Help:    "End-to-end duration of one combined score call in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	SignalCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_calls_total",
			Help: "Total number of outbound signal provider calls (count)",
		},
		[]string{"provider", "status"},
	)

	SignalCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_cache_hits_total",
			Help: "Total number of signal result cache lookups (count)",
		},
		[]string{"provider", "result"},
	)

	ReplayedEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replayed_entries_total",
			Help: "Total number of dead-letter entries requeued for reprocessing (count)",
		},
		[]string{"tenant"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	UniquenessStoreSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "uniqueness_store_size",
			Help: "Number of vectors held per uniqueness backend (count)",
		},
		[]string{"backend"},
	)
)

func RegisterPipelineMetrics() {
	prometheus.MustRegister(
		StreamAppendsTotal,
		EntriesProcessedTotal,
		RetryAttemptsTotal,
		DeadLetterTotal,
		TransportFailuresTotal,
	)
}

func RegisterScoringMetrics() {
	prometheus.MustRegister(
		ScoreDuration,
		SignalCallsTotal,
		SignalCacheHitsTotal,
		CircuitBreakerState,
	)
}

func RegisterReplayMetrics() {
	prometheus.MustRegister(ReplayedEntriesTotal)
}

func RegisterUniquenessMetrics() {
	prometheus.MustRegister(UniquenessStoreSize)
}

func ObserveScoreDuration(d time.Duration, status string) {
	ScoreDuration.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}
