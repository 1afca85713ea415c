package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const checkTimeout = 5 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

type Check struct {
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type Report struct {
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
}

// Registry runs named dependency probes and folds them into one report.
// Any single failing probe marks the whole report unhealthy.
type Registry struct {
	names  []string
	checks map[string]CheckFunc
}

func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]CheckFunc)}
}

func (r *Registry) Register(name string, fn CheckFunc) {
	if _, exists := r.checks[name]; !exists {
		r.names = append(r.names, name)
	}
	r.checks[name] = fn
}

func (r *Registry) Run(ctx context.Context) Report {
	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]Check, len(r.names)),
	}

	for _, name := range r.names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		start := time.Now()
		err := r.checks[name](checkCtx)
		cancel()

		check := Check{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
		if err != nil {
			check.Status = StatusUnhealthy
			check.Error = err.Error()
			report.Status = StatusUnhealthy
		}
		report.Checks[name] = check
	}

	return report
}

func RedisCheck(client *redis.Client) CheckFunc {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	}
}

func PostgresCheck(db *sql.DB) CheckFunc {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
		return nil
	}
}
