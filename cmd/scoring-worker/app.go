package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"ally/internal/config"
	"ally/internal/logger"
	"ally/internal/persistence"
	"ally/internal/scoring"
	"ally/internal/scoring/provider"
	"ally/internal/stream"
	"ally/internal/uniqueness"
	"ally/internal/worker"
	"ally/pkg/bootstrap"
	"ally/pkg/events"
	"ally/pkg/health"
	"ally/pkg/metrics"
	"ally/pkg/migrations"
	"ally/pkg/retry"
)

const (
	serviceName     = "scoring-worker"
	shutdownTimeout = 10 * time.Second
	pruneInterval   = 6 * time.Hour
)

type App struct {
	*bootstrap.Base
	connector  *bootstrap.Connector
	redis      *redis.Client
	postgresDB *sql.DB
	consumer   *stream.Consumer
	replayer   *stream.Replayer
	uniqScorer *uniqueness.Scorer
	server     *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if zl, ok := log.(*logger.ZapLogger); ok {
		zl.SetServiceName(serviceName)
	}
	return &App{
		Base:      bootstrap.NewBase(cfg, log),
		connector: bootstrap.NewConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	rdb, err := a.connector.OpenRedis(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	a.redis = rdb

	db, err := a.connector.OpenPostgres(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if db == nil {
		return fmt.Errorf("PostgreSQL is required for the scoring worker")
	}
	a.postgresDB = db

	if a.Config.Database.RunMigrations {
		migrationsPath := os.Getenv("MIGRATIONS_PATH")
		if migrationsPath == "" {
			migrationsPath = "migrations/postgres"
		}
		if err := migrations.RunPostgres(db, migrationsPath); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	metrics.RegisterPipelineMetrics()
	metrics.RegisterScoringMetrics()
	metrics.RegisterReplayMetrics()
	metrics.RegisterUniquenessMetrics()

	if err := a.initPipeline(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	a.initHTTPServer()

	return nil
}

func (a *App) initPipeline(ctx context.Context) error {
	cfg := a.Config

	trim := stream.TrimPolicy{MaxLen: cfg.Worker.StreamMaxLen, Approximate: true}
	transport := stream.NewTransport(a.redis, a.Logger)
	dlq := stream.NewDeadLetter(transport, trim, a.Logger)
	a.replayer = stream.NewReplayer(dlq, transport, trim, cfg.Replay.RequeuePerSecond, a.Logger)

	sentiment := provider.NewSentimentClient(provider.SentimentConfig{
		BaseURL:  cfg.Providers.Sentiment.BaseURL,
		Timeout:  cfg.Providers.Sentiment.Timeout,
		MaxBatch: cfg.Providers.Sentiment.MaxBatch,
	})
	value := provider.NewValueClient(provider.ValueConfig{
		BaseURL:  cfg.Providers.Value.BaseURL,
		Timeout:  cfg.Providers.Value.Timeout,
		Settings: cfg.Providers.Value.Settings,
	})

	uniqDB := a.postgresDB
	if cfg.Uniqueness.Backend == "memory" {
		uniqDB = nil
	}
	a.uniqScorer = uniqueness.NewScorer(ctx, uniqueness.ScorerConfig{
		EmbeddingDim: cfg.Uniqueness.EmbeddingDim,
		ShingleSize:  cfg.Uniqueness.ShingleSize,
	}, uniqDB, a.Logger)

	orchestrator, err := scoring.NewOrchestrator(sentiment, value, a.uniqScorer, scoring.Options{
		Config: scoring.Config{
			Weights: scoring.Weights{
				Sentiment:  cfg.Scoring.Weights.Sentiment,
				Value:      cfg.Scoring.Weights.Value,
				Uniqueness: cfg.Scoring.Weights.Uniqueness,
			},
			SignalTimeout: cfg.Scoring.SignalTimeout,
		},
		MaxConcurrentCalls:   cfg.Scoring.MaxConcurrentCalls,
		CacheSize:            cfg.Scoring.CacheSize,
		UniquenessWindowDays: cfg.Uniqueness.WindowDays,
		UniquenessTopK:       cfg.Uniqueness.TopK,
	}, a.Logger)
	if err != nil {
		return err
	}

	store := persistence.NewPostgresStore(a.postgresDB)
	handler := worker.NewHandler(
		events.NewCatalog(),
		orchestrator,
		store,
		a.uniqScorer,
		transport,
		worker.Config{
			UniquenessWindowDays: cfg.Uniqueness.WindowDays,
			ScoredTrim:           trim,
		},
		a.Logger,
	)

	var streams []stream.Key
	for _, tenant := range cfg.Worker.TenantIDs {
		for _, platform := range cfg.Worker.Platforms {
			streams = append(streams, stream.IngestKey(tenant, platform))
		}
	}

	consumerName := cfg.Worker.Consumer
	if consumerName == "" {
		hostname, _ := os.Hostname()
		consumerName = fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
	}

	a.consumer = stream.NewConsumer(transport, dlq, stream.ConsumerConfig{
		Group:        cfg.Worker.Group,
		Consumer:     consumerName,
		Streams:      streams,
		BatchSize:    cfg.Worker.BatchSize,
		BlockTimeout: cfg.Worker.BlockTimeout,
		ErrorBackoff: cfg.Worker.ErrorBackoff,
		Retry: retry.Policy{
			MaxAttempts:     cfg.Worker.Retry.MaxAttempts,
			InitialInterval: cfg.Worker.Retry.InitialInterval,
			MaxInterval:     cfg.Worker.Retry.MaxInterval,
			Multiplier:      cfg.Worker.Retry.Multiplier,
			MaxElapsedTime:  cfg.Worker.Retry.MaxElapsedTime,
		},
	}, handler.Handle, a.Logger)

	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	healthRegistry := health.NewRegistry()
	healthRegistry.Register("redis", health.RedisCheck(a.redis))
	healthRegistry.Register("postgres", health.PostgresCheck(a.postgresDB))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report := healthRegistry.Run(r.Context())
		statusCode := http.StatusOK
		if report.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		if err := json.NewEncoder(w).Encode(report); err != nil {
			a.Logger.WarnwCtx(r.Context(), "Failed to encode health report", "error", err)
		}
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.consumer.Run(gCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-ticker.C:
				if n, err := a.uniqScorer.Prune(gCtx); err != nil {
					a.Logger.WarnwCtx(gCtx, "Uniqueness prune failed", "error", err)
				} else if n > 0 {
					a.Logger.InfowCtx(gCtx, "Pruned expired uniqueness records", "count", n)
				}
			}
		}
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Base.Shutdown(ctx, bootstrap.CloseAll(a.redis, a.postgresDB))
}
