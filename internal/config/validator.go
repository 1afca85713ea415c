package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateWorker(cfg.Worker); err != nil {
		errors = append(errors, err)
	}

	if err := validateScoring(cfg.Scoring); err != nil {
		errors = append(errors, err)
	}

	if err := validateProviders(cfg.Providers); err != nil {
		errors = append(errors, err)
	}

	if err := validateUniqueness(cfg.Uniqueness); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if err := validateRedis(cfg.Redis); err != nil {
		return err
	}

	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateWorker(cfg WorkerConfig) error {
	if cfg.Group == "" {
		return &ValidationError{
			Field:   "worker.group",
			Message: "consumer group name is required",
		}
	}

	if len(cfg.TenantIDs) == 0 {
		return &ValidationError{
			Field:   "worker.tenant_ids",
			Message: "at least one tenant ID is required",
		}
	}

	for i, tenant := range cfg.TenantIDs {
		if tenant == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("worker.tenant_ids[%d]", i),
				Message: "tenant ID cannot be empty",
			}
		}
		if strings.Contains(tenant, ":") {
			return &ValidationError{
				Field:   fmt.Sprintf("worker.tenant_ids[%d]", i),
				Message: "tenant ID cannot contain ':'",
			}
		}
	}

	if len(cfg.Platforms) == 0 {
		return &ValidationError{
			Field:   "worker.platforms",
			Message: "at least one platform is required",
		}
	}

	for i, platform := range cfg.Platforms {
		if platform == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("worker.platforms[%d]", i),
				Message: "platform cannot be empty",
			}
		}
		if strings.Contains(platform, ":") {
			return &ValidationError{
				Field:   fmt.Sprintf("worker.platforms[%d]", i),
				Message: "platform cannot contain ':'",
			}
		}
	}

	if cfg.BatchSize <= 0 {
		return &ValidationError{
			Field:   "worker.batch_size",
			Message: "batch size must be positive",
		}
	}

	if cfg.BlockTimeout <= 0 {
		return &ValidationError{
			Field:   "worker.block_timeout",
			Message: "block timeout must be positive",
		}
	}

	if cfg.StreamMaxLen <= 0 {
		return &ValidationError{
			Field:   "worker.stream_max_len",
			Message: "stream max length must be positive",
		}
	}

	return nil
}

func validateScoring(cfg ScoringConfig) error {
	weights := map[string]float64{
		"scoring.weights.sentiment":  cfg.Weights.Sentiment,
		"scoring.weights.value":      cfg.Weights.Value,
		"scoring.weights.uniqueness": cfg.Weights.Uniqueness,
	}
	for field, w := range weights {
		if w < 0 {
			return &ValidationError{
				Field:   field,
				Message: "weight must be non-negative",
			}
		}
	}

	if cfg.SignalTimeout <= 0 {
		return &ValidationError{
			Field:   "scoring.signal_timeout",
			Message: "signal timeout must be positive",
		}
	}

	if cfg.MaxConcurrentCalls <= 0 {
		return &ValidationError{
			Field:   "scoring.max_concurrent_calls",
			Message: "max concurrent calls must be positive",
		}
	}

	if cfg.CacheSize < 0 {
		return &ValidationError{
			Field:   "scoring.cache_size",
			Message: "cache size must be non-negative",
		}
	}

	return nil
}

func validateProviders(cfg ProvidersConfig) error {
	if err := validateProvider("providers.sentiment", cfg.Sentiment); err != nil {
		return err
	}

	return validateProvider("providers.value", cfg.Value)
}

func validateProvider(field string, cfg ProviderConfig) error {
	if cfg.BaseURL == "" {
		return &ValidationError{
			Field:   field + ".base_url",
			Message: "provider base URL is required",
		}
	}

	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &ValidationError{
			Field:   field + ".base_url",
			Message: fmt.Sprintf("invalid base URL: %s", cfg.BaseURL),
		}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{
			Field:   field + ".timeout",
			Message: "provider timeout must be positive",
		}
	}

	return nil
}

func validateUniqueness(cfg UniquenessConfig) error {
	validBackends := map[string]bool{
		"postgres": true, "memory": true,
	}
	if !validBackends[strings.ToLower(cfg.Backend)] {
		return &ValidationError{
			Field:   "uniqueness.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: postgres, memory)", cfg.Backend),
		}
	}

	if cfg.EmbeddingDim <= 0 {
		return &ValidationError{
			Field:   "uniqueness.embedding_dim",
			Message: "embedding dimension must be positive",
		}
	}

	if cfg.ShingleSize <= 0 {
		return &ValidationError{
			Field:   "uniqueness.shingle_size",
			Message: "shingle size must be positive",
		}
	}

	if cfg.WindowDays <= 0 {
		return &ValidationError{
			Field:   "uniqueness.window_days",
			Message: "window days must be positive",
		}
	}

	if cfg.TopK <= 0 {
		return &ValidationError{
			Field:   "uniqueness.top_k",
			Message: "top_k must be positive",
		}
	}

	return nil
}
