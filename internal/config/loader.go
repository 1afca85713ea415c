package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.postgres.sslmode", "disable")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("worker.batch_size", 16)
	viper.SetDefault("worker.block_timeout", "5s")
	viper.SetDefault("worker.error_backoff", "1s")
	viper.SetDefault("worker.stream_max_len", 100000)
	viper.SetDefault("worker.retry.max_attempts", 3)
	viper.SetDefault("worker.retry.initial_interval", "1s")
	viper.SetDefault("worker.retry.max_interval", "30s")
	viper.SetDefault("worker.retry.multiplier", 2.0)
	viper.SetDefault("worker.retry.max_elapsed_time", "2m")
	viper.SetDefault("scoring.weights.sentiment", 0.4)
	viper.SetDefault("scoring.weights.value", 0.5)
	viper.SetDefault("scoring.weights.uniqueness", 0.1)
	viper.SetDefault("scoring.signal_timeout", "15s")
	viper.SetDefault("scoring.max_concurrent_calls", 32)
	viper.SetDefault("scoring.cache_size", 1024)
	viper.SetDefault("providers.sentiment.timeout", "15s")
	viper.SetDefault("providers.value.timeout", "15s")
	viper.SetDefault("uniqueness.backend", "postgres")
	viper.SetDefault("uniqueness.embedding_dim", 256)
	viper.SetDefault("uniqueness.shingle_size", 3)
	viper.SetDefault("uniqueness.window_days", 30)
	viper.SetDefault("uniqueness.top_k", 16)
	viper.SetDefault("ingest.min_content_len", 1)
	viper.SetDefault("replay.requeue_per_second", 50)
}

func bindEnvVariables() {
	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("logging.level", "LOGGING_LEVEL")

	viper.BindEnv("worker.group", "WORKER_GROUP")
	viper.BindEnv("worker.consumer", "WORKER_CONSUMER")

	viper.BindEnv("providers.sentiment.base_url", "PROVIDERS_SENTIMENT_BASE_URL")
	viper.BindEnv("providers.value.base_url", "PROVIDERS_VALUE_BASE_URL")
}

func applyEnvOverrides(cfg *Config) error {
	if tenantsEnv := viper.GetString("WORKER_TENANT_IDS"); tenantsEnv != "" {
		tenants := strings.Split(tenantsEnv, ",")
		for i := range tenants {
			tenants[i] = strings.TrimSpace(tenants[i])
		}
		if len(tenants) > 0 && tenants[0] != "" {
			cfg.Worker.TenantIDs = tenants
		}
	}

	if platformsEnv := viper.GetString("WORKER_PLATFORMS"); platformsEnv != "" {
		platforms := strings.Split(platformsEnv, ",")
		for i := range platforms {
			platforms[i] = strings.TrimSpace(platforms[i])
		}
		if len(platforms) > 0 && platforms[0] != "" {
			cfg.Worker.Platforms = platforms
		}
	}

	return nil
}
