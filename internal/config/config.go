package config

import (
	"time"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Uniqueness UniquenessConfig `mapstructure:"uniqueness"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Replay     ReplayConfig     `mapstructure:"replay"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type WorkerConfig struct {
	Group        string        `mapstructure:"group"`
	Consumer     string        `mapstructure:"consumer"`
	TenantIDs    []string      `mapstructure:"tenant_ids"`
	Platforms    []string      `mapstructure:"platforms"`
	BatchSize    int64         `mapstructure:"batch_size"`
	BlockTimeout time.Duration `mapstructure:"block_timeout"`
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`
	StreamMaxLen int64         `mapstructure:"stream_max_len"`
	Retry        RetryConfig   `mapstructure:"retry"`
}

// RetryConfig bounds the in-process retries a consumer spends on an entry
// before dead-lettering it.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type ScoringConfig struct {
	Weights            WeightsConfig `mapstructure:"weights"`
	SignalTimeout      time.Duration `mapstructure:"signal_timeout"`
	MaxConcurrentCalls int64         `mapstructure:"max_concurrent_calls"`
	CacheSize          int           `mapstructure:"cache_size"`
}

type WeightsConfig struct {
	Sentiment  float64 `mapstructure:"sentiment"`
	Value      float64 `mapstructure:"value"`
	Uniqueness float64 `mapstructure:"uniqueness"`
}

type ProvidersConfig struct {
	Sentiment ProviderConfig `mapstructure:"sentiment"`
	Value     ProviderConfig `mapstructure:"value"`
}

type ProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxBatch applies to providers with a batch endpoint.
	MaxBatch int `mapstructure:"max_batch"`
	// Settings are forwarded verbatim to the provider backend.
	Settings map[string]interface{} `mapstructure:"settings"`
}

type UniquenessConfig struct {
	Backend      string `mapstructure:"backend"`
	EmbeddingDim int    `mapstructure:"embedding_dim"`
	ShingleSize  int    `mapstructure:"shingle_size"`
	WindowDays   int    `mapstructure:"window_days"`
	TopK         int    `mapstructure:"top_k"`
}

type IngestConfig struct {
	AllowedGuilds   []string `mapstructure:"allowed_guilds"`
	AllowedChannels []string `mapstructure:"allowed_channels"`
	MinContentLen   int      `mapstructure:"min_content_len"`
	AllowBots       bool     `mapstructure:"allow_bots"`
}

type ReplayConfig struct {
	RequeuePerSecond float64 `mapstructure:"requeue_per_second"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
