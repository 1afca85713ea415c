package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ally/internal/config"
	"ally/internal/logger"
)

const (
	pgMaxOpenConns    = 25
	pgMaxIdleConns    = 5
	pgConnMaxLifetime = 30 * time.Minute
)

// Connector opens and verifies the backing stores. Each Open call pings the
// store before returning so a misconfigured address fails at startup, not on
// the first entry.
type Connector struct {
	cfg *config.Config
	log logger.Logger
}

func NewConnector(cfg *config.Config, log logger.Logger) *Connector {
	return &Connector{cfg: cfg, log: log}
}

func (c *Connector) OpenRedis(ctx context.Context) (*redis.Client, error) {
	rc := c.cfg.Database.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(rc.Host, strconv.Itoa(rc.Port)),
		Password: rc.Password,
		DB:       rc.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}

	c.log.InfowCtx(ctx, "Redis connected", "addr", rdb.Options().Addr)
	return rdb, nil
}

// OpenPostgres returns (nil, nil) when no Postgres host is configured;
// callers that require it must check for the nil handle.
func (c *Connector) OpenPostgres(ctx context.Context) (*sql.DB, error) {
	pc := c.cfg.Database.Postgres
	if pc.Host == "" {
		return nil, nil
	}

	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(pc.User, pc.Password),
		Host:     net.JoinHostPort(pc.Host, strconv.Itoa(pc.Port)),
		Path:     pc.DBName,
		RawQuery: url.Values{"sslmode": []string{pc.SSLMode}}.Encode(),
	}

	db, err := sql.Open("postgres", dsn.String())
	if err != nil {
		return nil, fmt.Errorf("postgres open failed: %w", err)
	}
	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMaxIdleConns)
	db.SetConnMaxLifetime(pgConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}

	c.log.InfowCtx(ctx, "PostgreSQL connected", "host", pc.Host, "database", pc.DBName)
	return db, nil
}

// CloseAll is a Base.Shutdown closer over the opened handles. Nil handles
// are skipped so partial initialization shuts down cleanly.
func CloseAll(rdb *redis.Client, db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				return fmt.Errorf("redis close: %w", err)
			}
		}
		if db != nil {
			if err := db.Close(); err != nil {
				return fmt.Errorf("postgres close: %w", err)
			}
		}
		return nil
	}
}
