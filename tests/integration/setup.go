package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	postgresmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"ally/internal/logger"
)

const (
	containerStartupTimeout = 60 * time.Second
	pingTimeout             = 10 * time.Second
)

type TestInfra struct {
	PostgresDB   *sql.DB
	PostgresConn string
	RedisClient  *redisclient.Client
}

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

// SetupPostgres starts a throwaway PostgreSQL container with the project
// migrations applied. SetupRedis and SetupAll follow the same pattern; all
// of them skip unless INTEGRATION_TESTS is set, so the default test run
// needs no Docker daemon.
func SetupPostgres(t *testing.T) *TestInfra {
	return setup(t, true, false)
}

func SetupRedis(t *testing.T) *TestInfra {
	return setup(t, false, true)
}

func SetupAll(t *testing.T) *TestInfra {
	return setup(t, true, true)
}

func setup(t *testing.T, withPostgres, withRedis bool) *TestInfra {
	t.Helper()

	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests")
	}
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	ctx := context.Background()
	infra := &TestInfra{}
	if withPostgres {
		infra.startPostgres(t, ctx)
	}
	if withRedis {
		infra.startRedis(t, ctx)
	}
	return infra
}

func (infra *TestInfra) startPostgres(t *testing.T, ctx context.Context) {
	t.Helper()

	container, err := postgresmodule.Run(ctx, "postgres:15",
		postgresmodule.WithDatabase("ally_test"),
		postgresmodule.WithUsername("ally"),
		postgresmodule.WithPassword("ally"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp").WithStartupTimeout(containerStartupTimeout),
		),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	conn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", conn)
	if err != nil {
		t.Fatalf("postgres open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		t.Fatalf("postgres ping: %v", err)
	}

	if err := applyMigrations(db); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	infra.PostgresDB = db
	infra.PostgresConn = conn
}

func (infra *TestInfra) startRedis(t *testing.T, ctx context.Context) {
	t.Helper()

	container, err := redismodule.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}
	opt, err := redisclient.ParseURL(uri)
	if err != nil {
		t.Fatalf("redis url: %v", err)
	}

	client := redisclient.NewClient(opt)
	t.Cleanup(func() { client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}

	infra.RedisClient = client
}

func applyMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	migrationsPath := filepath.Join(workDir, "..", "..", "migrations", "postgres")

	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", migrationsPath), "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
