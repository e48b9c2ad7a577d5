// Package testing provides helpers for integration tests against a real
// PostgreSQL server and, for the distributed counter, a Redis server.
package testing

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/pgbulk/internal/db"
	"github.com/vvka-141/pgbulk/internal/db/manager"
	"github.com/vvka-141/pgbulk/internal/logging"
	"github.com/vvka-141/pgbulk/internal/services"
	"github.com/vvka-141/pgbulk/internal/testinfra"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

var (
	testContainerOnce sync.Once
	testContainerConn string
	testContainerErr  error

	redisContainerOnce sync.Once
	redisContainerAddr string
	redisContainerErr  error
)

func getOrStartTestContainer() (string, error) {
	testContainerOnce.Do(func() {
		container, err := testinfra.StartPostgres(context.Background())
		if err != nil {
			testContainerErr = err
			return
		}
		testContainerConn = container.ConnString
	})
	return testContainerConn, testContainerErr
}

func getOrStartRedisContainer() (string, error) {
	redisContainerOnce.Do(func() {
		container, err := testinfra.StartRedis(context.Background())
		if err != nil {
			redisContainerErr = err
			return
		}
		redisContainerAddr = container.Addr
	})
	return redisContainerAddr, redisContainerErr
}

// GetTestConnectionString returns the test database connection string.
// Priority: PGBULK_TEST_CONN env var > auto-started testcontainer > skip test.
func GetTestConnectionString(t *testing.T) string {
	t.Helper()

	if connString := os.Getenv("PGBULK_TEST_CONN"); connString != "" {
		return connString
	}

	connString, err := getOrStartTestContainer()
	if err != nil {
		t.Skipf("PGBULK_TEST_CONN not set and Docker unavailable: %v", err)
	}
	return connString
}

// SkipIfShort skips the test if running in short mode (-short flag).
func SkipIfShort(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// RequireDatabase combines SkipIfShort and GetTestConnectionString for convenience.
// Returns the test connection string if available, otherwise skips the test.
func RequireDatabase(t *testing.T) string {
	t.Helper()

	SkipIfShort(t)
	return GetTestConnectionString(t)
}

// RequireRedis returns a Redis address from PGBULK_TEST_REDIS or an
// auto-started container, skipping the test when neither is available.
func RequireRedis(t *testing.T) string {
	t.Helper()

	SkipIfShort(t)
	if addr := os.Getenv("PGBULK_TEST_REDIS"); addr != "" {
		return addr
	}
	addr, err := getOrStartRedisContainer()
	if err != nil {
		t.Skipf("PGBULK_TEST_REDIS not set and Docker unavailable: %v", err)
	}
	return addr
}

// NewTestLoader creates a LoadService with the standard connector factory
// and a silent logger.
func NewTestLoader(t *testing.T) *services.LoadService {
	t.Helper()
	return services.NewLoadService(db.NewConnector, manager.New(), logging.NewNullLogger(), nil)
}

// CreateTestSchema creates a uniquely named schema so tests can load tables
// of the same name without interfering. It is dropped with CASCADE when the
// test completes.
func CreateTestSchema(t *testing.T, connString string) string {
	t.Helper()

	ctx := context.Background()
	schema := "pgbulk_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	pool := GetTestPool(t, connString)
	if _, err := pool.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("Failed to create test schema %s: %v", schema, err)
	}

	t.Cleanup(func() {
		cleanup, err := pgxpool.New(context.Background(), connString)
		if err != nil {
			t.Logf("Warning: Failed to connect for cleanup: %v", err)
			return
		}
		defer cleanup.Close()
		if _, err := cleanup.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+pgx.Identifier{schema}.Sanitize()+" CASCADE"); err != nil {
			t.Logf("Warning: Failed to drop schema %s: %v", schema, err)
		}
	})
	return schema
}

// GetTestPool creates a connection pool for testing.
// The pool is automatically closed when the test completes.
func GetTestPool(t *testing.T, connString string) *pgxpool.Pool {
	t.Helper()

	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		t.Fatalf("Failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, pool *pgxpool.Pool, table pgbulk.TableName) int64 {
	t.Helper()

	var n int64
	if err := pool.QueryRow(context.Background(), "SELECT count(*) FROM "+table.Quoted()).Scan(&n); err != nil {
		t.Fatalf("Failed to count rows of %s: %v", table, err)
	}
	return n
}

// TableExists reports whether table exists.
func TableExists(t *testing.T, pool *pgxpool.Pool, table pgbulk.TableName) bool {
	t.Helper()

	var exists bool
	err := pool.QueryRow(context.Background(), "SELECT to_regclass($1) IS NOT NULL", table.Quoted()).Scan(&exists)
	if err != nil {
		t.Fatalf("Failed to check %s: %v", table, err)
	}
	return exists
}

// LoadConfig returns load options for table against connString with small
// retry delays suited to tests.
func LoadConfig(connString string, table pgbulk.TableName) pgbulk.LoadConfig {
	return pgbulk.LoadConfig{
		Table:            fmt.Sprintf("%s.%s", table.Schema, table.Name),
		ConnectionString: connString,
		Parallelism:      4,
		MaxTaskAttempts:  2,
	}
}
