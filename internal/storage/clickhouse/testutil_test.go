package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a ClickHouse container and returns a connection.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start ClickHouse container
	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60 * time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_DB":       "test",
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	// Get native port (9000)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port())

	// Connect to ClickHouse
	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)

	// Run migrations
	runTestMigrations(t, conn)

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

// runTestMigrations applies the SQL migrations from the migrations package
// directory. The migrations package itself imports this one, so the files
// are read from disk instead of through its embedded FS.
func runTestMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	dir := findMigrationsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Logf("could not read migrations dir %s: %v, using inline schema", dir, err)
		runInlineMigrations(t, conn)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		require.NoError(t, err)

		err = conn.Exec(ctx, string(content))
		require.NoError(t, err, "failed to apply migration %s", entry.Name())
	}
}

// findMigrationsDir locates internal/storage/migrations/clickhouse relative
// to the package directory.
func findMigrationsDir() string {
	paths := []string{
		"../migrations/clickhouse",
		"../../storage/migrations/clickhouse",
		"internal/storage/migrations/clickhouse",
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return "../migrations/clickhouse"
}

// runInlineMigrations applies the schema directly without reading files.
func runInlineMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS candle_timeseries (
			symbol          String,
			interval        String,
			open_time_ms    UInt64,
			open            Float64,
			high            Float64,
			low             Float64,
			close           Float64,
			volume          Float64
		) ENGINE = MergeTree()
		ORDER BY (symbol, interval, open_time_ms)
		SETTINGS index_granularity = 8192
	`)
	require.NoError(t, err)

	err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS forecast_points (
			run_id          String,
			step            UInt32,
			timestamp_ms    UInt64,
			price           Float64
		) ENGINE = MergeTree()
		ORDER BY (run_id, step)
		SETTINGS index_granularity = 8192
	`)
	require.NoError(t, err)
}
