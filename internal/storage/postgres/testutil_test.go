package postgres

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"hm-tracker/internal/domain"
)

// setupTestDB starts a PostgreSQL container with the hm-tracker schema.
// The returned cleanup closes the pool and terminates the container.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	runMigrations(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// runMigrations executes the schema files under internal/storage/migrations/postgres.
// The migrations package imports this one, so the files are read from disk.
func runMigrations(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()

	schema := os.DirFS(filepath.Join(projectRoot(t), "internal", "storage", "migrations", "postgres"))
	files, err := fs.Glob(schema, "*.sql")
	require.NoError(t, err, "failed to list migrations")
	require.NotEmpty(t, files, "no migrations found")

	for _, file := range files {
		sql, err := fs.ReadFile(schema, file)
		require.NoError(t, err, "failed to read migration %s", file)

		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err, "failed to execute migration %s", file)
	}
}

// projectRoot returns the nearest ancestor directory holding go.mod.
func projectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, dir, parent, "go.mod not found above test directory")
		dir = parent
	}
}

// seedManager inserts a manager and a season covering 2025/26.
func seedManager(t *testing.T, ctx context.Context, pool *Pool) (managerID, seasonID int64) {
	t.Helper()

	m := &domain.Manager{Email: "coach@example.com"}
	require.NoError(t, NewManagerStore(pool).Insert(ctx, m))

	season := &domain.Season{
		Name:  "2025/26",
		Start: time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.July, 31, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, NewSeasonStore(pool).Insert(ctx, season))

	return m.ID, season.ID
}

// ptr is a helper to create pointers to values.
func ptr[T any](v T) *T {
	return &v
}
