package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"hm-tracker/internal/storage/migrations"
	"hm-tracker/internal/storage/postgres"
)

// postgresStores starts a PostgreSQL container, applies the embedded
// migrations and returns Postgres-backed stores.
func postgresStores(t *testing.T) *stores {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)
	require.NotEmpty(t, applied)

	// A second run is a no-op.
	applied, err = migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)
	require.Empty(t, applied)

	return &stores{
		seasons:  postgres.NewSeasonStore(pool),
		managers: postgres.NewManagerStore(pool),
		rosters:  postgres.NewRosterStore(pool),
		stats:    postgres.NewStatStore(pool),
		matches:  postgres.NewMatchStore(pool),
		querier:  postgres.NewValuationQuerier(pool),
	}
}

func TestComputeValueSeries_StrategiesAgreeOnPostgres(t *testing.T) {
	s := postgresStores(t)

	managerID, seasonID, subs, now := buildRandomFixture(t, s, 42)
	v := s.valuator(now)

	series := computeBoth(t, v, managerID, seasonID, "A", nil)
	assert.NotEmpty(t, series)
	computeBoth(t, v, managerID, seasonID, "A", subs)

	// Same data in memory gives the same series.
	mem := memoryStores()
	memManager, memSeason, memSubs, memNow := buildRandomFixture(t, mem, 42)
	require.Equal(t, now, memNow)
	require.Equal(t, subs, memSubs)
	memSeries := computeBoth(t, mem.valuator(memNow), memManager, memSeason, "A", nil)
	assertSeries(t, memSeries, series)
}

func TestComputeValueSeries_NowTruncatedToMicrosecondsOnPostgres(t *testing.T) {
	checkSubMicrosecondNow(t, postgresStores(t))
}
