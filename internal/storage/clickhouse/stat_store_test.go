package clickhouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
	"hm-tracker/internal/storage/clickhouse"
)

func TestStatStore_InsertAndLatest(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewStatStore(conn)
	ctx := context.Background()

	d1 := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, time.September, 15, 0, 0, 0, 0, time.UTC)

	err := store.InsertBulk(ctx, []*domain.PlayerStats{
		{PlayerID: 1, SeasonID: 1, ValidityDate: d1, Price: decimal.RequireFromString("10.5"), HMPoints: ptr(int64(40)), Appearances: ptr(int64(4))},
		{PlayerID: 1, SeasonID: 1, ValidityDate: d2, Price: decimal.RequireFromString("11.25")},
		{PlayerID: 2, SeasonID: 1, ValidityDate: d2, Price: decimal.NewFromInt(3)},
	})
	require.NoError(t, err)

	got, err := store.LatestStatsAt(ctx, []int64{1, 2, 3}, 1, d1.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, decimal.RequireFromString("10.5").Equal(got[1].Price))
	require.NotNil(t, got[1].Appearances)
	assert.Equal(t, int64(4), *got[1].Appearances)

	got, err = store.LatestStatsAt(ctx, []int64{1, 2}, 1, d2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, decimal.RequireFromString("11.25").Equal(got[1].Price))
	assert.Nil(t, got[1].HMPoints)
}

func TestStatStore_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewStatStore(conn)
	ctx := context.Background()
	d1 := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

	st := &domain.PlayerStats{PlayerID: 1, SeasonID: 1, ValidityDate: d1, Price: decimal.NewFromInt(10)}
	require.NoError(t, store.InsertBulk(ctx, []*domain.PlayerStats{st}))

	err := store.InsertBulk(ctx, []*domain.PlayerStats{st})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.InsertBulk(ctx, []*domain.PlayerStats{
		{PlayerID: 5, SeasonID: 1, ValidityDate: d1, Price: decimal.NewFromInt(1)},
		{PlayerID: 5, SeasonID: 1, ValidityDate: d1, Price: decimal.NewFromInt(2)},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
