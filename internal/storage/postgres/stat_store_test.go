package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

func TestStatStore_LatestStatsAt(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	_, seasonID := seedManager(t, ctx, pool)
	store := NewStatStore(pool)

	d1 := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, time.September, 25, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertBulk(ctx, []*domain.PlayerStats{
		{PlayerID: 1, SeasonID: seasonID, ValidityDate: d1, Price: decimal.RequireFromString("8.250000"), HMPoints: ptr(int64(40)), Appearances: ptr(int64(4))},
		{PlayerID: 1, SeasonID: seasonID, ValidityDate: d2, Price: decimal.NewFromInt(9)},
		{PlayerID: 2, SeasonID: seasonID, ValidityDate: d2, Price: decimal.NewFromInt(5)},
	}))

	got, err := store.LatestStatsAt(ctx, []int64{1, 2, 3}, seasonID, d1.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1, "player 2 has no snapshot yet, player 3 none at all")
	assert.True(t, decimal.RequireFromString("8.25").Equal(got[1].Price))
	require.NotNil(t, got[1].HMPoints)
	assert.Equal(t, int64(40), *got[1].HMPoints)

	got, err = store.LatestStatsAt(ctx, []int64{1, 2}, seasonID, d2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, decimal.NewFromInt(9).Equal(got[1].Price))
	assert.Nil(t, got[1].Appearances)
}

func TestStatStore_InsertBulkAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	_, seasonID := seedManager(t, ctx, pool)
	store := NewStatStore(pool)
	d1 := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertBulk(ctx, []*domain.PlayerStats{
		{PlayerID: 1, SeasonID: seasonID, ValidityDate: d1, Price: decimal.NewFromInt(8)},
	}))

	err := store.InsertBulk(ctx, []*domain.PlayerStats{
		{PlayerID: 2, SeasonID: seasonID, ValidityDate: d1, Price: decimal.NewFromInt(5)},
		{PlayerID: 1, SeasonID: seasonID, ValidityDate: d1, Price: decimal.NewFromInt(9)},
	})
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey), "got %v", err)

	got, err := store.LatestStatsAt(ctx, []int64{2}, seasonID, d1)
	require.NoError(t, err)
	assert.Empty(t, got, "failed batch must not leave partial rows")
}
