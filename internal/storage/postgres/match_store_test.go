package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

func TestMatchStore_Upsert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMatchStore(pool)
	ctx := context.Background()
	at := time.Date(2025, time.September, 20, 19, 45, 0, 0, time.UTC)

	inserted, updated, err := store.Upsert(ctx, []*domain.Match{
		{ID: 1, HomeClub: "DAV", AwayClub: "ZSC", MatchTime: at},
		{ID: 2, HomeClub: "SCB", AwayClub: "EVZ", MatchTime: at},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 0, updated)

	moved := at.Add(24 * time.Hour)
	inserted, updated, err = store.Upsert(ctx, []*domain.Match{
		{ID: 2, HomeClub: "SCB", AwayClub: "EVZ", MatchTime: moved},
		{ID: 3, HomeClub: "LAU", AwayClub: "GSHC", MatchTime: at},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, updated)

	latest, err := store.Latest(ctx, moved)
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.ID)
	assert.True(t, latest.MatchTime.Equal(moved))

	_, err = store.Latest(ctx, at.Add(-time.Hour))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMatchStore_GetBySeason(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMatchStore(pool)
	ctx := context.Background()
	season := &domain.Season{
		Start: time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.July, 31, 0, 0, 0, 0, time.UTC),
	}

	_, _, err := store.Upsert(ctx, []*domain.Match{
		{ID: 1, HomeClub: "A", AwayClub: "B", MatchTime: time.Date(2025, time.July, 31, 23, 0, 0, 0, time.UTC)},
		{ID: 2, HomeClub: "A", AwayClub: "B", MatchTime: time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)},
		{ID: 3, HomeClub: "A", AwayClub: "B", MatchTime: time.Date(2026, time.July, 31, 23, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	got, err := store.GetBySeason(ctx, season, time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}
