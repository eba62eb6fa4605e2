package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

func TestStatStore_LatestStatsAt(t *testing.T) {
	store := NewStatStore()
	ctx := context.Background()
	d1 := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, time.September, 15, 0, 0, 0, 0, time.UTC)

	stats := []*domain.PlayerStats{
		{PlayerID: 1, SeasonID: 1, ValidityDate: d2, Price: decimal.NewFromInt(12)},
		{PlayerID: 1, SeasonID: 1, ValidityDate: d1, Price: decimal.NewFromInt(10)},
		{PlayerID: 2, SeasonID: 1, ValidityDate: d2, Price: decimal.NewFromInt(5)},
		{PlayerID: 1, SeasonID: 2, ValidityDate: d1, Price: decimal.NewFromInt(99)},
	}
	if err := store.InsertBulk(ctx, stats); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.LatestStatsAt(ctx, []int64{1, 2, 3}, 1, d1.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("LatestStatsAt failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 player with stats, got %d", len(got))
	}
	if !got[1].Price.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Price mismatch: got %s, want 10", got[1].Price)
	}

	got, err = store.LatestStatsAt(ctx, []int64{1, 2}, 1, d2)
	if err != nil {
		t.Fatalf("LatestStatsAt failed: %v", err)
	}
	if len(got) != 2 || !got[1].Price.Equal(decimal.NewFromInt(12)) {
		t.Errorf("Expected snapshot valid exactly at d2, got %+v", got)
	}
}

func TestStatStore_DuplicateKey(t *testing.T) {
	store := NewStatStore()
	ctx := context.Background()
	d1 := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

	stats := []*domain.PlayerStats{{PlayerID: 1, SeasonID: 1, ValidityDate: d1, Price: decimal.NewFromInt(10)}}
	if err := store.InsertBulk(ctx, stats); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, []*domain.PlayerStats{
		{PlayerID: 2, SeasonID: 1, ValidityDate: d1, Price: decimal.NewFromInt(1)},
		{PlayerID: 1, SeasonID: 1, ValidityDate: d1, Price: decimal.NewFromInt(11)},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Batch is atomic: player 2 must not be stored.
	got, _ := store.LatestStatsAt(ctx, []int64{2}, 1, d1)
	if len(got) != 0 {
		t.Errorf("Expected failed batch to store nothing, got %+v", got)
	}
}
