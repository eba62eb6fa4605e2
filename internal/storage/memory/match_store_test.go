package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

func TestMatchStore_UpsertCounts(t *testing.T) {
	store := NewMatchStore()
	ctx := context.Background()
	at := time.Date(2025, time.September, 20, 19, 45, 0, 0, time.UTC)

	inserted, updated, err := store.Upsert(ctx, []*domain.Match{
		{ID: 1, HomeClub: "DAV", AwayClub: "ZSC", MatchTime: at},
		{ID: 2, HomeClub: "SCB", AwayClub: "EVZ", MatchTime: at},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if inserted != 2 || updated != 0 {
		t.Errorf("Expected 2/0, got %d/%d", inserted, updated)
	}

	moved := at.Add(24 * time.Hour)
	inserted, updated, err = store.Upsert(ctx, []*domain.Match{
		{ID: 2, HomeClub: "SCB", AwayClub: "EVZ", MatchTime: moved},
		{ID: 3, HomeClub: "LAU", AwayClub: "GSHC", MatchTime: at},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if inserted != 1 || updated != 1 {
		t.Errorf("Expected 1/1, got %d/%d", inserted, updated)
	}

	latest, err := store.Latest(ctx, moved.Add(time.Hour))
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.ID != 2 {
		t.Errorf("Expected rescheduled match 2 to be latest, got %d", latest.ID)
	}
}

func TestMatchStore_GetBySeason(t *testing.T) {
	store := NewMatchStore()
	ctx := context.Background()
	season := &domain.Season{
		ID:    1,
		Start: time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.July, 31, 0, 0, 0, 0, time.UTC),
	}

	_, _, err := store.Upsert(ctx, []*domain.Match{
		{ID: 1, MatchTime: time.Date(2025, time.July, 30, 19, 0, 0, 0, time.UTC)},
		{ID: 2, MatchTime: time.Date(2025, time.October, 1, 19, 0, 0, 0, time.UTC)},
		{ID: 3, MatchTime: time.Date(2025, time.September, 1, 19, 0, 0, 0, time.UTC)},
		{ID: 4, MatchTime: time.Date(2026, time.March, 1, 19, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.GetBySeason(ctx, season, time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetBySeason failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 2 {
		t.Errorf("Expected matches [3 2], got %+v", got)
	}
}

func TestMatchStore_LatestEmpty(t *testing.T) {
	_, err := NewMatchStore().Latest(context.Background(), time.Now())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
