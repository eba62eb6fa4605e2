package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/lookup"
	"hm-tracker/internal/storage"
)

// StatStore is an in-memory implementation of storage.StatStore.
type StatStore struct {
	mu   sync.RWMutex
	data map[statKey][]*domain.PlayerStats // sorted by validity_date ASC
}

type statKey struct {
	playerID int64
	seasonID int64
}

// NewStatStore creates a new in-memory stat store.
func NewStatStore() *StatStore {
	return &StatStore{
		data: make(map[statKey][]*domain.PlayerStats),
	}
}

// InsertBulk adds snapshots atomically. Fails entire batch on duplicate.
func (s *StatStore) InsertBulk(_ context.Context, stats []*domain.PlayerStats) error {
	if len(stats) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicates first (atomic: all or nothing)
	type fullKey struct {
		statKey
		validity int64
	}
	seen := make(map[fullKey]struct{}, len(stats))
	for _, st := range stats {
		if st == nil {
			return storage.ErrInvalidInput
		}
		k := fullKey{statKey{st.PlayerID, st.SeasonID}, st.ValidityDate.UnixNano()}
		if _, dup := seen[k]; dup {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		for _, existing := range s.data[k.statKey] {
			if existing.ValidityDate.Equal(st.ValidityDate) {
				return storage.ErrDuplicateKey
			}
		}
	}

	touched := make(map[statKey]struct{})
	for _, st := range stats {
		k := statKey{st.PlayerID, st.SeasonID}
		statCopy := *st
		s.data[k] = append(s.data[k], &statCopy)
		touched[k] = struct{}{}
	}
	for k := range touched {
		series := s.data[k]
		sort.Slice(series, func(i, j int) bool {
			return series[i].ValidityDate.Before(series[j].ValidityDate)
		})
	}
	return nil
}

// LatestStatsAt returns, per player, the latest snapshot with validity_date <= at.
func (s *StatStore) LatestStatsAt(_ context.Context, playerIDs []int64, seasonID int64, at time.Time) (map[int64]*domain.PlayerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]*domain.PlayerStats, len(playerIDs))
	for _, id := range playerIDs {
		st, err := lookup.StatsAt(at, s.data[statKey{id, seasonID}])
		if errors.Is(err, lookup.ErrNoStatsData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		statCopy := *st
		result[id] = &statCopy
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.StatStore = (*StatStore)(nil)
