package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// MatchStore is an in-memory implementation of storage.MatchStore.
type MatchStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.Match // keyed by match id
}

// NewMatchStore creates a new in-memory match store.
func NewMatchStore() *MatchStore {
	return &MatchStore{
		data: make(map[int64]*domain.Match),
	}
}

// Upsert inserts new matches and updates existing ids in place.
func (s *MatchStore) Upsert(_ context.Context, matches []*domain.Match) (int, int, error) {
	for _, m := range matches {
		if m == nil || m.ID == 0 {
			return 0, 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted, updated int
	for _, m := range matches {
		if _, exists := s.data[m.ID]; exists {
			updated++
		} else {
			inserted++
		}
		matchCopy := *m
		s.data[m.ID] = &matchCopy
	}
	return inserted, updated, nil
}

// GetBySeason retrieves matches inside the season window played at or before until.
func (s *MatchStore) GetBySeason(_ context.Context, season *domain.Season, until time.Time) ([]*domain.Match, error) {
	if season == nil {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Match
	for _, m := range s.data {
		if season.Contains(m.MatchTime) && !m.MatchTime.After(until) {
			matchCopy := *m
			result = append(result, &matchCopy)
		}
	}

	sortMatches(result)
	return result, nil
}

// Latest retrieves the most recent match at or before until.
func (s *MatchStore) Latest(_ context.Context, until time.Time) (*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Match
	for _, m := range s.data {
		if m.MatchTime.After(until) {
			continue
		}
		if latest == nil || m.MatchTime.After(latest.MatchTime) {
			latest = m
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	matchCopy := *latest
	return &matchCopy, nil
}

// matchTimes returns the match times of the season window at or before until.
func (s *MatchStore) matchTimes(season *domain.Season, until time.Time) []time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var times []time.Time
	for _, m := range s.data {
		if season.Contains(m.MatchTime) && !m.MatchTime.After(until) {
			times = append(times, m.MatchTime)
		}
	}
	return times
}

func sortMatches(matches []*domain.Match) {
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].MatchTime.Equal(matches[j].MatchTime) {
			return matches[i].MatchTime.Before(matches[j].MatchTime)
		}
		return matches[i].ID < matches[j].ID
	})
}

// Verify interface compliance at compile time.
var _ storage.MatchStore = (*MatchStore)(nil)
