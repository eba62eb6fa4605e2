package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// SeasonStore is an in-memory implementation of storage.SeasonStore.
type SeasonStore struct {
	mu     sync.RWMutex
	data   map[int64]*domain.Season // keyed by id
	nextID int64
}

// NewSeasonStore creates a new in-memory season store.
func NewSeasonStore() *SeasonStore {
	return &SeasonStore{
		data: make(map[int64]*domain.Season),
	}
}

// Insert adds a new season and assigns its ID when zero.
func (s *SeasonStore) Insert(_ context.Context, season *domain.Season) error {
	if season == nil || season.End.Before(season.Start) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if season.ID == 0 {
		s.nextID++
		season.ID = s.nextID
	} else if season.ID > s.nextID {
		s.nextID = season.ID
	}
	if _, exists := s.data[season.ID]; exists {
		return storage.ErrDuplicateKey
	}

	seasonCopy := *season
	s.data[season.ID] = &seasonCopy
	return nil
}

// GetByID retrieves a season. Returns ErrNotFound if not exists.
func (s *SeasonStore) GetByID(_ context.Context, id int64) (*domain.Season, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	season, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	seasonCopy := *season
	return &seasonCopy, nil
}

// Resolve returns the unique season with the given arcade flag containing at.
func (s *SeasonStore) Resolve(_ context.Context, at time.Time, arcade bool) (*domain.Season, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Season
	for _, season := range s.data {
		if season.Arcade != arcade || !season.Contains(at) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("resolve season at %s: %w", at.Format(time.RFC3339), domain.ErrAmbiguousSeason)
		}
		found = season
	}
	if found == nil {
		return nil, fmt.Errorf("resolve season at %s: %w", at.Format(time.RFC3339), domain.ErrNoActiveSeason)
	}

	seasonCopy := *found
	return &seasonCopy, nil
}

// Verify interface compliance at compile time.
var _ storage.SeasonStore = (*SeasonStore)(nil)
