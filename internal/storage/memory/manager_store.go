package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// ManagerStore is an in-memory implementation of storage.ManagerStore.
type ManagerStore struct {
	mu      sync.RWMutex
	data    map[int64]*domain.Manager // keyed by id
	byEmail map[string]int64
	nextID  int64
}

// NewManagerStore creates a new in-memory manager store.
func NewManagerStore() *ManagerStore {
	return &ManagerStore{
		data:    make(map[int64]*domain.Manager),
		byEmail: make(map[string]int64),
	}
}

// Insert adds a new manager and assigns its ID. Returns ErrDuplicateKey if email exists.
func (s *ManagerStore) Insert(_ context.Context, m *domain.Manager) error {
	if m == nil || m.Email == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[m.Email]; exists {
		return storage.ErrDuplicateKey
	}

	s.nextID++
	m.ID = s.nextID
	s.data[m.ID] = copyManager(m)
	s.byEmail[m.Email] = m.ID
	return nil
}

// GetByID retrieves a manager. Returns ErrNotFound if not exists.
func (s *ManagerStore) GetByID(_ context.Context, id int64) (*domain.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyManager(m), nil
}

// GetByEmail retrieves a manager by email. Returns ErrNotFound if not exists.
func (s *ManagerStore) GetByEmail(_ context.Context, email string) (*domain.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byEmail[email]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyManager(s.data[id]), nil
}

// SetAutolineup stores the opt-in flag and encrypted credential.
func (s *ManagerStore) SetAutolineup(_ context.Context, id int64, enabled bool, encryptedPassword *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	m.Autolineup = enabled
	m.EncryptedPassword = copyString(encryptedPassword)
	return nil
}

// MarkAutolineup sets last_autolineup.
func (s *ManagerStore) MarkAutolineup(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	m.LastAutolineup = &at
	return nil
}

// ListAutolineupPage returns the next page of managers due for autolineup, ordered by id ASC.
func (s *ManagerStore) ListAutolineupPage(_ context.Context, cutoff *time.Time, afterID int64, limit int) ([]*domain.Manager, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Manager
	for _, m := range s.data {
		if m.ID <= afterID || !m.Autolineup {
			continue
		}
		if cutoff != nil && m.LastAutolineup != nil && !m.LastAutolineup.Before(*cutoff) {
			continue
		}
		result = append(result, copyManager(m))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// touchLastImport sets last_import. Used by RosterStore on commit.
func (s *ManagerStore) touchLastImport(id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	m.LastImport = &at
	return nil
}

// exists reports whether a manager id is known.
func (s *ManagerStore) exists(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[id]
	return ok
}

func copyManager(m *domain.Manager) *domain.Manager {
	c := *m
	c.LastImport = copyTime(m.LastImport)
	c.LastAutolineup = copyTime(m.LastAutolineup)
	c.EncryptedPassword = copyString(m.EncryptedPassword)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Verify interface compliance at compile time.
var _ storage.ManagerStore = (*ManagerStore)(nil)
