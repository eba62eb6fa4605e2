package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// RosterStore is an in-memory implementation of storage.RosterStore.
// Ledger transactions buffer their writes and apply them under a single
// write lock, so readers observe either none or all of an import.
type RosterStore struct {
	mu       sync.RWMutex
	data     map[int64]*domain.RosterEntry // keyed by entry id
	nextID   int64
	managers *ManagerStore
	locks    *keyedMutex
}

// NewRosterStore creates a new in-memory roster store.
// managers receives last_import updates on commit.
func NewRosterStore(managers *ManagerStore) *RosterStore {
	return &RosterStore{
		data:     make(map[int64]*domain.RosterEntry),
		managers: managers,
		locks:    newKeyedMutex(),
	}
}

// WithLedgerTx runs fn with writers of the same (manager, team) serialized.
func (s *RosterStore) WithLedgerTx(ctx context.Context, managerID int64, teamCode string, fn func(ctx context.Context, tx storage.LedgerTx) error) error {
	unlock := s.locks.Lock(rosterKey{managerID: managerID, teamCode: teamCode})
	defer unlock()

	tx := &ledgerTx{
		store:  s,
		closes: make(map[int64]time.Time),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

// GetTeam retrieves all entries of (manager, season, team), ordered by id.
func (s *RosterStore) GetTeam(_ context.Context, managerID, seasonID int64, teamCode string) ([]*domain.RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RosterEntry
	for _, e := range s.data {
		if e.ManagerID == managerID && e.SeasonID == seasonID && e.TeamCode == teamCode {
			result = append(result, copyEntry(e))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetTeams retrieves all entries of a manager, ordered by team code then id.
func (s *RosterStore) GetTeams(_ context.Context, managerID int64, seasonID *int64) ([]*domain.RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RosterEntry
	for _, e := range s.data {
		if e.ManagerID != managerID {
			continue
		}
		if seasonID != nil && e.SeasonID != *seasonID {
			continue
		}
		result = append(result, copyEntry(e))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TeamCode != result[j].TeamCode {
			return result[i].TeamCode < result[j].TeamCode
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Len returns the number of stored entries.
func (s *RosterStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// snapshot returns copies of every stored entry.
func (s *RosterStore) snapshot() []*domain.RosterEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.RosterEntry, 0, len(s.data))
	for _, e := range s.data {
		result = append(result, copyEntry(e))
	}
	return result
}

func (s *RosterStore) allocateID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

// commit applies buffered writes under one write lock.
func (s *RosterStore) commit(tx *ledgerTx) error {
	s.mu.Lock()
	for id := range tx.closes {
		e, exists := s.data[id]
		if !exists || e.To != nil {
			s.mu.Unlock()
			return fmt.Errorf("close entry %d: %w", id, storage.ErrNotFound)
		}
	}
	for id, at := range tx.closes {
		closedAt := at
		s.data[id].To = &closedAt
	}
	for _, e := range tx.inserts {
		s.data[e.ID] = copyEntry(e)
	}
	s.mu.Unlock()

	if tx.lastImport != nil {
		if err := s.managers.touchLastImport(tx.lastImport.managerID, tx.lastImport.at); err != nil {
			return fmt.Errorf("touch last import: %w", err)
		}
	}
	return nil
}

// ledgerTx buffers writes of one WithLedgerTx call.
type ledgerTx struct {
	store      *RosterStore
	closes     map[int64]time.Time
	inserts    []*domain.RosterEntry
	lastImport *struct {
		managerID int64
		at        time.Time
	}
}

func (tx *ledgerTx) ActiveEntries(_ context.Context, managerID, seasonID int64, teamCode string) ([]*domain.RosterEntry, error) {
	tx.store.mu.RLock()
	var result []*domain.RosterEntry
	for _, e := range tx.store.data {
		if e.ManagerID != managerID || e.SeasonID != seasonID || e.TeamCode != teamCode || e.To != nil {
			continue
		}
		if _, closed := tx.closes[e.ID]; closed {
			continue
		}
		result = append(result, copyEntry(e))
	}
	tx.store.mu.RUnlock()

	for _, e := range tx.inserts {
		if e.ManagerID == managerID && e.SeasonID == seasonID && e.TeamCode == teamCode {
			result = append(result, copyEntry(e))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (tx *ledgerTx) OpenEntriesOutside(_ context.Context, managerID, seasonID int64, teamCode string) ([]*domain.RosterEntry, error) {
	tx.store.mu.RLock()
	var result []*domain.RosterEntry
	for _, e := range tx.store.data {
		if e.ManagerID != managerID || e.SeasonID == seasonID || e.TeamCode != teamCode || e.To != nil {
			continue
		}
		if _, closed := tx.closes[e.ID]; closed {
			continue
		}
		result = append(result, copyEntry(e))
	}
	tx.store.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (tx *ledgerTx) HasEntries(_ context.Context, managerID int64, teamCode string) (bool, error) {
	for _, e := range tx.inserts {
		if e.ManagerID == managerID && e.TeamCode == teamCode {
			return true, nil
		}
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for _, e := range tx.store.data {
		if e.ManagerID == managerID && e.TeamCode == teamCode {
			return true, nil
		}
	}
	return false, nil
}

func (tx *ledgerTx) CloseEntry(_ context.Context, entryID int64, at time.Time) error {
	tx.store.mu.RLock()
	e, exists := tx.store.data[entryID]
	active := exists && e.To == nil
	tx.store.mu.RUnlock()

	if !active {
		return fmt.Errorf("close entry %d: %w", entryID, storage.ErrNotFound)
	}
	tx.closes[entryID] = at
	return nil
}

func (tx *ledgerTx) InsertEntry(_ context.Context, e *domain.RosterEntry) error {
	if e == nil || e.TeamCode == "" {
		return storage.ErrInvalidInput
	}
	e.ID = tx.store.allocateID()
	tx.inserts = append(tx.inserts, copyEntry(e))
	return nil
}

func (tx *ledgerTx) TouchLastImport(_ context.Context, managerID int64, at time.Time) error {
	if !tx.store.managers.exists(managerID) {
		return fmt.Errorf("manager %d: %w", managerID, storage.ErrNotFound)
	}
	tx.lastImport = &struct {
		managerID int64
		at        time.Time
	}{managerID: managerID, at: at}
	return nil
}

func copyEntry(e *domain.RosterEntry) *domain.RosterEntry {
	c := *e
	c.From = copyTime(e.From)
	c.To = copyTime(e.To)
	return &c
}

// rosterKey identifies one serialized ledger stream.
type rosterKey struct {
	managerID int64
	teamCode  string
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[rosterKey]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[rosterKey]*refMutex)}
}

// Lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) Lock(key rosterKey) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Verify interface compliance at compile time.
var _ storage.RosterStore = (*RosterStore)(nil)
