package memory

import (
	"context"
	"sync"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// TaskStore is an in-memory implementation of storage.TaskStore.
type TaskStore struct {
	mu   sync.RWMutex
	data []*domain.Task // append-only, insertion order
}

// NewTaskStore creates a new in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{}
}

// Insert adds a task record and assigns its ID.
func (s *TaskStore) Insert(_ context.Context, t *domain.Task) error {
	if t == nil || t.Name == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = int64(len(s.data) + 1)
	taskCopy := *t
	s.data = append(s.data, &taskCopy)
	return nil
}

// List retrieves the most recent tasks, newest first.
func (s *TaskStore) List(_ context.Context, limit int) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Task
	for i := len(s.data) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		taskCopy := *s.data[i]
		result = append(result, &taskCopy)
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TaskStore = (*TaskStore)(nil)
