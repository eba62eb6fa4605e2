package postgres

import (
	"context"
	"fmt"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// TaskStore implements storage.TaskStore using PostgreSQL.
type TaskStore struct {
	pool *Pool
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(pool *Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TaskStore = (*TaskStore)(nil)

// Insert adds a task record and assigns its ID.
func (s *TaskStore) Insert(ctx context.Context, t *domain.Task) error {
	if t == nil || t.Name == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tasks (name, start_at, end_at, error, stacktrace)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	if err := s.pool.conn(ctx).QueryRow(ctx, query, t.Name, t.StartAt, t.EndAt, t.Error, t.Stacktrace).Scan(&t.ID); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// List retrieves the most recent tasks, newest first.
func (s *TaskStore) List(ctx context.Context, limit int) ([]*domain.Task, error) {
	query := `
		SELECT id, name, start_at, end_at, error, stacktrace
		FROM tasks
		ORDER BY id DESC
		LIMIT NULLIF($1, 0)
	`

	rows, err := s.pool.conn(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var result []*domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.Name, &t.StartAt, &t.EndAt, &t.Error, &t.Stacktrace); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return result, nil
}
