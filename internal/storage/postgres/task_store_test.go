package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hm-tracker/internal/domain"
)

func TestTaskStore_InsertAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTaskStore(pool)
	ctx := context.Background()
	start := time.Date(2025, time.October, 2, 4, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, &domain.Task{Name: "Autolineup", StartAt: start, EndAt: start.Add(time.Minute)}))
	require.NoError(t, store.Insert(ctx, &domain.Task{
		Name:       "Align teams",
		StartAt:    start.Add(time.Hour),
		EndAt:      start.Add(time.Hour + time.Minute),
		Error:      ptr("connection refused"),
		Stacktrace: ptr("connect: connection refused"),
	}))

	tasks, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Align teams", tasks[0].Name)
	assert.True(t, tasks[0].Failed())
	assert.False(t, tasks[1].Failed())

	tasks, err = store.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}
