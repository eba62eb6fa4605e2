package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 */2 * * *", false},
		{"30 5 * * 1-5", false},
		{"@hourly", false},
		{"every tuesday", true},
		{"* * * *", true},
		{"61 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateSchedule(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNext(t *testing.T) {
	at := time.Date(2025, time.October, 12, 9, 15, 0, 0, time.UTC)

	next, err := Next("0 */2 * * *", at)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.October, 12, 10, 0, 0, 0, time.UTC), next)

	_, err = Next("nope", at)
	assert.Error(t, err)
}

func TestScheduler_AddAndJobs(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Stop()

	require.NoError(t, s.Add("Autolineup", "0 */2 * * *", func() {}))
	assert.Error(t, s.Add("Broken", "every tuesday", func() {}))

	s.Start()

	at := time.Date(2025, time.October, 12, 9, 15, 0, 0, time.UTC)
	jobs := s.Jobs(at)
	require.Len(t, jobs, 1)
	assert.Equal(t, time.Date(2025, time.October, 12, 10, 0, 0, 0, time.UTC), jobs["Autolineup"])
}
