package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}

func TestSeason_Contains(t *testing.T) {
	s := &Season{ID: 1, Start: date(2025, time.August, 1), End: date(2026, time.July, 31)}

	assert.True(t, s.Contains(date(2025, time.August, 1)))
	assert.True(t, s.Contains(date(2026, time.July, 31).Add(23*time.Hour)), "last day is inclusive")
	assert.False(t, s.Contains(date(2025, time.July, 31).Add(23*time.Hour)))
	assert.False(t, s.Contains(date(2026, time.August, 1)))
}

func TestEndOfDay(t *testing.T) {
	at := time.Date(2025, time.October, 11, 19, 45, 0, 0, time.UTC)
	eod := EndOfDay(at)

	assert.Equal(t, date(2025, time.October, 12).Add(-time.Nanosecond), eod)
	assert.True(t, SameDay(at, eod))
}

func TestRosterEntry_ActiveAt(t *testing.T) {
	t0 := date(2025, time.September, 1)
	t1 := date(2025, time.October, 1)

	open := &RosterEntry{From: nil, To: nil}
	assert.True(t, open.ActiveAt(t0))

	closed := &RosterEntry{From: &t0, To: &t1}
	assert.True(t, closed.ActiveAt(t0), "from bound inclusive")
	assert.True(t, closed.ActiveAt(t1), "to bound inclusive")
	assert.False(t, closed.ActiveAt(t0.Add(-time.Second)))
	assert.False(t, closed.ActiveAt(t1.Add(time.Second)))
}

func TestPlayerStats_TheoreticalValue(t *testing.T) {
	tests := []struct {
		name  string
		stats PlayerStats
		want  string
	}{
		{"points per appearance", PlayerStats{Price: decimal.NewFromInt(10), HMPoints: ptr(int64(50)), Appearances: ptr(int64(4))}, "12.5"},
		{"zero appearances falls back to price", PlayerStats{Price: decimal.NewFromInt(10), HMPoints: ptr(int64(50)), Appearances: ptr(int64(0))}, "10"},
		{"missing appearances falls back to price", PlayerStats{Price: decimal.NewFromInt(7), HMPoints: ptr(int64(50))}, "7"},
		{"missing points falls back to price", PlayerStats{Price: decimal.NewFromInt(7), Appearances: ptr(int64(3))}, "7"},
		{"repeating quotient rounded", PlayerStats{Price: decimal.NewFromInt(1), HMPoints: ptr(int64(2)), Appearances: ptr(int64(3))}, "0.666667"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.stats.TheoreticalValue()
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestCheckpoints(t *testing.T) {
	m1 := time.Date(2025, time.September, 20, 19, 45, 0, 0, time.UTC)
	m2 := time.Date(2025, time.September, 27, 19, 45, 0, 0, time.UTC)
	future := time.Date(2025, time.December, 1, 19, 45, 0, 0, time.UTC)

	t.Run("appends now on a later day", func(t *testing.T) {
		now := time.Date(2025, time.October, 2, 8, 0, 0, 0, time.UTC)
		got := Checkpoints([]time.Time{m2, m1, m1, future}, now)
		require.Len(t, got, 3)
		assert.Equal(t, []time.Time{m1, m2, now}, got)
	})

	t.Run("skips now on a match day", func(t *testing.T) {
		now := time.Date(2025, time.September, 27, 22, 0, 0, 0, time.UTC)
		got := Checkpoints([]time.Time{m1, m2}, now)
		assert.Equal(t, []time.Time{m1, m2}, got)
	})

	t.Run("no matches yields now", func(t *testing.T) {
		now := time.Date(2025, time.August, 5, 8, 0, 0, 0, time.UTC)
		got := Checkpoints(nil, now)
		assert.Equal(t, []time.Time{now}, got)
	})
}

func TestSubstitutionMap_LastWins(t *testing.T) {
	m := SubstitutionMap([]Substitution{{EntryID: 1, PlayerID: 10}, {EntryID: 1, PlayerID: 11}, {EntryID: 2, PlayerID: 20}})
	assert.Equal(t, map[int64]int64{1: 11, 2: 20}, m)
}

func TestParseSubstitutions(t *testing.T) {
	subs, err := ParseSubstitutions(" 12:345, 13:400 ")
	require.NoError(t, err)
	assert.Equal(t, []Substitution{{EntryID: 12, PlayerID: 345}, {EntryID: 13, PlayerID: 400}}, subs)

	subs, err = ParseSubstitutions("")
	require.NoError(t, err)
	assert.Empty(t, subs)

	for _, bad := range []string{"12", "a:1", "1:b", "1:2,"} {
		_, err := ParseSubstitutions(bad)
		assert.Error(t, err, bad)
	}
}
