package domain

import (
	"errors"
	"time"
)

// Season errors.
var (
	// ErrNoActiveSeason is returned when no season window contains a timestamp,
	// or when a referenced season does not exist.
	ErrNoActiveSeason = errors.New("no active season")

	// ErrAmbiguousSeason is returned when more than one season with the same
	// arcade flag contains a timestamp.
	ErrAmbiguousSeason = errors.New("more than one season matches")
)

// Season represents a validity window partitioning roster and stat data.
// Corresponds to seasons table in PostgreSQL.
type Season struct {
	ID     int64
	Name   string
	Start  time.Time // first day, UTC midnight
	End    time.Time // last day, UTC midnight (inclusive)
	Arcade bool
}

// Contains reports whether at falls within [Start, End] at day granularity (UTC).
func (s *Season) Contains(at time.Time) bool {
	day := TruncateDay(at)
	return !day.Before(TruncateDay(s.Start)) && !day.After(TruncateDay(s.End))
}

// TruncateDay returns UTC midnight of the day containing t.
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last nanosecond of the UTC day containing t.
func EndOfDay(t time.Time) time.Time {
	return TruncateDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return TruncateDay(a).Equal(TruncateDay(b))
}
