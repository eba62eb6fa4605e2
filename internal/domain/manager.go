package domain

import "time"

// Manager is a fantasy-league account whose rosters are tracked.
// Corresponds to managers table in PostgreSQL.
type Manager struct {
	ID                int64
	Email             string     // UNIQUE
	LastImport        *time.Time // freshness cache for roster sync
	EncryptedPassword *string    // set when registered for autolineup
	Autolineup        bool
	LastAutolineup    *time.Time
}

// Match is an imported fixture used as a valuation checkpoint.
// Corresponds to matches table in PostgreSQL.
type Match struct {
	ID        int64
	HomeClub  string // club code, e.g. "DAV"
	AwayClub  string
	MatchTime time.Time
}

// Task is the audit record of one administrative operation run.
// Corresponds to tasks table in PostgreSQL.
type Task struct {
	ID         int64
	Name       string
	StartAt    time.Time
	EndAt      time.Time
	Error      *string // nil on success
	Stacktrace *string
}

// Failed reports whether the run ended with an error.
func (t *Task) Failed() bool {
	return t.Error != nil
}
