package domain

import "time"

// RosterEntry records that a player occupied a manager's roster slot during
// [From, To). Corresponds to roster_entries table in PostgreSQL.
type RosterEntry struct {
	ID        int64      // PRIMARY KEY
	ManagerID int64      // owning manager
	TeamCode  string     // roster grouping key (division/league)
	PlayerID  int64      // real player id
	SeasonID  int64      // season the entry belongs to
	From      *time.Time // nil: since roster inception
	To        *time.Time // nil: still active
}

// IsActive reports whether the entry is still open.
func (e *RosterEntry) IsActive() bool {
	return e.To == nil
}

// ActiveAt reports whether From <= at <= To, treating nil bounds as infinite.
func (e *RosterEntry) ActiveAt(at time.Time) bool {
	if e.From != nil && e.From.After(at) {
		return false
	}
	if e.To != nil && at.After(*e.To) {
		return false
	}
	return true
}

// RosterDiff describes the effect of one snapshot import.
type RosterDiff struct {
	SeasonID  int64
	Closed    []*RosterEntry // entries whose To was set by this import
	Opened    []*RosterEntry // entries created by this import
	Unchanged []int64        // player ids present before and after
}

// IsEmpty reports whether the import changed no roster entries.
func (d *RosterDiff) IsEmpty() bool {
	return len(d.Closed) == 0 && len(d.Opened) == 0
}
