package lookup

import (
	"errors"
	"time"

	"hm-tracker/internal/domain"
)

// ErrNoStatsData is returned when no snapshot is valid at the target time.
var ErrNoStatsData = errors.New("no stats data available")

// StatsAt returns the latest snapshot with ValidityDate at or before target.
// snapshots must be ordered by ValidityDate ASC.
// Unlike a price carry-back, a target before the first snapshot yields
// ErrNoStatsData: the player had no known value yet.
func StatsAt(target time.Time, snapshots []*domain.PlayerStats) (*domain.PlayerStats, error) {
	for i := len(snapshots) - 1; i >= 0; i-- {
		if !snapshots[i].ValidityDate.After(target) {
			return snapshots[i], nil
		}
	}
	return nil, ErrNoStatsData
}
