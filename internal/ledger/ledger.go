// Package ledger maintains the interval-based ownership history of players
// on fantasy rosters.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/observability"
	"hm-tracker/internal/storage"
)

// ErrTemporalViolation is returned when a snapshot predates a change
// already recorded for the roster.
var ErrTemporalViolation = errors.New("snapshot predates a recorded roster change")

// Ledger applies roster snapshots as open/close diffs on roster entries.
type Ledger struct {
	seasons storage.SeasonStore
	rosters storage.RosterStore
	now     func() time.Time
	logger  *log.Logger
}

// Options for creating Ledger.
type Options struct {
	Seasons storage.SeasonStore
	Rosters storage.RosterStore

	Now    func() time.Time // defaults to time.Now
	Logger *log.Logger      // nil discards
}

// New creates a new Ledger.
func New(opts Options) *Ledger {
	l := &Ledger{
		seasons: opts.Seasons,
		rosters: opts.Rosters,
		now:     opts.Now,
		logger:  opts.Logger,
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.logger == nil {
		l.logger = log.New(io.Discard, "", 0)
	}
	return l
}

// ImportSnapshot records that playerIDs form the roster of (managerID,
// teamCode) at time at. Players that left are closed at at, newcomers are
// opened at at (or since inception on the very first import of the roster),
// players present before and after are left untouched. The diff and the
// manager's last_import are committed atomically.
func (l *Ledger) ImportSnapshot(ctx context.Context, managerID int64, teamCode string, playerIDs []int64, at time.Time) (*domain.RosterDiff, error) {
	start := time.Now()

	diff, err := l.importSnapshot(ctx, managerID, teamCode, playerIDs, at)

	outcome := "ok"
	switch {
	case errors.Is(err, ErrTemporalViolation):
		outcome = "temporal_violation"
	case errors.Is(err, domain.ErrNoActiveSeason), errors.Is(err, domain.ErrAmbiguousSeason):
		outcome = "no_season"
	case err != nil:
		outcome = "error"
	}
	if err != nil {
		observability.RecordImport(outcome, 0, 0, time.Since(start).Seconds())
		return nil, err
	}

	observability.RecordImport(outcome, len(diff.Opened), len(diff.Closed), time.Since(start).Seconds())
	if !diff.IsEmpty() {
		l.logger.Printf("manager %d team %s: opened %d, closed %d, unchanged %d",
			managerID, teamCode, len(diff.Opened), len(diff.Closed), len(diff.Unchanged))
	}
	return diff, nil
}

func (l *Ledger) importSnapshot(ctx context.Context, managerID int64, teamCode string, playerIDs []int64, at time.Time) (*domain.RosterDiff, error) {
	if teamCode == "" {
		return nil, fmt.Errorf("import snapshot: empty team code: %w", storage.ErrInvalidInput)
	}

	season, err := l.seasons.Resolve(ctx, at, false)
	if err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}

	current := uniquePlayers(playerIDs)

	var diff *domain.RosterDiff
	err = l.rosters.WithLedgerTx(ctx, managerID, teamCode, func(ctx context.Context, tx storage.LedgerTx) error {
		diff = &domain.RosterDiff{SeasonID: season.ID}

		closed, err := l.closeFinishedSeasons(ctx, tx, managerID, season.ID, teamCode, at)
		if err != nil {
			return err
		}
		diff.Closed = append(diff.Closed, closed...)

		active, err := tx.ActiveEntries(ctx, managerID, season.ID, teamCode)
		if err != nil {
			return fmt.Errorf("load active entries: %w", err)
		}

		inception := false
		if len(active) == 0 {
			has, err := tx.HasEntries(ctx, managerID, teamCode)
			if err != nil {
				return fmt.Errorf("check roster history: %w", err)
			}
			inception = !has
		}

		stillActive := make(map[int64]struct{}, len(active))
		for _, e := range active {
			if _, keep := current[e.PlayerID]; keep {
				if e.From != nil && e.From.After(at) {
					return fmt.Errorf("player %d active since %s, snapshot at %s: %w",
						e.PlayerID, e.From.Format(time.RFC3339), at.Format(time.RFC3339), ErrTemporalViolation)
				}
				stillActive[e.PlayerID] = struct{}{}
				diff.Unchanged = append(diff.Unchanged, e.PlayerID)
				continue
			}

			if e.From != nil && !e.From.Before(at) {
				return fmt.Errorf("close player %d opened at %s with snapshot at %s: %w",
					e.PlayerID, e.From.Format(time.RFC3339), at.Format(time.RFC3339), ErrTemporalViolation)
			}
			if err := tx.CloseEntry(ctx, e.ID, at); err != nil {
				return fmt.Errorf("close entry %d: %w", e.ID, err)
			}
			closedAt := at
			e.To = &closedAt
			diff.Closed = append(diff.Closed, e)
		}

		for _, playerID := range sortedPlayers(current) {
			if _, ok := stillActive[playerID]; ok {
				continue
			}
			entry := &domain.RosterEntry{
				ManagerID: managerID,
				TeamCode:  teamCode,
				PlayerID:  playerID,
				SeasonID:  season.ID,
			}
			if !inception {
				from := at
				entry.From = &from
			}
			if err := tx.InsertEntry(ctx, entry); err != nil {
				return fmt.Errorf("open entry for player %d: %w", playerID, err)
			}
			diff.Opened = append(diff.Opened, entry)
		}

		return tx.TouchLastImport(ctx, managerID, l.now())
	})
	if err != nil {
		return nil, fmt.Errorf("import snapshot for manager %d team %s: %w", managerID, teamCode, err)
	}

	sort.Slice(diff.Unchanged, func(i, j int) bool { return diff.Unchanged[i] < diff.Unchanged[j] })
	return diff, nil
}

// closeFinishedSeasons closes entries still open in seasons that ended
// before at, at the last instant of their season, so a player never holds
// two open entries on the same roster.
func (l *Ledger) closeFinishedSeasons(ctx context.Context, tx storage.LedgerTx, managerID, seasonID int64, teamCode string, at time.Time) ([]*domain.RosterEntry, error) {
	open, err := tx.OpenEntriesOutside(ctx, managerID, seasonID, teamCode)
	if err != nil {
		return nil, fmt.Errorf("load open entries of other seasons: %w", err)
	}

	ends := make(map[int64]time.Time)
	var closed []*domain.RosterEntry
	for _, e := range open {
		end, ok := ends[e.SeasonID]
		if !ok {
			s, err := l.seasons.GetByID(ctx, e.SeasonID)
			if err != nil {
				return nil, fmt.Errorf("season %d: %w", e.SeasonID, err)
			}
			end = domain.EndOfDay(s.End).Truncate(time.Microsecond)
			ends[e.SeasonID] = end
		}
		// An import into an earlier season leaves later seasons alone.
		if !end.Before(at) {
			continue
		}
		if e.From != nil && e.From.After(end) {
			return nil, fmt.Errorf("player %d opened at %s after its season ended: %w",
				e.PlayerID, e.From.Format(time.RFC3339), ErrTemporalViolation)
		}
		if err := tx.CloseEntry(ctx, e.ID, end); err != nil {
			return nil, fmt.Errorf("close entry %d: %w", e.ID, err)
		}
		closedAt := end
		e.To = &closedAt
		closed = append(closed, e)
		l.logger.Printf("manager %d team %s: closed player %d at end of season %d",
			managerID, teamCode, e.PlayerID, e.SeasonID)
	}
	return closed, nil
}

func uniquePlayers(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortedPlayers(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
