package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// ValuationQuerier is the in-memory implementation of storage.ValuationQuerier.
// It evaluates the same relational plan as the Postgres CTE: checkpoints
// joined with the substituted roster, distinct (checkpoint, player) pairs,
// latest stats per pair, grouped by checkpoint.
type ValuationQuerier struct {
	seasons *SeasonStore
	rosters *RosterStore
	stats   *StatStore
	matches *MatchStore
}

// NewValuationQuerier creates a querier over the given in-memory stores.
func NewValuationQuerier(seasons *SeasonStore, rosters *RosterStore, stats *StatStore, matches *MatchStore) *ValuationQuerier {
	return &ValuationQuerier{
		seasons: seasons,
		rosters: rosters,
		stats:   stats,
		matches: matches,
	}
}

type activePair struct {
	at       int64 // checkpoint unix nanos
	playerID int64
}

// QueryValueSeries returns one TeamValue per checkpoint with at least one active entry.
func (q *ValuationQuerier) QueryValueSeries(ctx context.Context, query storage.ValuationQuery) ([]domain.TeamValue, error) {
	season, err := q.seasons.GetByID(ctx, query.SeasonID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("season %d: %w", query.SeasonID, domain.ErrNoActiveSeason)
	}
	if err != nil {
		return nil, err
	}

	checkpoints := domain.Checkpoints(q.matches.matchTimes(season, query.Now), query.Now)

	// entries: one consistent read of the roster, substitutions applied
	subs := domain.SubstitutionMap(query.Substitutions)
	var entries []*domain.RosterEntry
	for _, e := range q.rosters.snapshot() {
		if e.ManagerID != query.ManagerID || e.SeasonID != query.SeasonID || e.TeamCode != query.TeamCode {
			continue
		}
		if playerID, ok := subs[e.ID]; ok {
			e.PlayerID = playerID
		}
		entries = append(entries, e)
	}

	// active: DISTINCT (checkpoint, player)
	active := make(map[activePair]struct{})
	byCheckpoint := make(map[int64]time.Time, len(checkpoints))
	for _, cp := range checkpoints {
		for _, e := range entries {
			if e.ActiveAt(cp) {
				active[activePair{at: cp.UnixNano(), playerID: e.PlayerID}] = struct{}{}
				byCheckpoint[cp.UnixNano()] = cp
			}
		}
	}

	// lateral latest stats per pair, then SUM ... GROUP BY checkpoint
	sums := make(map[int64]*domain.TeamValue, len(byCheckpoint))
	for key, cp := range byCheckpoint {
		sums[key] = &domain.TeamValue{At: cp, Value: decimal.Zero, TheoreticalValue: decimal.Zero}
	}
	for pair := range active {
		cp := byCheckpoint[pair.at]
		latest, err := q.stats.LatestStatsAt(ctx, []int64{pair.playerID}, query.SeasonID, cp)
		if err != nil {
			return nil, fmt.Errorf("stats for player %d at %s: %w", pair.playerID, cp.Format(time.RFC3339), err)
		}
		st, ok := latest[pair.playerID]
		if !ok {
			continue
		}
		tv := sums[pair.at]
		tv.Value = tv.Value.Add(st.Price)
		tv.TheoreticalValue = tv.TheoreticalValue.Add(st.TheoreticalValue())
	}

	result := make([]domain.TeamValue, 0, len(sums))
	for _, tv := range sums {
		result = append(result, *tv)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].At.Before(result[j].At)
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.ValuationQuerier = (*ValuationQuerier)(nil)
