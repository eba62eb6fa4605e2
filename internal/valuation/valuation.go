// Package valuation computes the value of a roster over time from the
// roster ledger and player statistics.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/observability"
	"hm-tracker/internal/storage"
)

// Strategy selects how a value series is computed.
type Strategy string

const (
	// Iterative walks checkpoints and resolves stats per checkpoint.
	Iterative Strategy = "iterative"
	// Aggregate delegates to a single relational query.
	Aggregate Strategy = "aggregate"
)

// ParseStrategy converts a flag value into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Iterative, Aggregate:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown valuation strategy %q", s)
	}
}

// Valuator computes roster value series. It never writes.
type Valuator struct {
	seasons  storage.SeasonStore
	rosters  storage.RosterStore
	stats    storage.StatStore
	matches  storage.MatchStore
	querier  storage.ValuationQuerier
	strategy Strategy
	now      func() time.Time
	logger   *log.Logger
}

// Options for creating Valuator.
type Options struct {
	Seasons storage.SeasonStore
	Rosters storage.RosterStore
	Stats   storage.StatStore
	Matches storage.MatchStore

	// Querier is required for the Aggregate strategy.
	Querier  storage.ValuationQuerier
	Strategy Strategy // defaults to Iterative

	Now    func() time.Time // defaults to time.Now
	Logger *log.Logger      // nil discards
}

// New creates a new Valuator.
func New(opts Options) *Valuator {
	v := &Valuator{
		seasons:  opts.Seasons,
		rosters:  opts.Rosters,
		stats:    opts.Stats,
		matches:  opts.Matches,
		querier:  opts.Querier,
		strategy: opts.Strategy,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if v.strategy == "" {
		v.strategy = Iterative
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.logger == nil {
		v.logger = log.New(io.Discard, "", 0)
	}
	return v
}

// Strategy returns the configured strategy.
func (v *Valuator) Strategy() Strategy {
	return v.strategy
}

// At returns a copy of v whose clock is fixed at now, so several calls
// share one "now" checkpoint.
func (v *Valuator) At(now time.Time) *Valuator {
	c := *v
	c.now = func() time.Time { return now }
	return &c
}

// ComputeValueSeries returns the value of (managerID, seasonID, teamCode) at
// every checkpoint with at least one active entry, in ascending order.
// Substitutions replace the player of the given entries for this call only.
func (v *Valuator) ComputeValueSeries(ctx context.Context, managerID, seasonID int64, teamCode string, subs []domain.Substitution) ([]domain.TeamValue, error) {
	return v.computeWith(ctx, v.strategy, managerID, seasonID, teamCode, subs)
}

// ComputeCurrentValueSeries resolves the current regular season and computes
// its value series.
func (v *Valuator) ComputeCurrentValueSeries(ctx context.Context, managerID int64, teamCode string, subs []domain.Substitution) ([]domain.TeamValue, error) {
	season, err := v.seasons.Resolve(ctx, v.now(), false)
	if err != nil {
		return nil, fmt.Errorf("resolve current season: %w", err)
	}
	return v.ComputeValueSeries(ctx, managerID, season.ID, teamCode, subs)
}

// ComputeWith runs a specific strategy regardless of the configured one.
func (v *Valuator) ComputeWith(ctx context.Context, strategy Strategy, managerID, seasonID int64, teamCode string, subs []domain.Substitution) ([]domain.TeamValue, error) {
	return v.computeWith(ctx, strategy, managerID, seasonID, teamCode, subs)
}

func (v *Valuator) computeWith(ctx context.Context, strategy Strategy, managerID, seasonID int64, teamCode string, subs []domain.Substitution) ([]domain.TeamValue, error) {
	start := time.Now()
	// Postgres timestamps keep microseconds; both strategies must emit the same "now".
	now := v.now().UTC().Truncate(time.Microsecond)

	var (
		series []domain.TeamValue
		err    error
	)
	switch strategy {
	case Iterative:
		series, err = v.iterative(ctx, managerID, seasonID, teamCode, subs, now)
	case Aggregate:
		if v.querier == nil {
			err = errors.New("aggregate strategy requires a valuation querier")
			break
		}
		series, err = v.querier.QueryValueSeries(ctx, storage.ValuationQuery{
			ManagerID:     managerID,
			SeasonID:      seasonID,
			TeamCode:      teamCode,
			Substitutions: subs,
			Now:           now,
		})
	default:
		err = fmt.Errorf("unknown valuation strategy %q", strategy)
	}

	observability.RecordValuation(string(strategy), len(series), time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("compute value series (%s): %w", strategy, err)
	}
	v.logger.Printf("manager %d season %d team %s: %d checkpoints (%s)",
		managerID, seasonID, teamCode, len(series), strategy)
	return series, nil
}

func (v *Valuator) iterative(ctx context.Context, managerID, seasonID int64, teamCode string, subs []domain.Substitution, now time.Time) ([]domain.TeamValue, error) {
	season, err := v.seasons.GetByID(ctx, seasonID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("season %d: %w", seasonID, domain.ErrNoActiveSeason)
		}
		return nil, fmt.Errorf("get season: %w", err)
	}

	matches, err := v.matches.GetBySeason(ctx, season, now)
	if err != nil {
		return nil, fmt.Errorf("get matches: %w", err)
	}
	times := make([]time.Time, len(matches))
	for i, m := range matches {
		times[i] = m.MatchTime
	}
	checkpoints := domain.Checkpoints(times, now)

	// One read of the roster serves every checkpoint.
	entries, err := v.rosters.GetTeam(ctx, managerID, seasonID, teamCode)
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	replacements := domain.SubstitutionMap(subs)
	for _, e := range entries {
		if playerID, ok := replacements[e.ID]; ok {
			e.PlayerID = playerID
		}
	}

	var series []domain.TeamValue
	for _, cp := range checkpoints {
		players := activePlayers(entries, cp)
		if len(players) == 0 {
			continue
		}

		stats, err := v.stats.LatestStatsAt(ctx, players, seasonID, cp)
		if err != nil {
			return nil, fmt.Errorf("stats at %s: %w", cp.Format(time.RFC3339), err)
		}

		tv := domain.TeamValue{At: cp, Value: decimal.Zero, TheoreticalValue: decimal.Zero}
		for _, playerID := range players {
			st, ok := stats[playerID]
			if !ok {
				continue // no snapshot yet
			}
			tv.Value = tv.Value.Add(st.Price)
			tv.TheoreticalValue = tv.TheoreticalValue.Add(st.TheoreticalValue())
		}
		series = append(series, tv)
	}
	return series, nil
}

// activePlayers returns the distinct players of entries active at cp, ascending.
func activePlayers(entries []*domain.RosterEntry, cp time.Time) []int64 {
	seen := make(map[int64]struct{})
	var players []int64
	for _, e := range entries {
		if !e.ActiveAt(cp) {
			continue
		}
		if _, dup := seen[e.PlayerID]; dup {
			continue
		}
		seen[e.PlayerID] = struct{}{}
		players = append(players, e.PlayerID)
	}
	sort.Slice(players, func(i, j int) bool { return players[i] < players[j] })
	return players
}
