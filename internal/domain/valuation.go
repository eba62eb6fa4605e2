package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TeamValue is the value of a roster at one checkpoint.
type TeamValue struct {
	At               time.Time
	Value            decimal.Decimal // sum of prices
	TheoreticalValue decimal.Decimal // sum of points-per-appearance (price fallback)
}

// Substitution replaces the player of one roster entry for a single
// valuation call. Never persisted.
type Substitution struct {
	EntryID  int64
	PlayerID int64
}

// SubstitutionMap indexes substitutions by roster entry id.
// Later substitutions for the same entry win.
func SubstitutionMap(subs []Substitution) map[int64]int64 {
	m := make(map[int64]int64, len(subs))
	for _, s := range subs {
		m[s.EntryID] = s.PlayerID
	}
	return m
}

// ParseSubstitutions parses "entryID:playerID" pairs separated by commas.
// An empty string yields no substitutions.
func ParseSubstitutions(s string) ([]Substitution, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var subs []Substitution
	for _, pair := range strings.Split(s, ",") {
		entry, player, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("substitution %q: want entryID:playerID", pair)
		}
		entryID, err := strconv.ParseInt(entry, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("substitution %q: entry id: %w", pair, err)
		}
		playerID, err := strconv.ParseInt(player, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("substitution %q: player id: %w", pair, err)
		}
		subs = append(subs, Substitution{EntryID: entryID, PlayerID: playerID})
	}
	return subs, nil
}

// Checkpoints returns the distinct match times not after now, ascending,
// followed by now when its UTC day differs from the latest match day.
func Checkpoints(matchTimes []time.Time, now time.Time) []time.Time {
	seen := make(map[int64]struct{}, len(matchTimes))
	points := make([]time.Time, 0, len(matchTimes)+1)
	for _, t := range matchTimes {
		if t.After(now) {
			continue
		}
		key := t.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		points = append(points, t)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Before(points[j])
	})

	if len(points) == 0 || !SameDay(points[len(points)-1], now) {
		points = append(points, now)
	}
	return points
}
