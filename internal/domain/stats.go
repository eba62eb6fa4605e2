package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TheoreticalScale is the number of decimal places kept for a player's
// points-per-appearance contribution. Both valuation strategies round to it.
const TheoreticalScale = 6

// PlayerStats is one statistics snapshot of a player within a season.
// Corresponds to player_stats table in PostgreSQL and
// player_stat_snapshots table in ClickHouse.
type PlayerStats struct {
	PlayerID     int64
	SeasonID     int64
	ValidityDate time.Time       // snapshot is valid from this instant
	Price        decimal.Decimal // market price
	HMPoints     *int64          // nullable
	Appearances  *int64          // nullable
}

// TheoreticalValue returns HMPoints / Appearances when both are known and
// Appearances > 0, otherwise Price.
func (s *PlayerStats) TheoreticalValue() decimal.Decimal {
	if s.Appearances == nil || *s.Appearances <= 0 || s.HMPoints == nil {
		return s.Price
	}
	return decimal.NewFromInt(*s.HMPoints).DivRound(decimal.NewFromInt(*s.Appearances), TheoreticalScale)
}
