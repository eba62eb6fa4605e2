package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// StatStore implements storage.StatStore using PostgreSQL.
type StatStore struct {
	pool *Pool
}

// NewStatStore creates a new StatStore.
func NewStatStore(pool *Pool) *StatStore {
	return &StatStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StatStore = (*StatStore)(nil)

// InsertBulk adds snapshots atomically. Fails entire batch on any duplicate.
func (s *StatStore) InsertBulk(ctx context.Context, stats []*domain.PlayerStats) error {
	if len(stats) == 0 {
		return nil
	}

	query := `
		INSERT INTO player_stats (player_id, season_id, validity_date, price, hm_points, appearances)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
	`

	return s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, st := range stats {
			_, err := tx.Exec(ctx, query,
				st.PlayerID,
				st.SeasonID,
				st.ValidityDate,
				st.Price.String(),
				st.HMPoints,
				st.Appearances,
			)
			if err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert player stats: %w", err)
			}
		}
		return nil
	})
}

// LatestStatsAt returns, per player, the latest snapshot with validity_date <= at.
func (s *StatStore) LatestStatsAt(ctx context.Context, playerIDs []int64, seasonID int64, at time.Time) (map[int64]*domain.PlayerStats, error) {
	result := make(map[int64]*domain.PlayerStats, len(playerIDs))
	if len(playerIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT DISTINCT ON (player_id)
			player_id, season_id, validity_date, price::text, hm_points, appearances
		FROM player_stats
		WHERE player_id = ANY($1) AND season_id = $2 AND validity_date <= $3
		ORDER BY player_id, validity_date DESC
	`

	rows, err := s.pool.conn(ctx).Query(ctx, query, playerIDs, seasonID, at)
	if err != nil {
		return nil, fmt.Errorf("get latest stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			st    domain.PlayerStats
			price string
		)
		if err := rows.Scan(&st.PlayerID, &st.SeasonID, &st.ValidityDate, &price, &st.HMPoints, &st.Appearances); err != nil {
			return nil, fmt.Errorf("scan player stats: %w", err)
		}
		if st.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price %q: %w", price, err)
		}
		result[st.PlayerID] = &st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate player stats: %w", err)
	}
	return result, nil
}
