package clickhouse

import (
	"context"
	"fmt"
	"time"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// StatStore implements storage.StatStore using ClickHouse.
// Snapshots live in player_stat_snapshots, ordered by (season, player, validity).
type StatStore struct {
	conn *Conn
}

// NewStatStore creates a new StatStore.
func NewStatStore(conn *Conn) *StatStore {
	return &StatStore{conn: conn}
}

// Compile-time interface check.
var _ storage.StatStore = (*StatStore)(nil)

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate
// (player_id, season_id, validity_date). MergeTree does not enforce keys,
// so duplicates are checked before the batch is sent.
func (s *StatStore) InsertBulk(ctx context.Context, stats []*domain.PlayerStats) error {
	if len(stats) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		playerID int64
		seasonID int64
		validity int64
	}
	seen := make(map[key]struct{}, len(stats))
	for _, st := range stats {
		if st == nil {
			return storage.ErrInvalidInput
		}
		k := key{st.PlayerID, st.SeasonID, st.ValidityDate.UnixMilli()}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing rows
	for _, st := range stats {
		exists, err := s.exists(ctx, st)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO player_stat_snapshots (
			player_id, season_id, validity_date, price, hm_points, appearances
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, st := range stats {
		err = batch.Append(
			st.PlayerID, st.SeasonID, st.ValidityDate.UTC(),
			st.Price, st.HMPoints, st.Appearances,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// LatestStatsAt returns, per player, the latest snapshot with validity_date <= at.
func (s *StatStore) LatestStatsAt(ctx context.Context, playerIDs []int64, seasonID int64, at time.Time) (map[int64]*domain.PlayerStats, error) {
	result := make(map[int64]*domain.PlayerStats, len(playerIDs))
	if len(playerIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT player_id, season_id, validity_date, price, hm_points, appearances
		FROM player_stat_snapshots FINAL
		WHERE season_id = ? AND has(?, player_id) AND validity_date <= ?
		ORDER BY player_id ASC, validity_date DESC
		LIMIT 1 BY player_id
	`

	rows, err := s.conn.Query(ctx, query, seasonID, playerIDs, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("query latest stats: %w", err)
	}
	defer rows.Close()

	stats, err := scanPlayerStats(rows)
	if err != nil {
		return nil, err
	}
	for _, st := range stats {
		result[st.PlayerID] = st
	}
	return result, nil
}

// exists checks if a snapshot with the same key exists.
func (s *StatStore) exists(ctx context.Context, st *domain.PlayerStats) (bool, error) {
	query := `
		SELECT count(*) FROM player_stat_snapshots
		WHERE player_id = ? AND season_id = ? AND validity_date = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, st.PlayerID, st.SeasonID, st.ValidityDate.UTC()).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanPlayerStats scans multiple rows.
func scanPlayerStats(rows chRows) ([]*domain.PlayerStats, error) {
	var stats []*domain.PlayerStats

	for rows.Next() {
		var st domain.PlayerStats

		err := rows.Scan(
			&st.PlayerID, &st.SeasonID, &st.ValidityDate,
			&st.Price, &st.HMPoints, &st.Appearances,
		)
		if err != nil {
			return nil, fmt.Errorf("scan player stats row: %w", err)
		}

		stats = append(stats, &st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate player stats rows: %w", err)
	}

	return stats, nil
}
