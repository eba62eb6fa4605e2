package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// MatchStore implements storage.MatchStore using PostgreSQL.
type MatchStore struct {
	pool *Pool
}

// NewMatchStore creates a new MatchStore.
func NewMatchStore(pool *Pool) *MatchStore {
	return &MatchStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MatchStore = (*MatchStore)(nil)

// Upsert inserts new matches and updates existing ids in place.
// xmax is zero only for freshly inserted row versions.
func (s *MatchStore) Upsert(ctx context.Context, matches []*domain.Match) (int, int, error) {
	for _, m := range matches {
		if m == nil || m.ID == 0 {
			return 0, 0, storage.ErrInvalidInput
		}
	}
	if len(matches) == 0 {
		return 0, 0, nil
	}

	query := `
		INSERT INTO matches (id, home_club, away_club, match_datetime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			home_club = EXCLUDED.home_club,
			away_club = EXCLUDED.away_club,
			match_datetime = EXCLUDED.match_datetime
		RETURNING (xmax = 0) AS inserted
	`

	var inserted, updated int
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, m := range matches {
			var isInsert bool
			if err := tx.QueryRow(ctx, query, m.ID, m.HomeClub, m.AwayClub, m.MatchTime).Scan(&isInsert); err != nil {
				return fmt.Errorf("upsert match %d: %w", m.ID, err)
			}
			if isInsert {
				inserted++
			} else {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

// GetBySeason retrieves matches inside the season window played at or before until.
func (s *MatchStore) GetBySeason(ctx context.Context, season *domain.Season, until time.Time) ([]*domain.Match, error) {
	if season == nil {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT id, home_club, away_club, match_datetime
		FROM matches
		WHERE (match_datetime AT TIME ZONE 'UTC')::date BETWEEN $1::date AND $2::date
		  AND match_datetime <= $3
		ORDER BY match_datetime ASC, id ASC
	`

	rows, err := s.pool.conn(ctx).Query(ctx, query, domain.TruncateDay(season.Start), domain.TruncateDay(season.End), until)
	if err != nil {
		return nil, fmt.Errorf("get matches by season: %w", err)
	}
	defer rows.Close()

	var result []*domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return result, nil
}

// Latest retrieves the most recent match at or before until.
func (s *MatchStore) Latest(ctx context.Context, until time.Time) (*domain.Match, error) {
	query := `
		SELECT id, home_club, away_club, match_datetime
		FROM matches
		WHERE match_datetime <= $1
		ORDER BY match_datetime DESC, id DESC
		LIMIT 1
	`

	m, err := scanMatch(s.pool.conn(ctx).QueryRow(ctx, query, until))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest match: %w", err)
	}
	return m, nil
}

func scanMatch(row pgx.Row) (*domain.Match, error) {
	var m domain.Match
	if err := row.Scan(&m.ID, &m.HomeClub, &m.AwayClub, &m.MatchTime); err != nil {
		return nil, err
	}
	return &m, nil
}
