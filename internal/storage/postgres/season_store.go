package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// SeasonStore implements storage.SeasonStore using PostgreSQL.
type SeasonStore struct {
	pool *Pool
}

// NewSeasonStore creates a new SeasonStore.
func NewSeasonStore(pool *Pool) *SeasonStore {
	return &SeasonStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SeasonStore = (*SeasonStore)(nil)

// Insert adds a new season and assigns its ID when zero.
func (s *SeasonStore) Insert(ctx context.Context, season *domain.Season) error {
	if season == nil || season.End.Before(season.Start) {
		return storage.ErrInvalidInput
	}

	var err error
	if season.ID == 0 {
		err = s.pool.conn(ctx).QueryRow(ctx, `
			INSERT INTO seasons (name, start_date, end_date, arcade)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, season.Name, domain.TruncateDay(season.Start), domain.TruncateDay(season.End), season.Arcade).Scan(&season.ID)
	} else {
		_, err = s.pool.conn(ctx).Exec(ctx, `
			INSERT INTO seasons (id, name, start_date, end_date, arcade)
			VALUES ($1, $2, $3, $4, $5)
		`, season.ID, season.Name, domain.TruncateDay(season.Start), domain.TruncateDay(season.End), season.Arcade)
	}
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert season: %w", err)
	}
	return nil
}

// GetByID retrieves a season. Returns ErrNotFound if not exists.
func (s *SeasonStore) GetByID(ctx context.Context, id int64) (*domain.Season, error) {
	query := `
		SELECT id, name, start_date, end_date, arcade
		FROM seasons
		WHERE id = $1
	`

	season, err := scanSeason(s.pool.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get season by id: %w", err)
	}
	return season, nil
}

// Resolve returns the unique season with the given arcade flag containing at.
func (s *SeasonStore) Resolve(ctx context.Context, at time.Time, arcade bool) (*domain.Season, error) {
	query := `
		SELECT id, name, start_date, end_date, arcade
		FROM seasons
		WHERE arcade = $2
		  AND start_date <= ($1::timestamptz AT TIME ZONE 'UTC')::date
		  AND end_date >= ($1::timestamptz AT TIME ZONE 'UTC')::date
		ORDER BY id
		LIMIT 2
	`

	rows, err := s.pool.conn(ctx).Query(ctx, query, at, arcade)
	if err != nil {
		return nil, fmt.Errorf("resolve season: %w", err)
	}
	defer rows.Close()

	var found []*domain.Season
	for rows.Next() {
		season, err := scanSeason(rows)
		if err != nil {
			return nil, fmt.Errorf("scan season: %w", err)
		}
		found = append(found, season)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seasons: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("resolve season at %s: %w", at.Format(time.RFC3339), domain.ErrNoActiveSeason)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("resolve season at %s: %w", at.Format(time.RFC3339), domain.ErrAmbiguousSeason)
	}
}

func scanSeason(row pgx.Row) (*domain.Season, error) {
	var season domain.Season
	err := row.Scan(&season.ID, &season.Name, &season.Start, &season.End, &season.Arcade)
	if err != nil {
		return nil, err
	}
	season.Start = domain.TruncateDay(season.Start)
	season.End = domain.TruncateDay(season.End)
	return &season, nil
}
