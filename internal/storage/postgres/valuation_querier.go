package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// ValuationQuerier implements storage.ValuationQuerier with one CTE.
type ValuationQuerier struct {
	pool    *Pool
	seasons *SeasonStore
}

// NewValuationQuerier creates a new ValuationQuerier.
func NewValuationQuerier(pool *Pool) *ValuationQuerier {
	return &ValuationQuerier{pool: pool, seasons: NewSeasonStore(pool)}
}

// Compile-time interface check.
var _ storage.ValuationQuerier = (*ValuationQuerier)(nil)

// valueSeriesQuery computes the value of a roster at every checkpoint.
//
// $1 manager, $2 season, $3 team, $4 now, $5/$6 substitution entry/player ids.
const valueSeriesQuery = `
WITH season AS (
	SELECT start_date, end_date FROM seasons WHERE id = $2
),
match_points AS (
	SELECT DISTINCT m.match_datetime AS at
	FROM matches m, season s
	WHERE (m.match_datetime AT TIME ZONE 'UTC')::date BETWEEN s.start_date AND s.end_date
	  AND m.match_datetime <= $4
),
checkpoints AS (
	SELECT at FROM match_points
	UNION
	SELECT $4::timestamptz
	WHERE NOT EXISTS (
		SELECT 1 FROM match_points
		WHERE (at AT TIME ZONE 'UTC')::date = ($4::timestamptz AT TIME ZONE 'UTC')::date
	)
),
subs AS (
	SELECT * FROM unnest($5::bigint[], $6::bigint[]) AS s(entry_id, player_id)
),
entries AS (
	SELECT COALESCE(sb.player_id, r.player_id) AS player_id, r.from_datetime, r.to_datetime
	FROM roster_entries r
	LEFT JOIN subs sb ON sb.entry_id = r.id
	WHERE r.manager_id = $1 AND r.season_id = $2 AND r.team_code = $3
),
active AS (
	SELECT DISTINCT c.at, e.player_id
	FROM checkpoints c
	JOIN entries e
	  ON (e.from_datetime IS NULL OR e.from_datetime <= c.at)
	 AND (e.to_datetime IS NULL OR e.to_datetime >= c.at)
)
SELECT
	a.at,
	COALESCE(SUM(ps.price), 0)::text AS value,
	COALESCE(SUM(
		CASE
			WHEN ps.appearances > 0 AND ps.hm_points IS NOT NULL
				THEN ROUND(ps.hm_points::numeric / ps.appearances, 6)
			ELSE ps.price
		END
	), 0)::text AS theoretical_value
FROM active a
LEFT JOIN LATERAL (
	SELECT price, hm_points, appearances
	FROM player_stats
	WHERE player_id = a.player_id AND season_id = $2 AND validity_date <= a.at
	ORDER BY validity_date DESC
	LIMIT 1
) ps ON TRUE
GROUP BY a.at
ORDER BY a.at ASC
`

// QueryValueSeries returns one TeamValue per checkpoint with at least one active entry.
func (q *ValuationQuerier) QueryValueSeries(ctx context.Context, query storage.ValuationQuery) ([]domain.TeamValue, error) {
	if _, err := q.seasons.GetByID(ctx, query.SeasonID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("season %d: %w", query.SeasonID, domain.ErrNoActiveSeason)
		}
		return nil, err
	}

	subs := domain.SubstitutionMap(query.Substitutions)
	entryIDs := make([]int64, 0, len(subs))
	for id := range subs {
		entryIDs = append(entryIDs, id)
	}
	sort.Slice(entryIDs, func(i, j int) bool { return entryIDs[i] < entryIDs[j] })
	playerIDs := make([]int64, len(entryIDs))
	for i, id := range entryIDs {
		playerIDs[i] = subs[id]
	}

	rows, err := q.pool.conn(ctx).Query(ctx, valueSeriesQuery,
		query.ManagerID,
		query.SeasonID,
		query.TeamCode,
		query.Now,
		entryIDs,
		playerIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query value series: %w", err)
	}
	defer rows.Close()

	var result []domain.TeamValue
	for rows.Next() {
		var (
			tv                 domain.TeamValue
			value, theoretical string
		)
		if err := rows.Scan(&tv.At, &value, &theoretical); err != nil {
			return nil, fmt.Errorf("scan team value: %w", err)
		}
		if tv.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("parse value %q: %w", value, err)
		}
		if tv.TheoreticalValue, err = decimal.NewFromString(theoretical); err != nil {
			return nil, fmt.Errorf("parse theoretical value %q: %w", theoretical, err)
		}
		result = append(result, tv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team values: %w", err)
	}
	return result, nil
}
