package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// RosterStore implements storage.RosterStore using PostgreSQL.
type RosterStore struct {
	pool *Pool
}

// NewRosterStore creates a new RosterStore.
func NewRosterStore(pool *Pool) *RosterStore {
	return &RosterStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RosterStore = (*RosterStore)(nil)

const rosterColumns = `id, manager_id, team_code, player_id, season_id, from_datetime, to_datetime`

// WithLedgerTx runs fn in a transaction (a savepoint when ctx carries one)
// holding a transaction-scoped advisory lock on (manager, team).
func (s *RosterStore) WithLedgerTx(ctx context.Context, managerID int64, teamCode string, fn func(ctx context.Context, tx storage.LedgerTx) error) error {
	return s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		key := fmt.Sprintf("roster:%d:%s", managerID, teamCode)
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("lock roster %s: %w", key, err)
		}
		return fn(ctx, &ledgerTx{tx: tx})
	})
}

// GetTeam retrieves all entries of (manager, season, team), ordered by id.
func (s *RosterStore) GetTeam(ctx context.Context, managerID, seasonID int64, teamCode string) ([]*domain.RosterEntry, error) {
	query := `
		SELECT ` + rosterColumns + `
		FROM roster_entries
		WHERE manager_id = $1 AND season_id = $2 AND team_code = $3
		ORDER BY id ASC
	`

	rows, err := s.pool.conn(ctx).Query(ctx, query, managerID, seasonID, teamCode)
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	defer rows.Close()

	return scanRosterEntries(rows)
}

// GetTeams retrieves all entries of a manager, ordered by team code then id.
func (s *RosterStore) GetTeams(ctx context.Context, managerID int64, seasonID *int64) ([]*domain.RosterEntry, error) {
	query := `
		SELECT ` + rosterColumns + `
		FROM roster_entries
		WHERE manager_id = $1 AND ($2::bigint IS NULL OR season_id = $2)
		ORDER BY team_code ASC, id ASC
	`

	rows, err := s.pool.conn(ctx).Query(ctx, query, managerID, seasonID)
	if err != nil {
		return nil, fmt.Errorf("get teams: %w", err)
	}
	defer rows.Close()

	return scanRosterEntries(rows)
}

// ledgerTx implements storage.LedgerTx on an open transaction.
type ledgerTx struct {
	tx pgx.Tx
}

func (l *ledgerTx) ActiveEntries(ctx context.Context, managerID, seasonID int64, teamCode string) ([]*domain.RosterEntry, error) {
	query := `
		SELECT ` + rosterColumns + `
		FROM roster_entries
		WHERE manager_id = $1 AND season_id = $2 AND team_code = $3 AND to_datetime IS NULL
		ORDER BY id ASC
		FOR UPDATE
	`

	rows, err := l.tx.Query(ctx, query, managerID, seasonID, teamCode)
	if err != nil {
		return nil, fmt.Errorf("get active entries: %w", err)
	}
	defer rows.Close()

	return scanRosterEntries(rows)
}

func (l *ledgerTx) OpenEntriesOutside(ctx context.Context, managerID, seasonID int64, teamCode string) ([]*domain.RosterEntry, error) {
	query := `
		SELECT ` + rosterColumns + `
		FROM roster_entries
		WHERE manager_id = $1 AND season_id <> $2 AND team_code = $3 AND to_datetime IS NULL
		ORDER BY id ASC
		FOR UPDATE
	`

	rows, err := l.tx.Query(ctx, query, managerID, seasonID, teamCode)
	if err != nil {
		return nil, fmt.Errorf("get open entries of other seasons: %w", err)
	}
	defer rows.Close()

	return scanRosterEntries(rows)
}

func (l *ledgerTx) HasEntries(ctx context.Context, managerID int64, teamCode string) (bool, error) {
	var exists bool
	err := l.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM roster_entries WHERE manager_id = $1 AND team_code = $2
		)
	`, managerID, teamCode).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check roster entries: %w", err)
	}
	return exists, nil
}

func (l *ledgerTx) CloseEntry(ctx context.Context, entryID int64, at time.Time) error {
	tag, err := l.tx.Exec(ctx, `
		UPDATE roster_entries SET to_datetime = $2
		WHERE id = $1 AND to_datetime IS NULL
	`, entryID, at)
	if err != nil {
		return fmt.Errorf("close entry %d: %w", entryID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close entry %d: %w", entryID, storage.ErrNotFound)
	}
	return nil
}

func (l *ledgerTx) InsertEntry(ctx context.Context, e *domain.RosterEntry) error {
	if e == nil || e.TeamCode == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO roster_entries (manager_id, team_code, player_id, season_id, from_datetime, to_datetime)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := l.tx.QueryRow(ctx, query,
		e.ManagerID,
		e.TeamCode,
		e.PlayerID,
		e.SeasonID,
		e.From,
		e.To,
	).Scan(&e.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("insert roster entry: %w", storage.ErrNotFound)
		}
		return fmt.Errorf("insert roster entry: %w", err)
	}
	return nil
}

func (l *ledgerTx) TouchLastImport(ctx context.Context, managerID int64, at time.Time) error {
	tag, err := l.tx.Exec(ctx, `UPDATE managers SET last_import = $2 WHERE id = $1`, managerID, at)
	if err != nil {
		return fmt.Errorf("touch last import: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("manager %d: %w", managerID, storage.ErrNotFound)
	}
	return nil
}

func scanRosterEntry(row pgx.Row) (*domain.RosterEntry, error) {
	var e domain.RosterEntry
	err := row.Scan(
		&e.ID,
		&e.ManagerID,
		&e.TeamCode,
		&e.PlayerID,
		&e.SeasonID,
		&e.From,
		&e.To,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanRosterEntries(rows pgx.Rows) ([]*domain.RosterEntry, error) {
	var result []*domain.RosterEntry
	for rows.Next() {
		e, err := scanRosterEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster entries: %w", err)
	}
	return result, nil
}
