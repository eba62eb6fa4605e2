package storage

import (
	"context"
	"time"

	"hm-tracker/internal/domain"
)

// SeasonStore provides access to seasons storage.
type SeasonStore interface {
	// Insert adds a new season and assigns its ID when zero.
	Insert(ctx context.Context, s *domain.Season) error

	// GetByID retrieves a season. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Season, error)

	// Resolve returns the unique season with the given arcade flag whose window
	// contains at. Returns domain.ErrNoActiveSeason or domain.ErrAmbiguousSeason.
	Resolve(ctx context.Context, at time.Time, arcade bool) (*domain.Season, error)
}

// ManagerStore provides access to managers storage.
type ManagerStore interface {
	// Insert adds a new manager and assigns its ID. Returns ErrDuplicateKey if email exists.
	Insert(ctx context.Context, m *domain.Manager) error

	// GetByID retrieves a manager. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Manager, error)

	// GetByEmail retrieves a manager by email. Returns ErrNotFound if not exists.
	GetByEmail(ctx context.Context, email string) (*domain.Manager, error)

	// SetAutolineup stores the opt-in flag and encrypted credential.
	SetAutolineup(ctx context.Context, id int64, enabled bool, encryptedPassword *string) error

	// MarkAutolineup sets last_autolineup.
	MarkAutolineup(ctx context.Context, id int64, at time.Time) error

	// ListAutolineupPage returns up to limit managers with autolineup enabled,
	// last_autolineup null or before cutoff (any when cutoff is nil) and
	// id > afterID, ordered by id ASC.
	ListAutolineupPage(ctx context.Context, cutoff *time.Time, afterID int64, limit int) ([]*domain.Manager, error)
}

// LedgerTx is the unit of work handed to RosterStore.WithLedgerTx.
// Writes become visible together when the callback returns nil.
type LedgerTx interface {
	// ActiveEntries returns entries with a nil To for (manager, season, team), ordered by id.
	ActiveEntries(ctx context.Context, managerID, seasonID int64, teamCode string) ([]*domain.RosterEntry, error)

	// OpenEntriesOutside returns entries with a nil To for (manager, team) in
	// seasons other than seasonID, ordered by id.
	OpenEntriesOutside(ctx context.Context, managerID, seasonID int64, teamCode string) ([]*domain.RosterEntry, error)

	// HasEntries reports whether any entry exists for (manager, team) in any season.
	HasEntries(ctx context.Context, managerID int64, teamCode string) (bool, error)

	// CloseEntry sets To on an active entry.
	CloseEntry(ctx context.Context, entryID int64, at time.Time) error

	// InsertEntry adds a new entry and assigns its ID.
	InsertEntry(ctx context.Context, e *domain.RosterEntry) error

	// TouchLastImport sets the manager's last_import.
	TouchLastImport(ctx context.Context, managerID int64, at time.Time) error
}

// RosterStore provides access to roster_entries storage.
type RosterStore interface {
	// WithLedgerTx runs fn atomically. Calls for the same (manager, team)
	// are serialized; other keys proceed independently. Any error from fn
	// discards every write made through tx.
	WithLedgerTx(ctx context.Context, managerID int64, teamCode string, fn func(ctx context.Context, tx LedgerTx) error) error

	// GetTeam retrieves all entries of (manager, season, team), ordered by id.
	GetTeam(ctx context.Context, managerID, seasonID int64, teamCode string) ([]*domain.RosterEntry, error)

	// GetTeams retrieves all entries of a manager, optionally limited to a
	// season, ordered by team code then id.
	GetTeams(ctx context.Context, managerID int64, seasonID *int64) ([]*domain.RosterEntry, error)
}

// StatStore provides access to player statistics snapshots.
type StatStore interface {
	// InsertBulk adds snapshots atomically. Fails entire batch on duplicate
	// (player_id, season_id, validity_date).
	InsertBulk(ctx context.Context, stats []*domain.PlayerStats) error

	// LatestStatsAt returns, per player, the latest snapshot of the season with
	// validity_date <= at. Players without one are absent from the map.
	LatestStatsAt(ctx context.Context, playerIDs []int64, seasonID int64, at time.Time) (map[int64]*domain.PlayerStats, error)
}

// MatchStore provides access to matches storage.
type MatchStore interface {
	// Upsert inserts new matches and updates existing ids in place.
	Upsert(ctx context.Context, matches []*domain.Match) (inserted, updated int, err error)

	// GetBySeason retrieves matches inside the season window played at or
	// before until, ordered by match time ASC.
	GetBySeason(ctx context.Context, season *domain.Season, until time.Time) ([]*domain.Match, error)

	// Latest retrieves the most recent match at or before until. Returns ErrNotFound if none.
	Latest(ctx context.Context, until time.Time) (*domain.Match, error)
}

// TaskStore provides access to the append-only tasks audit log.
type TaskStore interface {
	// Insert adds a task record and assigns its ID.
	Insert(ctx context.Context, t *domain.Task) error

	// List retrieves the most recent tasks, newest first.
	List(ctx context.Context, limit int) ([]*domain.Task, error)
}

// ValuationQuery selects one roster value series.
type ValuationQuery struct {
	ManagerID     int64
	SeasonID      int64
	TeamCode      string
	Substitutions []domain.Substitution
	Now           time.Time
}

// ValuationQuerier computes a roster value series in a single set-based
// query over rosters, matches and stats.
type ValuationQuerier interface {
	// QueryValueSeries returns one TeamValue per checkpoint with at least one
	// active entry, ordered by checkpoint ASC.
	QueryValueSeries(ctx context.Context, q ValuationQuery) ([]domain.TeamValue, error)
}
