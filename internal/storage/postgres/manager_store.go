package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/storage"
)

// ManagerStore implements storage.ManagerStore using PostgreSQL.
type ManagerStore struct {
	pool *Pool
}

// NewManagerStore creates a new ManagerStore.
func NewManagerStore(pool *Pool) *ManagerStore {
	return &ManagerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ManagerStore = (*ManagerStore)(nil)

const managerColumns = `id, email, last_import, encrypted_password, autolineup, last_autolineup`

// Insert adds a new manager and assigns its ID. Returns ErrDuplicateKey if email exists.
func (s *ManagerStore) Insert(ctx context.Context, m *domain.Manager) error {
	if m == nil || m.Email == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO managers (email, last_import, encrypted_password, autolineup, last_autolineup)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := s.pool.conn(ctx).QueryRow(ctx, query,
		m.Email,
		m.LastImport,
		m.EncryptedPassword,
		m.Autolineup,
		m.LastAutolineup,
	).Scan(&m.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert manager: %w", err)
	}
	return nil
}

// GetByID retrieves a manager. Returns ErrNotFound if not exists.
func (s *ManagerStore) GetByID(ctx context.Context, id int64) (*domain.Manager, error) {
	query := `SELECT ` + managerColumns + ` FROM managers WHERE id = $1`

	m, err := scanManager(s.pool.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get manager by id: %w", err)
	}
	return m, nil
}

// GetByEmail retrieves a manager by email. Returns ErrNotFound if not exists.
func (s *ManagerStore) GetByEmail(ctx context.Context, email string) (*domain.Manager, error) {
	query := `SELECT ` + managerColumns + ` FROM managers WHERE email = $1`

	m, err := scanManager(s.pool.conn(ctx).QueryRow(ctx, query, email))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get manager by email: %w", err)
	}
	return m, nil
}

// SetAutolineup stores the opt-in flag and encrypted credential.
func (s *ManagerStore) SetAutolineup(ctx context.Context, id int64, enabled bool, encryptedPassword *string) error {
	query := `
		UPDATE managers
		SET autolineup = $2, encrypted_password = $3
		WHERE id = $1
	`

	tag, err := s.pool.conn(ctx).Exec(ctx, query, id, enabled, encryptedPassword)
	if err != nil {
		return fmt.Errorf("set autolineup: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkAutolineup sets last_autolineup.
func (s *ManagerStore) MarkAutolineup(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.pool.conn(ctx).Exec(ctx, `UPDATE managers SET last_autolineup = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark autolineup: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListAutolineupPage returns the next page of managers due for autolineup, ordered by id ASC.
func (s *ManagerStore) ListAutolineupPage(ctx context.Context, cutoff *time.Time, afterID int64, limit int) ([]*domain.Manager, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + managerColumns + `
		FROM managers
		WHERE autolineup
		  AND id > $2
		  AND ($1::timestamptz IS NULL OR last_autolineup IS NULL OR last_autolineup < $1)
		ORDER BY id ASC
		LIMIT $3
	`

	rows, err := s.pool.conn(ctx).Query(ctx, query, cutoff, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list autolineup managers: %w", err)
	}
	defer rows.Close()

	var result []*domain.Manager
	for rows.Next() {
		m, err := scanManager(rows)
		if err != nil {
			return nil, fmt.Errorf("scan manager: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate managers: %w", err)
	}
	return result, nil
}

func scanManager(row pgx.Row) (*domain.Manager, error) {
	var m domain.Manager
	err := row.Scan(
		&m.ID,
		&m.Email,
		&m.LastImport,
		&m.EncryptedPassword,
		&m.Autolineup,
		&m.LastAutolineup,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
