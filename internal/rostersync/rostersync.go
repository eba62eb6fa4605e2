// Package rostersync pulls current rosters from the fantasy site into the
// roster ledger and manages autolineup registrations.
package rostersync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime/debug"
	"sort"
	"time"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/observability"
	"hm-tracker/internal/operation"
	"hm-tracker/internal/storage"
	"hm-tracker/internal/teamsource"
)

// AlignTaskName is the operation and audit task name of SyncAll.
const AlignTaskName = "Align teams"

// DefaultCacheWindow is how long a sync result stays fresh.
const DefaultCacheWindow = 600 * time.Second

const pageSize = 50

// Importer applies one roster snapshot. Implemented by ledger.Ledger.
type Importer interface {
	ImportSnapshot(ctx context.Context, managerID int64, teamCode string, playerIDs []int64, at time.Time) (*domain.RosterDiff, error)
}

// Cipher seals and opens stored passwords. Implemented by vault.Vault.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
}

// Syncer keeps the ledger aligned with the site.
type Syncer struct {
	managers  storage.ManagerStore
	tasks     storage.TaskStore
	ledger    Importer
	cipher    Cipher
	connector teamsource.Connector
	registry  *operation.Registry

	cacheWindow time.Duration
	now         func() time.Time
	logger      *log.Logger
}

// Options for creating Syncer.
type Options struct {
	Managers  storage.ManagerStore
	Tasks     storage.TaskStore
	Ledger    Importer
	Cipher    Cipher
	Connector teamsource.Connector
	Registry  *operation.Registry

	CacheWindow time.Duration    // defaults to DefaultCacheWindow
	Now         func() time.Time // defaults to time.Now
	Logger      *log.Logger      // nil discards
}

// New creates a new Syncer.
func New(opts Options) *Syncer {
	s := &Syncer{
		managers:    opts.Managers,
		tasks:       opts.Tasks,
		ledger:      opts.Ledger,
		cipher:      opts.Cipher,
		connector:   opts.Connector,
		registry:    opts.Registry,
		cacheWindow: opts.CacheWindow,
		now:         opts.Now,
		logger:      opts.Logger,
	}
	if s.cacheWindow <= 0 {
		s.cacheWindow = DefaultCacheWindow
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}
	return s
}

// SyncResult reports what SyncManager did.
type SyncResult struct {
	ManagerID int64
	Skipped   bool                          // last import still fresh
	Diffs     map[string]*domain.RosterDiff // by team code
}

// SyncManager imports the current roster of every team of the account.
// The manager is created on first sync. Unless force is set, a manager
// whose last import is younger than the cache window is skipped without
// contacting the site.
func (s *Syncer) SyncManager(ctx context.Context, email, password string, force bool) (*SyncResult, error) {
	m, err := s.findOrCreate(ctx, email)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &SyncResult{ManagerID: m.ID}
	if !force && m.LastImport != nil && now.Sub(*m.LastImport) < s.cacheWindow {
		result.Skipped = true
		return result, nil
	}

	session, err := s.connector.Connect(ctx, teamsource.Credentials{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", email, err)
	}
	defer session.Close()

	rosters, err := teamsource.FetchRosters(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("fetch rosters of %s: %w", email, err)
	}

	codes := make([]string, 0, len(rosters))
	for code := range rosters {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	result.Diffs = make(map[string]*domain.RosterDiff, len(codes))
	for _, code := range codes {
		diff, err := s.ledger.ImportSnapshot(ctx, m.ID, code, rosters[code], now)
		if err != nil {
			return nil, err
		}
		result.Diffs[code] = diff
	}

	observability.RecordSyncSuccess(now.Unix())
	return result, nil
}

// AlignResult counts per-manager outcomes of SyncAll.
type AlignResult struct {
	Succeeded int
	Failed    int
}

// SyncAll force-syncs every manager registered for autolineup using the
// stored credentials. Per-manager failures are counted and logged.
func (s *Syncer) SyncAll(ctx context.Context) (*AlignResult, error) {
	result := &AlignResult{}
	var afterID int64

	for {
		page, err := s.managers.ListAutolineupPage(ctx, nil, afterID, pageSize)
		if err != nil {
			return result, fmt.Errorf("list managers after %d: %w", afterID, err)
		}
		if len(page) == 0 {
			break
		}

		for _, m := range page {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if err := s.syncStored(ctx, m); err != nil {
				result.Failed++
				s.logger.Printf("align manager %d: %v", m.ID, err)
				continue
			}
			result.Succeeded++
		}
		afterID = page[len(page)-1].ID
	}

	s.logger.Printf("align completed: %d succeeded, %d failed", result.Succeeded, result.Failed)
	return result, nil
}

func (s *Syncer) syncStored(ctx context.Context, m *domain.Manager) error {
	if m.EncryptedPassword == nil {
		return errors.New("no stored credential")
	}
	password, err := s.cipher.Decrypt(*m.EncryptedPassword)
	if err != nil {
		return fmt.Errorf("decrypt credential: %w", err)
	}
	_, err = s.SyncManager(ctx, m.Email, password, true)
	return err
}

// StartAlign launches Align as a registered operation.
func (s *Syncer) StartAlign(ctx context.Context) (*operation.Operation, error) {
	if s.registry == nil {
		return nil, errors.New("rostersync: no operation registry configured")
	}
	return s.registry.Start(ctx, AlignTaskName, func(ctx context.Context) error {
		_, err := s.Align(ctx)
		return err
	})
}

// Align runs SyncAll and records exactly one audit task for the run, with
// the error and a stack trace when it failed or panicked.
func (s *Syncer) Align(ctx context.Context) (result *AlignResult, err error) {
	task := &domain.Task{Name: AlignTaskName, StartAt: s.now()}

	defer func() {
		var stack string
		if rec := recover(); rec != nil {
			err = fmt.Errorf("align teams panicked: %v", rec)
			stack = string(debug.Stack())
		} else if err != nil {
			stack = string(debug.Stack())
		}

		task.EndAt = s.now()
		if err != nil {
			msg := err.Error()
			task.Error = &msg
			task.Stacktrace = &stack
		}

		if s.tasks == nil {
			return
		}
		if insertErr := s.tasks.Insert(context.WithoutCancel(ctx), task); insertErr != nil {
			s.logger.Printf("record task: %v", insertErr)
			err = errors.Join(err, fmt.Errorf("record task: %w", insertErr))
		}
	}()

	return s.SyncAll(ctx)
}

// RegisterAutolineup verifies the credentials against the site, then
// stores the encrypted password and opts the manager in.
func (s *Syncer) RegisterAutolineup(ctx context.Context, email, password string) (*domain.Manager, error) {
	session, err := s.connector.Connect(ctx, teamsource.Credentials{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("verify credentials of %s: %w", email, err)
	}
	session.Close()

	m, err := s.findOrCreate(ctx, email)
	if err != nil {
		return nil, err
	}

	token, err := s.cipher.Encrypt(password)
	if err != nil {
		return nil, fmt.Errorf("encrypt credential: %w", err)
	}
	if err := s.managers.SetAutolineup(ctx, m.ID, true, &token); err != nil {
		return nil, fmt.Errorf("register autolineup for manager %d: %w", m.ID, err)
	}
	return s.managers.GetByID(ctx, m.ID)
}

// UnregisterAutolineup opts the manager out and forgets the stored password.
func (s *Syncer) UnregisterAutolineup(ctx context.Context, email string) error {
	m, err := s.managers.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("find manager %s: %w", email, err)
	}
	if err := s.managers.SetAutolineup(ctx, m.ID, false, nil); err != nil {
		return fmt.Errorf("unregister autolineup for manager %d: %w", m.ID, err)
	}
	return nil
}

func (s *Syncer) findOrCreate(ctx context.Context, email string) (*domain.Manager, error) {
	m, err := s.managers.GetByEmail(ctx, email)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("find manager %s: %w", email, err)
	}

	m = &domain.Manager{Email: email}
	err = s.managers.Insert(ctx, m)
	if errors.Is(err, storage.ErrDuplicateKey) {
		// Created concurrently.
		return s.managers.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("create manager %s: %w", email, err)
	}
	return m, nil
}
