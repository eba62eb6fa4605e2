// Package autolineup applies the site's automatic lineup to the rosters of
// every manager who opted in, once per match day.
// Flow: cutoff → paged manager scan → per-manager lineup → audit task
package autolineup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime/debug"
	"time"

	"hm-tracker/internal/domain"
	"hm-tracker/internal/observability"
	"hm-tracker/internal/operation"
	"hm-tracker/internal/storage"
	"hm-tracker/internal/teamsource"
)

// TaskName is the operation and audit task name of a batch run.
const TaskName = "Autolineup"

// DefaultPageSize is the number of managers fetched per page.
const DefaultPageSize = 50

// ErrCredentialMissing is returned for an opted-in manager without a stored password.
var ErrCredentialMissing = errors.New("autolineup credential missing")

// Decrypter opens stored credentials. Implemented by vault.Vault.
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// Orchestrator coordinates autolineup batch runs.
type Orchestrator struct {
	// Stores
	managers storage.ManagerStore
	matches  storage.MatchStore
	tasks    storage.TaskStore

	// Collaborators
	vault     Decrypter
	connector teamsource.Connector
	registry  *operation.Registry

	pageSize int
	now      func() time.Time
	logger   *log.Logger
}

// Options for creating Orchestrator.
type Options struct {
	// Required stores
	Managers storage.ManagerStore
	Matches  storage.MatchStore
	Tasks    storage.TaskStore

	// Required collaborators
	Vault     Decrypter
	Connector teamsource.Connector
	Registry  *operation.Registry // only needed by Start

	PageSize int              // defaults to DefaultPageSize
	Now      func() time.Time // defaults to time.Now
	Logger   *log.Logger      // nil discards
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		managers:  opts.Managers,
		matches:   opts.Matches,
		tasks:     opts.Tasks,
		vault:     opts.Vault,
		connector: opts.Connector,
		registry:  opts.Registry,
		pageSize:  opts.PageSize,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if o.pageSize <= 0 {
		o.pageSize = DefaultPageSize
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard, "", 0)
	}
	return o
}

// ProcessResult counts per-manager outcomes of one batch.
type ProcessResult struct {
	Succeeded int
	Failed    int
}

// Start launches Run as a registered operation. Returns an error wrapping
// operation.ErrServerBusy when another operation is running.
func (o *Orchestrator) Start(ctx context.Context) (*operation.Operation, error) {
	if o.registry == nil {
		return nil, errors.New("autolineup: no operation registry configured")
	}
	return o.registry.Start(ctx, TaskName, func(ctx context.Context) error {
		_, err := o.Run(ctx)
		return err
	})
}

// Run computes the cutoff, processes all due managers and writes exactly
// one audit task. Per-manager failures are counted, not reported as errors.
// A panic is recovered and recorded on the task with its stack trace.
func (o *Orchestrator) Run(ctx context.Context) (result *ProcessResult, err error) {
	task := &domain.Task{Name: TaskName, StartAt: o.now()}

	defer func() {
		var stack string
		if rec := recover(); rec != nil {
			err = fmt.Errorf("autolineup panicked: %v", rec)
			stack = string(debug.Stack())
		} else if err != nil {
			stack = string(debug.Stack())
		}

		task.EndAt = o.now()
		if err != nil {
			msg := err.Error()
			task.Error = &msg
			task.Stacktrace = &stack
		}

		if insertErr := o.tasks.Insert(context.WithoutCancel(ctx), task); insertErr != nil {
			o.logger.Printf("record task: %v", insertErr)
			err = errors.Join(err, fmt.Errorf("record task: %w", insertErr))
		}
	}()

	cutoff, err := o.Cutoff(ctx)
	if err != nil {
		return nil, err
	}
	if cutoff != nil {
		o.logger.Printf("run started, cutoff %s", cutoff.Format(time.RFC3339))
	} else {
		o.logger.Printf("run started, no matches yet")
	}

	result, err = o.Process(ctx, cutoff)
	if err != nil {
		return result, err
	}

	o.logger.Printf("run completed: %d succeeded, %d failed", result.Succeeded, result.Failed)
	observability.RecordAutolineupSuccess(o.now().Unix())
	return result, nil
}

// Cutoff returns the end of the UTC day of the most recent match played by
// now, or nil when no match has been played.
func (o *Orchestrator) Cutoff(ctx context.Context) (*time.Time, error) {
	latest, err := o.matches.Latest(ctx, o.now())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest match: %w", err)
	}
	cutoff := domain.EndOfDay(latest.MatchTime)
	return &cutoff, nil
}

// Process applies the automatic lineup for every opted-in manager whose
// last run is missing or before cutoff (every opted-in manager when cutoff
// is nil). Managers are paged by id until an empty page comes back.
// Only a failing page fetch or a cancelled ctx aborts the batch.
func (o *Orchestrator) Process(ctx context.Context, cutoff *time.Time) (*ProcessResult, error) {
	result := &ProcessResult{}
	var afterID int64

	for {
		page, err := o.managers.ListAutolineupPage(ctx, cutoff, afterID, o.pageSize)
		if err != nil {
			return result, fmt.Errorf("list managers after %d: %w", afterID, err)
		}
		if len(page) == 0 {
			return result, nil
		}

		for _, m := range page {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if err := o.processManager(ctx, m); err != nil {
				result.Failed++
				observability.RecordAutolineupManager("failed")
				o.logger.Printf("manager %d: %v", m.ID, err)
				continue
			}
			result.Succeeded++
			observability.RecordAutolineupManager("succeeded")
		}
		afterID = page[len(page)-1].ID
	}
}

func (o *Orchestrator) processManager(ctx context.Context, m *domain.Manager) error {
	if m.EncryptedPassword == nil || *m.EncryptedPassword == "" {
		return ErrCredentialMissing
	}

	password, err := o.vault.Decrypt(*m.EncryptedPassword)
	if err != nil {
		return fmt.Errorf("decrypt credential: %w", err)
	}

	session, err := o.connector.Connect(ctx, teamsource.Credentials{Email: m.Email, Password: password})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer session.Close()

	if _, err := teamsource.ApplyAutoLineupAll(ctx, session); err != nil {
		return err
	}

	if err := o.managers.MarkAutolineup(ctx, m.ID, o.now()); err != nil {
		return fmt.Errorf("mark autolineup: %w", err)
	}
	return nil
}
