// Package operation guards administrative batch runs so that at most one
// executes at a time across the whole process.
package operation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"hm-tracker/internal/observability"
)

// ErrServerBusy is returned when an operation is already running.
var ErrServerBusy = errors.New("server busy")

// BusyError names the operation that blocked a start. Unwraps to ErrServerBusy.
type BusyError struct {
	Running string
}

func (e *BusyError) Error() string {
	return "server is currently busy with operation: " + e.Running
}

func (e *BusyError) Unwrap() error {
	return ErrServerBusy
}

// PanicError is the result of an operation whose function panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

// Func is the body of an operation.
type Func func(ctx context.Context) error

// Operation is one started run.
type Operation struct {
	ID        uuid.UUID
	Name      string
	StartedAt time.Time

	done    chan struct{}
	err     error
	endedAt time.Time
}

// Done is closed when the run has finished and the registry is idle again.
func (op *Operation) Done() <-chan struct{} {
	return op.done
}

// Err returns the run's result. Only meaningful after Done is closed.
func (op *Operation) Err() error {
	select {
	case <-op.done:
		return op.err
	default:
		return nil
	}
}

// Wait blocks until the run finishes or ctx is done.
func (op *Operation) Wait(ctx context.Context) error {
	select {
	case <-op.done:
		return op.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Registry is the process-wide Idle/Running flag for operations.
type Registry struct {
	mu      sync.Mutex
	current *Operation
	last    *Operation

	now    func() time.Time
	logger *log.Logger
}

// Options for creating Registry.
type Options struct {
	Now    func() time.Time // defaults to time.Now
	Logger *log.Logger      // nil discards
}

// NewRegistry creates an idle registry.
func NewRegistry(opts Options) *Registry {
	r := &Registry{now: opts.Now, logger: opts.Logger}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard, "", 0)
	}
	return r
}

// Start runs fn on a background goroutine and returns immediately.
// Returns a *BusyError when another operation is running. fn gets a
// context detached from ctx's cancellation so a finished HTTP request
// does not abort the run. The registry returns to idle when fn returns
// or panics.
func (r *Registry) Start(ctx context.Context, name string, fn Func) (*Operation, error) {
	r.mu.Lock()
	if r.current != nil {
		running := r.current.Name
		r.mu.Unlock()
		observability.RecordOperationRejected(name)
		return nil, &BusyError{Running: running}
	}
	op := &Operation{
		ID:        uuid.New(),
		Name:      name,
		StartedAt: r.now(),
		done:      make(chan struct{}),
	}
	r.current = op
	r.mu.Unlock()

	observability.RecordOperationStart()
	r.logger.Printf("operation %s (%s) started", name, op.ID)

	go r.run(context.WithoutCancel(ctx), op, fn)
	return op, nil
}

// Run starts an operation and waits for it to finish.
func (r *Registry) Run(ctx context.Context, name string, fn Func) error {
	op, err := r.Start(ctx, name, fn)
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (r *Registry) run(ctx context.Context, op *Operation, fn Func) {
	defer func() {
		if rec := recover(); rec != nil {
			op.err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
		r.finish(op)
	}()
	op.err = fn(ctx)
}

func (r *Registry) finish(op *Operation) {
	r.mu.Lock()
	op.endedAt = r.now()
	r.current = nil
	r.last = op
	r.mu.Unlock()

	status := "succeeded"
	if op.err != nil {
		status = "failed"
		r.logger.Printf("operation %s (%s) failed: %v", op.Name, op.ID, op.err)
	} else {
		r.logger.Printf("operation %s (%s) succeeded", op.Name, op.ID)
	}
	observability.RecordOperationRun(op.Name, status, op.endedAt.Sub(op.StartedAt).Seconds())
	close(op.done)
}

// Current returns the running operation, or nil when idle.
func (r *Registry) Current() *Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Run states reported by Status.
const (
	StateIdle    = "idle"
	StateRunning = "running"
)

// RunInfo describes one run for the /status endpoint.
type RunInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
}

// Status is a point-in-time view of the registry.
type Status struct {
	State   string   `json:"state"`
	Running *RunInfo `json:"running,omitempty"`
	Last    *RunInfo `json:"last,omitempty"`
}

// Status returns the current state and the last finished run.
func (r *Registry) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{State: StateIdle}
	if r.current != nil {
		st.State = StateRunning
		st.Running = &RunInfo{
			ID:        r.current.ID.String(),
			Name:      r.current.Name,
			StartedAt: r.current.StartedAt,
			Status:    StateRunning,
		}
	}
	if r.last != nil {
		ended := r.last.endedAt
		info := &RunInfo{
			ID:        r.last.ID.String(),
			Name:      r.last.Name,
			StartedAt: r.last.StartedAt,
			EndedAt:   &ended,
			Status:    "succeeded",
		}
		if r.last.err != nil {
			info.Status = "failed"
			info.Error = r.last.err.Error()
		}
		st.Last = info
	}
	return st
}
