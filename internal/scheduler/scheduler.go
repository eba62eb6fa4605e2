// Package scheduler runs periodic jobs on standard five-field cron
// expressions evaluated in UTC.
package scheduler

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// ValidateSchedule checks a standard cron expression (minute hour dom month dow).
func ValidateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Next returns the first activation of expr strictly after t.
func Next(expr string, t time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(t.UTC()), nil
}

// Scheduler wraps a gocron scheduler. A job never overlaps with itself:
// a tick arriving while the previous run is active is skipped.
type Scheduler struct {
	s      gocron.Scheduler
	logger *log.Logger

	mu   sync.Mutex
	jobs map[string]string // name -> cron expression
}

// New creates a stopped scheduler.
func New(logger *log.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{s: s, logger: logger, jobs: make(map[string]string)}, nil
}

// Add registers fn under name on the cron expression expr.
func (s *Scheduler) Add(name, expr string, fn func()) error {
	if err := ValidateSchedule(expr); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	_, err := s.s.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(func() {
			s.logger.Printf("job %s triggered", name)
			fn()
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s job: %w", name, err)
	}

	s.mu.Lock()
	s.jobs[name] = expr
	s.mu.Unlock()
	return nil
}

// Jobs returns the registered job names with their next activation after now.
func (s *Scheduler) Jobs(now time.Time) map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]time.Time, len(s.jobs))
	for name, expr := range s.jobs {
		if t, err := Next(expr, now); err == nil {
			next[name] = t
		}
	}
	return next
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.s.Start()
}

// Stop waits for running jobs and shuts down.
func (s *Scheduler) Stop() error {
	return s.s.Shutdown()
}
