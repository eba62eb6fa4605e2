// Package main provides the long-running service:
// - Scheduler: autolineup batch and team alignment on cron schedules
// - HTTP: /health, /metrics, /status, operation triggers and value series
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hm-tracker/internal/app"
	"hm-tracker/internal/autolineup"
	"hm-tracker/internal/config"
	"hm-tracker/internal/rostersync"
	"hm-tracker/internal/scheduler"
	"hm-tracker/internal/teamsource/stub"
)

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// .env and HMTRACKER_* environment provide the flag defaults
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse connection string (optional, serves player stats)")
	useMemory := flag.Bool("use-memory", cfg.UseMemory, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "HTTP address for /health, /metrics and /status")
	autolineupSchedule := flag.String("autolineup-schedule", cfg.AutolineupSchedule, "Cron schedule of the autolineup batch (empty disables)")
	alignSchedule := flag.String("align-schedule", cfg.AlignSchedule, "Cron schedule of team alignment (empty disables)")
	strategy := flag.String("valuation-strategy", cfg.ValuationStrategy, "Valuation strategy: iterative or aggregate")
	flag.Parse()

	cfg.PostgresDSN = *postgresDSN
	cfg.ClickHouseDSN = *clickhouseDSN
	cfg.UseMemory = *useMemory
	cfg.MetricsAddr = *metricsAddr
	cfg.AutolineupSchedule = *autolineupSchedule
	cfg.AlignSchedule = *alignSchedule
	cfg.ValuationStrategy = *strategy

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.RequireStorage(); err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stores, cleanup, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// The site client is not part of this service; the offline connector
	// knows no accounts, so every login is rejected.
	connector := stub.NewConnector()
	logger.Println("Team source: offline connector")

	components, err := app.NewComponents(cfg, stores, connector, logger)
	if err != nil {
		logger.Fatalf("Failed to create components: %v", err)
	}

	sched, err := scheduler.New(log.New(os.Stdout, "[scheduler] ", log.LstdFlags))
	if err != nil {
		logger.Fatalf("Failed to create scheduler: %v", err)
	}
	if err := registerJobs(ctx, sched, cfg, components, logger); err != nil {
		logger.Fatalf("Failed to register jobs: %v", err)
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Printf("Error stopping scheduler: %v", err)
		}
	}()

	srv := newHTTPServer(cfg.MetricsAddr, &handlers{
		components: components,
		stores:     stores,
		scheduler:  sched,
		logger:     logger,
	})
	go func() {
		logger.Printf("Starting HTTP server on %s", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !isServerClosed(err) {
			logger.Printf("HTTP server error: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown error: %v", err)
	}

	// Let a running batch finish writing its audit task.
	if op := components.Registry.Current(); op != nil {
		logger.Printf("Waiting for operation %s to finish", op.Name)
		if err := op.Wait(shutdownCtx); err != nil {
			logger.Printf("Operation %s: %v", op.Name, err)
		}
	}

	logger.Println("Shutdown complete")
}

// registerJobs adds the periodic batches. Busy starts are logged and skipped.
func registerJobs(ctx context.Context, sched *scheduler.Scheduler, cfg *config.Config, c *app.Components, logger *log.Logger) error {
	if c.Autolineup != nil && cfg.AutolineupSchedule != "" {
		err := sched.Add(autolineup.TaskName, cfg.AutolineupSchedule, func() {
			if _, err := c.Autolineup.Start(ctx); err != nil {
				logger.Printf("Autolineup not started: %v", err)
			}
		})
		if err != nil {
			return err
		}
	}

	if c.Sync != nil && cfg.AlignSchedule != "" {
		err := sched.Add(rostersync.AlignTaskName, cfg.AlignSchedule, func() {
			if _, err := c.Sync.StartAlign(ctx); err != nil {
				logger.Printf("Align teams not started: %v", err)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}
