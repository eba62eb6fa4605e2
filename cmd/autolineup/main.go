// Package main runs one autolineup batch and exits.
// Exit status is non-zero when the batch itself failed; per-manager
// failures are reported but do not fail the run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"hm-tracker/internal/app"
	"hm-tracker/internal/autolineup"
	"hm-tracker/internal/config"
	"hm-tracker/internal/operation"
	"hm-tracker/internal/teamsource/stub"
)

func main() {
	logger := log.New(os.Stdout, "[autolineup] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", cfg.UseMemory, "Use in-memory storage instead of PostgreSQL")
	pageSize := flag.Int("page-size", cfg.AutolineupPageSize, "Managers fetched per page")
	flag.Parse()

	cfg.PostgresDSN = *postgresDSN
	cfg.UseMemory = *useMemory
	cfg.AutolineupPageSize = *pageSize
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.RequireStorage(); err != nil {
		logger.Fatal(err)
	}
	if cfg.VaultKey == "" {
		logger.Fatalf("%s_VAULT_KEY is required", config.Prefix)
	}

	ctx := context.Background()

	stores, cleanup, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	components, err := app.NewComponents(cfg, stores, stub.NewConnector(), logger)
	if err != nil {
		logger.Fatalf("Failed to create components: %v", err)
	}

	var summary string
	op, err := components.Registry.Start(ctx, autolineup.TaskName, func(ctx context.Context) error {
		result, err := components.Autolineup.Run(ctx)
		if result != nil {
			summary = fmt.Sprintf("%d succeeded, %d failed", result.Succeeded, result.Failed)
		}
		return err
	})
	if err != nil {
		logger.Fatalf("Failed to start batch: %v", err)
	}

	// The batch runs detached from signals so its audit task is always written.
	<-op.Done()
	err = op.Err()
	if summary != "" {
		logger.Printf("Managers: %s", summary)
	}

	var pe *operation.PanicError
	switch {
	case errors.As(err, &pe):
		logger.Printf("Batch panicked: %v\n%s", pe.Value, pe.Stack)
		os.Exit(1)
	case err != nil:
		logger.Printf("Batch failed: %v", err)
		os.Exit(1)
	}
}
