// Package app wires stores and components from a Config for the commands.
package app

import (
	"context"
	"fmt"
	"log"

	"hm-tracker/internal/autolineup"
	"hm-tracker/internal/config"
	"hm-tracker/internal/ledger"
	"hm-tracker/internal/operation"
	"hm-tracker/internal/rostersync"
	"hm-tracker/internal/storage"
	chstore "hm-tracker/internal/storage/clickhouse"
	"hm-tracker/internal/storage/memory"
	"hm-tracker/internal/storage/migrations"
	pgstore "hm-tracker/internal/storage/postgres"
	"hm-tracker/internal/teamsource"
	"hm-tracker/internal/valuation"
	"hm-tracker/internal/vault"
)

// Stores holds all storage implementations.
type Stores struct {
	Seasons  storage.SeasonStore
	Managers storage.ManagerStore
	Rosters  storage.RosterStore
	Stats    storage.StatStore
	Matches  storage.MatchStore
	Tasks    storage.TaskStore
	Querier  storage.ValuationQuerier

	// StatsInClickHouse is set when Stats is served by ClickHouse. The
	// relational valuation query only sees PostgreSQL stats.
	StatsInClickHouse bool
}

// OpenStores creates in-memory stores or connects to PostgreSQL (and
// ClickHouse when configured), applying migrations first. The returned
// cleanup closes every connection.
func OpenStores(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Stores, func(), error) {
	if cfg.UseMemory {
		seasons := memory.NewSeasonStore()
		managers := memory.NewManagerStore()
		rosters := memory.NewRosterStore(managers)
		stats := memory.NewStatStore()
		matches := memory.NewMatchStore()
		return &Stores{
			Seasons:  seasons,
			Managers: managers,
			Rosters:  rosters,
			Stats:    stats,
			Matches:  matches,
			Tasks:    memory.NewTaskStore(),
			Querier:  memory.NewValuationQuerier(seasons, rosters, stats, matches),
		}, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	for _, name := range applied {
		logger.Printf("applied postgres migration %s", name)
	}

	stores := &Stores{
		Seasons:  pgstore.NewSeasonStore(pool),
		Managers: pgstore.NewManagerStore(pool),
		Rosters:  pgstore.NewRosterStore(pool),
		Stats:    pgstore.NewStatStore(pool),
		Matches:  pgstore.NewMatchStore(pool),
		Tasks:    pgstore.NewTaskStore(pool),
		Querier:  pgstore.NewValuationQuerier(pool),
	}
	cleanup := func() { pool.Close() }

	if cfg.ClickHouseDSN == "" {
		return stores, cleanup, nil
	}

	// ClickHouse (player stats)
	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	stores.Stats = chstore.NewStatStore(chConn)
	stores.StatsInClickHouse = true

	cleanup = func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// Components are the services built on top of the stores.
type Components struct {
	Registry   *operation.Registry
	Ledger     *ledger.Ledger
	Valuator   *valuation.Valuator
	Autolineup *autolineup.Orchestrator // nil without a vault key
	Sync       *rostersync.Syncer       // nil without a vault key
}

// NewComponents builds the services. Components that need stored
// credentials are left nil when no vault key is configured.
func NewComponents(cfg *config.Config, stores *Stores, connector teamsource.Connector, logger *log.Logger) (*Components, error) {
	strategy, err := valuation.ParseStrategy(cfg.ValuationStrategy)
	if err != nil {
		return nil, err
	}
	if strategy == valuation.Aggregate && stores.StatsInClickHouse {
		logger.Printf("player stats live in ClickHouse; using %s valuation", valuation.Iterative)
		strategy = valuation.Iterative
	}

	c := &Components{
		Registry: operation.NewRegistry(operation.Options{Logger: prefixed(logger, "[operation] ")}),
	}
	c.Ledger = ledger.New(ledger.Options{
		Seasons: stores.Seasons,
		Rosters: stores.Rosters,
		Logger:  prefixed(logger, "[ledger] "),
	})
	c.Valuator = valuation.New(valuation.Options{
		Seasons:  stores.Seasons,
		Rosters:  stores.Rosters,
		Stats:    stores.Stats,
		Matches:  stores.Matches,
		Querier:  stores.Querier,
		Strategy: strategy,
		Logger:   prefixed(logger, "[valuation] "),
	})

	if cfg.VaultKey == "" {
		logger.Printf("no vault key configured; autolineup and team alignment disabled")
		return c, nil
	}
	v, err := vault.New(cfg.VaultKey)
	if err != nil {
		return nil, err
	}

	c.Autolineup = autolineup.New(autolineup.Options{
		Managers:  stores.Managers,
		Matches:   stores.Matches,
		Tasks:     stores.Tasks,
		Vault:     v,
		Connector: connector,
		Registry:  c.Registry,
		PageSize:  cfg.AutolineupPageSize,
		Logger:    prefixed(logger, "[autolineup] "),
	})
	c.Sync = rostersync.New(rostersync.Options{
		Managers:    stores.Managers,
		Tasks:       stores.Tasks,
		Ledger:      c.Ledger,
		Cipher:      v,
		Connector:   connector,
		Registry:    c.Registry,
		CacheWindow: cfg.SyncCacheWindow,
		Logger:      prefixed(logger, "[rostersync] "),
	})
	return c, nil
}

// prefixed derives a component logger sharing logger's output and flags.
func prefixed(logger *log.Logger, prefix string) *log.Logger {
	return log.New(logger.Writer(), prefix, logger.Flags())
}
