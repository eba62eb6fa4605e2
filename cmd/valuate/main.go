// Package main prints the value series of one roster as a table.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"hm-tracker/internal/app"
	"hm-tracker/internal/config"
	"hm-tracker/internal/domain"
	"hm-tracker/internal/teamsource/stub"
	"hm-tracker/internal/valuation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Parse flags
	managerID := flag.Int64("manager", 0, "Manager id (required)")
	team := flag.String("team", "", "Team code, e.g. NL (required)")
	seasonID := flag.Int64("season", 0, "Season id (default: current season)")
	strategy := flag.String("strategy", cfg.ValuationStrategy, "Valuation strategy: iterative, aggregate or both")
	subs := flag.String("subs", "", "Substitutions entryID:playerID[,entryID:playerID...]")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse connection string (optional)")
	flag.Parse()

	if *managerID == 0 || *team == "" {
		fmt.Fprintln(os.Stderr, "Error: --manager and --team are required")
		flag.Usage()
		os.Exit(2)
	}

	strategies, err := parseStrategies(*strategy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	substitutions, err := domain.ParseSubstitutions(*subs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	cfg.PostgresDSN = *postgresDSN
	cfg.ClickHouseDSN = *clickhouseDSN
	cfg.UseMemory = false
	cfg.ValuationStrategy = string(strategies[0])
	if err := cfg.RequireStorage(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx := context.Background()
	logger := log.New(os.Stderr, "[valuate] ", log.LstdFlags)

	stores, cleanup, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to databases: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	components, err := app.NewComponents(cfg, stores, stub.NewConnector(), log.New(io.Discard, "", 0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	valuator := components.Valuator.At(now)

	season := *seasonID
	if season == 0 {
		current, err := stores.Seasons.Resolve(ctx, now, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resolving current season: %v\n", err)
			os.Exit(1)
		}
		season = current.ID
	}

	results := make(map[valuation.Strategy][]domain.TeamValue, len(strategies))
	for _, s := range strategies {
		series, err := valuator.ComputeWith(ctx, s, *managerID, season, *team, substitutions)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error computing %s series: %v\n", s, err)
			os.Exit(1)
		}
		results[s] = series
	}

	if err := printSeries(os.Stdout, strategies, results); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}
}

// parseStrategies expands "both" into the two strategies.
func parseStrategies(s string) ([]valuation.Strategy, error) {
	if s == "both" {
		return []valuation.Strategy{valuation.Iterative, valuation.Aggregate}, nil
	}
	strategy, err := valuation.ParseStrategy(s)
	if err != nil {
		return nil, err
	}
	return []valuation.Strategy{strategy}, nil
}

// printSeries writes one row per checkpoint with a value column pair per
// strategy. Series of different strategies are aligned on checkpoint time.
func printSeries(w io.Writer, strategies []valuation.Strategy, results map[valuation.Strategy][]domain.TeamValue) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprint(tw, "checkpoint\t")
	for _, s := range strategies {
		fmt.Fprintf(tw, "%s value\t%s theoretical\t", s, s)
	}
	fmt.Fprintln(tw)

	type row map[valuation.Strategy]domain.TeamValue
	rows := make(map[int64]row)
	var order []time.Time
	for _, s := range strategies {
		for _, v := range results[s] {
			key := v.At.UnixNano()
			if _, ok := rows[key]; !ok {
				rows[key] = row{}
				order = append(order, v.At)
			}
			rows[key][s] = v
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	for _, at := range order {
		fmt.Fprintf(tw, "%s\t", at.UTC().Format(time.RFC3339))
		r := rows[at.UnixNano()]
		for _, s := range strategies {
			v, ok := r[s]
			if !ok {
				fmt.Fprint(tw, "-\t-\t")
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t", v.Value.StringFixed(2), v.TheoreticalValue.StringFixed(domain.TheoreticalScale))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
