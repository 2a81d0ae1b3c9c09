// Backtest Runner CLI
// Optimizes the strategy pool for one or more symbols and prints the
// per-strategy reports and the ensemble decision
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphafuse/internal/config"
	"github.com/ajitpratap0/alphafuse/internal/db"
	"github.com/ajitpratap0/alphafuse/internal/market"
	"github.com/ajitpratap0/alphafuse/internal/pool"
	"github.com/ajitpratap0/alphafuse/internal/worker"
	"github.com/ajitpratap0/alphafuse/pkg/backtest"
	"github.com/ajitpratap0/alphafuse/pkg/ensemble"
	"github.com/ajitpratap0/alphafuse/pkg/strategy"
)

// ============================================================================
// CLI FLAGS
// ============================================================================

var (
	configPath = flag.String("config", "", "Path to config file")
	symbols    = flag.String("symbols", "", "Comma-separated list of symbols")

	// Inputs
	dataPath = flag.String("data", "", "Candle file (CSV/JSON) or directory of <symbol>.csv|json files; empty reads the database")
	poolFile = flag.String("pool", "", "Strategy pool file (YAML/JSON); empty uses the database pool in database mode, the built-in pool otherwise")
	only     = flag.String("strategy", "", "Run only this strategy id")
	position = flag.Float64("position", 0, "Current position fraction fed to turnover suppression")

	// Date range
	startDate = flag.String("start", "", "Start date (YYYY-MM-DD), default end minus lookback")
	endDate   = flag.String("end", "", "End date (YYYY-MM-DD), default today")

	// Output
	save       = flag.Bool("save", false, "Persist results and decision to the database")
	outputFile = flag.String("output", "", "Write the run reports as JSON to this file")
	listOnly   = flag.Bool("list", false, "List registered strategies and exit")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
)

// ============================================================================
// MAIN
// ============================================================================

func main() {
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	config.InitLogger(level, "console")

	registry := strategy.DefaultRegistry()
	if *listOnly {
		for _, name := range registry.Names() {
			def, _ := registry.Lookup(name)
			fmt.Printf("%-20s %s\n", name, def.Description)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	symbolList := parseSymbols(*symbols)
	if len(symbolList) == 0 {
		symbolList = cfg.Worker.Symbols
	}
	if len(symbolList) == 0 {
		fmt.Fprintln(os.Stderr, "Error: -symbols flag is required")
		flag.Usage()
		os.Exit(1)
	}

	start, end, err := dateRange(*startDate, *endDate, cfg.Backtest.Lookback())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid date range")
	}

	log.Info().
		Strs("symbols", symbolList).
		Str("start", start.Format("2006-01-02")).
		Str("end", end.Format("2006-01-02")).
		Msg("Starting backtest")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runBacktest(ctx, cfg, registry, symbolList, start, end); err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}

	log.Info().Msg("Backtest completed successfully")
}

// ============================================================================
// BACKTEST EXECUTION
// ============================================================================

func runBacktest(ctx context.Context, cfg *config.Config, registry *strategy.Registry, symbolList []string, start, end time.Time) error {
	engine, err := ensemble.NewEngine(cfg.Ensemble)
	if err != nil {
		return fmt.Errorf("invalid ensemble configuration: %w", err)
	}

	services := worker.Services{Registry: registry, Engine: engine}

	var database *db.DB
	if *dataPath == "" || *save {
		database, err = db.New(ctx, cfg.Database.GetURL(), cfg.Database.PoolSize)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
	}

	// candles
	if *dataPath != "" {
		services.Candles, err = fileSource(*dataPath, symbolList)
		if err != nil {
			return err
		}
	} else {
		services.Candles = db.NewCandleRepository(database, cfg.Backtest.Interval)
	}

	// pool
	switch {
	case *poolFile != "":
		services.Pool = pool.NewFileSource(*poolFile)
	case *dataPath == "":
		services.Pool = db.NewStrategyPoolRepository(database)
	default:
		services.Pool = worker.StaticPool(pool.NewDefaultPool("builtin").Strategies)
	}
	if *only != "" {
		services.Pool = onlyStrategy{next: services.Pool, class: *only}
	}

	// results
	memory := worker.NewMemoryStore()
	if *save {
		services.Store = db.NewResultRepository(database)
		services.Runs = db.NewRunRepository(database)
	} else {
		for _, symbol := range symbolList {
			memory.SetPosition(symbol, *position)
		}
		services.Store = memory
	}

	wcfg := worker.Config{
		Simulator:    cfg.Backtest.SimulatorConfig(),
		TargetMetric: cfg.Backtest.TargetMetric,
		Parallelism:  cfg.Backtest.Concurrency,
		MacroSymbol:  cfg.Worker.MacroSymbol,
		StoreTimeout: cfg.Worker.GetStoreTimeout(),
	}
	w, err := worker.NewDynamicWorker(services, wcfg)
	if err != nil {
		return err
	}

	reports, runErr := w.RunSymbols(ctx, symbolList, start, end)
	for _, report := range reports {
		printReport(report)
	}

	if *outputFile != "" {
		if err := writeReports(*outputFile, reports); err != nil {
			return err
		}
		log.Info().Str("file", *outputFile).Msg("Reports written")
	}

	return runErr
}

// onlyStrategy narrows a pool to one strategy class
type onlyStrategy struct {
	next  worker.PoolSource
	class string
}

func (o onlyStrategy) ActivePool(ctx context.Context) ([]pool.Entry, error) {
	entries, err := o.next.ActivePool(ctx)
	if err != nil {
		return nil, err
	}
	var out []pool.Entry
	for _, e := range entries {
		if e.Class == o.class {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		// not in the pool: run it on its default grid
		out = append(out, pool.Entry{Name: o.class, Class: o.class})
	}
	return out, nil
}

// fileSource serves a directory of per-symbol files, or a single file for a
// single symbol
func fileSource(path string, symbolList []string) (worker.CandleSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open candle data: %w", err)
	}
	if info.IsDir() {
		return market.NewDirSource(path), nil
	}
	if len(symbolList) != 1 {
		return nil, fmt.Errorf("a single candle file needs exactly one symbol, got %d", len(symbolList))
	}

	candles, err := backtest.LoadCandles(path)
	if err != nil {
		return nil, err
	}
	return singleFile{symbol: symbolList[0], candles: candles}, nil
}

type singleFile struct {
	symbol  string
	candles []backtest.Candle
}

func (s singleFile) Load(_ context.Context, symbol string, start, end time.Time) ([]backtest.Candle, error) {
	if symbol != s.symbol {
		return nil, fmt.Errorf("no candle data for %s", symbol)
	}
	return market.Window(s.candles, start, end), nil
}

// ============================================================================
// OUTPUT
// ============================================================================

func printReport(report *worker.RunReport) {
	fmt.Printf("\n################ %s ################\n", report.Symbol)
	for _, res := range report.Results {
		fmt.Println(backtest.GenerateReport(res.Name, res.Params, res.Metrics, res.Curve))
	}
	for _, issue := range report.Skipped {
		fmt.Printf("skipped %s (%s): %s\n", issue.Name, issue.Class, issue.Reason)
	}
	for _, issue := range report.Failed {
		fmt.Printf("failed  %s (%s): %s\n", issue.Name, issue.Class, issue.Reason)
	}
	if report.Decision != nil {
		fmt.Println(ensemble.FormatDecision(report.Decision))
	}
}

func writeReports(path string, reports []*worker.RunReport) error {
	for _, report := range reports {
		for i := range report.Results {
			report.Results[i].Metrics = report.Results[i].Metrics.Sanitize()
			report.Results[i].Curve = report.Results[i].Curve.Sanitize()
		}
	}
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal reports: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write reports: %w", err)
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func dateRange(startRaw, endRaw string, lookback time.Duration) (time.Time, time.Time, error) {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	if endRaw != "" {
		parsed, err := time.Parse("2006-01-02", endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date format (use YYYY-MM-DD): %w", err)
		}
		end = parsed
	}

	start := end.Add(-lookback)
	if startRaw != "" {
		parsed, err := time.Parse("2006-01-02", startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date format (use YYYY-MM-DD): %w", err)
		}
		start = parsed
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date must be after start date")
	}
	return start, end, nil
}

func parseSymbols(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
