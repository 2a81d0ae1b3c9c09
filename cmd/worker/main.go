// Worker daemon
// Periodically backtests the strategy pool for every configured symbol,
// stores the ensemble decisions and publishes them over NATS
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphafuse/internal/alerts"
	"github.com/ajitpratap0/alphafuse/internal/config"
	"github.com/ajitpratap0/alphafuse/internal/db"
	"github.com/ajitpratap0/alphafuse/internal/market"
	"github.com/ajitpratap0/alphafuse/internal/metrics"
	"github.com/ajitpratap0/alphafuse/internal/notify"
	"github.com/ajitpratap0/alphafuse/internal/pool"
	"github.com/ajitpratap0/alphafuse/internal/worker"
	"github.com/ajitpratap0/alphafuse/pkg/ensemble"
	"github.com/ajitpratap0/alphafuse/pkg/strategy"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	once       = flag.Bool("once", false, "Run every symbol once and exit")
	syncDir    = flag.String("sync-dir", "", "Directory of <symbol>.csv|json candle files to copy into the database before each run")
	status     = flag.Bool("status", false, "Print the latest decision and recent runs per symbol, then exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		config.InitLogger("info", "console")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	log.Info().
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Strs("symbols", cfg.Worker.Symbols).
		Msg("Starting AlphaFuse worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validator := config.NewValidator(cfg, config.DefaultValidatorOptions())
	if err := validator.ValidateStartup(ctx); err != nil {
		log.Fatal().Err(err).Msg("Startup validation failed")
	}

	database, err := db.New(ctx, cfg.Database.GetURL(), cfg.Database.PoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if *status {
		if err := printStatus(ctx, database, cfg.Worker.Symbols); err != nil {
			log.Fatal().Err(err).Msg("Failed to read status")
		}
		return
	}

	if err := run(ctx, cfg, database); err != nil {
		log.Error().Err(err).Msg("Worker stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("Worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, database *db.DB) error {
	engine, err := ensemble.NewEngine(cfg.Ensemble)
	if err != nil {
		return fmt.Errorf("invalid ensemble configuration: %w", err)
	}

	candleRepo := db.NewCandleRepository(database, cfg.Backtest.Interval)
	services := worker.Services{
		Candles:  candleRepo,
		Pool:     db.NewStrategyPoolRepository(database),
		Store:    worker.NewBreakerStore(db.NewResultRepository(database), worker.DefaultBreakerSettings()),
		Runs:     db.NewRunRepository(database),
		Alerts:   alerts.NewManager(alerts.NewLogAlerter()),
		Registry: strategy.DefaultRegistry(),
		Engine:   engine,
	}
	if cfg.Worker.PoolFile != "" {
		services.Pool = pool.NewFileSource(cfg.Worker.PoolFile)
	}

	// Redis read-through cache in front of the candle table
	var cache *market.CandleCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()
		cache = market.NewCandleCache(candleRepo, client, cfg.Backtest.Interval, cfg.Redis.GetCacheTTL())
		services.Candles = cache
	}

	if cfg.Telegram.Enabled {
		telegram, err := alerts.NewTelegramAlerter(cfg.Telegram.BotToken, cfg.Telegram.ChatIDs)
		if err != nil {
			return fmt.Errorf("failed to start Telegram alerts: %w", err)
		}
		services.Alerts.Add(telegram)
	}

	if cfg.NATS.Enabled {
		publisher, err := notify.NewPublisher(notify.Config{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.DecisionSubject,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close decision publisher")
			}
		}()
		services.Publisher = publisher
		services.Alerts.Add(publisher)
	}

	if cfg.Monitoring.EnableMetrics {
		server := metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
		server.AddCheck("database", database.Ping)
		if cache != nil {
			server.AddCheck("redis", cache.Health)
		}
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Error during metrics server shutdown")
			}
		}()

		updater := metrics.NewUpdater(database.Pool(), time.Minute)
		go updater.Start(ctx)
		defer updater.Stop()
	}

	var syncer *market.SyncService
	if *syncDir != "" {
		var invalidator market.Invalidator
		if cache != nil {
			invalidator = cache
		}
		// the run loop drives the sync, so no interval here
		syncer = market.NewSyncService(market.NewDirSource(*syncDir), candleRepo, invalidator,
			cfg.Worker.Symbols, cfg.Backtest.Lookback(), 0)
	}

	w, err := worker.NewDynamicWorker(services, worker.Config{
		Simulator:        cfg.Backtest.SimulatorConfig(),
		TargetMetric:     cfg.Backtest.TargetMetric,
		Parallelism:      cfg.Backtest.Concurrency,
		MacroSymbol:      cfg.Worker.MacroSymbol,
		StoreTimeout:     cfg.Worker.GetStoreTimeout(),
		SymbolsPerSecond: cfg.Worker.SymbolsPerSecond,
	})
	if err != nil {
		return err
	}

	runAll := func() {
		if syncer != nil {
			if _, err := syncer.SyncAll(ctx); err != nil {
				log.Error().Err(err).Msg("Candle sync failed")
			}
		}

		end := time.Now().UTC().Truncate(24 * time.Hour)
		start := end.Add(-cfg.Backtest.Lookback())
		reports, err := w.RunSymbols(ctx, cfg.Worker.Symbols, start, end)
		if err != nil {
			log.Error().Err(err).Msg("Some symbols failed")
		}
		for _, report := range reports {
			if report.Decision == nil {
				continue
			}
			log.Info().
				Str("symbol", report.Symbol).
				Str("status", string(report.Status)).
				Str("signal", string(report.Decision.Signal)).
				Str("execution", string(report.Decision.ExecutionStatus)).
				Float64("suggested_position", report.Decision.SuggestedPosition).
				Msg("Decision ready")
		}
	}

	runAll()

	interval := cfg.Worker.GetRunInterval()
	if *once || interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Received shutdown signal")
			return nil
		case <-ticker.C:
			runAll()
		}
	}
}

func printStatus(ctx context.Context, database *db.DB, symbols []string) error {
	results := db.NewResultRepository(database)
	runs := db.NewRunRepository(database)

	for _, symbol := range symbols {
		decision, err := results.LatestDecision(ctx, symbol)
		if err != nil {
			return err
		}
		if decision == nil {
			fmt.Printf("%s: no decision yet\n", symbol)
		} else {
			fmt.Println(ensemble.FormatDecision(decision))
		}

		recent, err := runs.RecentRuns(ctx, symbol, 5)
		if err != nil {
			return err
		}
		for _, r := range recent {
			line := fmt.Sprintf("  %s  %-9s  strategies=%d failed=%d", r.StartedAt.Format(time.RFC3339), r.Status, r.StrategyCount, r.FailedCount)
			if r.ErrorStage != "" {
				line += fmt.Sprintf("  [%s] %s", r.ErrorStage, r.ErrorMessage)
			}
			fmt.Println(line)
		}
		fmt.Println()
	}
	return nil
}
