// Database migration CLI tool
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphafuse/internal/config"
	"github.com/ajitpratap0/alphafuse/internal/db"
)

func main() {
	command := flag.String("command", "migrate", "Command to run: migrate or status")
	configPath := flag.String("config", "", "Path to config file (database URL comes from here when -db is empty)")
	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "Database connection URL")
	migrationsDir := flag.String("migrations", "migrations", "Path to migrations directory")
	flag.Parse()

	config.InitLogger("info", "console")

	if *dbURL == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		*dbURL = cfg.Database.GetURL()
	}

	migrator, closeDB, err := db.OpenMigrator(*dbURL, *migrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer func() {
		if err := closeDB(); err != nil {
			log.Error().Err(err).Msg("Failed to close database connection")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch *command {
	case "migrate":
		applied, err := migrator.Migrate(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Migration failed")
			os.Exit(1)
		}
		log.Info().Int("applied", applied).Msg("Migrations complete")
	case "status":
		statuses, current, err := migrator.Status(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Status check failed")
			os.Exit(1)
		}
		fmt.Printf("Current version: %d\n\n", current)
		for _, s := range statuses {
			mark := "pending"
			if s.Applied {
				mark = "applied"
			}
			fmt.Printf("  %03d  %-8s  %s\n", s.Version, mark, s.Description)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		fmt.Fprintf(os.Stderr, "Usage: migrate -command=[migrate|status]\n")
		os.Exit(1)
	}
}
