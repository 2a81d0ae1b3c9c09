// Strategy pool CLI
// Manages the strategy_pool table and converts it to and from YAML/JSON files
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphafuse/internal/config"
	"github.com/ajitpratap0/alphafuse/internal/db"
	"github.com/ajitpratap0/alphafuse/internal/pool"
	"github.com/ajitpratap0/alphafuse/pkg/strategy"
)

const usage = `Usage: pool [flags] <command> [args]

Commands:
  list                          print the pool
  import <file>                 add every strategy of a pool file
  export <file>                 write the pool to a .yaml or .json file
  add <class> [name] [params]   add one strategy, params as a JSON object
  remove <id>                   delete one strategy
  init                          seed the built-in default pool
`

func main() {
	configPath := flag.String("config", "", "Path to config file")
	name := flag.String("name", "alphafuse", "Pool name written on export")
	strict := flag.Bool("strict", true, "Validate pool files fully on import")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	config.InitLogger("info", "console")

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	database, err := db.New(ctx, cfg.Database.GetURL(), 2)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	repo := db.NewStrategyPoolRepository(database)

	if err := dispatch(ctx, repo, args, *name, *strict); err != nil {
		log.Error().Err(err).Str("command", args[0]).Msg("Command failed")
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, repo *db.StrategyPoolRepository, args []string, name string, strict bool) error {
	switch args[0] {
	case "list":
		entries, err := repo.ActivePool(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%4d  %-24s %-20s %v\n", e.ID, e.DisplayName(), e.Class, e.ParamConfigs)
		}
		return nil

	case "import":
		if len(args) < 2 {
			return fmt.Errorf("import needs a file")
		}
		opts := pool.DefaultImportOptions()
		opts.ValidateStrict = strict
		p, err := pool.ImportFromFile(args[1], opts)
		if err != nil {
			return err
		}
		if err := checkClasses(p.Strategies); err != nil {
			return err
		}
		n, err := repo.Import(ctx, p)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d strategies from %s\n", n, args[1])
		return nil

	case "export":
		if len(args) < 2 {
			return fmt.Errorf("export needs a file")
		}
		p, err := repo.Export(ctx, name)
		if err != nil {
			return err
		}
		if err := pool.ExportToFile(p, args[1], pool.DefaultExportOptions()); err != nil {
			return err
		}
		fmt.Printf("exported %d strategies to %s\n", len(p.Strategies), args[1])
		return nil

	case "add":
		if len(args) < 2 {
			return fmt.Errorf("add needs a class")
		}
		e := pool.Entry{Class: args[1]}
		if len(args) > 2 {
			e.Name = args[2]
		}
		if len(args) > 3 {
			e.ParamConfigs = args[3]
		}
		if err := checkClasses([]pool.Entry{e}); err != nil {
			return err
		}
		id, err := repo.Add(ctx, e)
		if err != nil {
			return err
		}
		fmt.Printf("added %s as %d\n", e.DisplayName(), id)
		return nil

	case "remove":
		if len(args) < 2 {
			return fmt.Errorf("remove needs an id")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", args[1], err)
		}
		return repo.Remove(ctx, id)

	case "init":
		n, err := repo.Import(ctx, pool.NewDefaultPool(name))
		if err != nil {
			return err
		}
		fmt.Printf("seeded %d built-in strategies\n", n)
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// checkClasses rejects entries the worker would skip
func checkClasses(entries []pool.Entry) error {
	registry := strategy.DefaultRegistry()
	for _, e := range entries {
		if _, ok := registry.Lookup(e.Class); !ok {
			return fmt.Errorf("unknown strategy class %q (registered: %v)", e.Class, registry.Names())
		}
		if _, err := pool.ParseParamGrid(e.ParamConfigs); err != nil {
			return fmt.Errorf("strategy %s: %w", e.DisplayName(), err)
		}
	}
	return nil
}
