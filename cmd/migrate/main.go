package main

import (
	"flag"
	"fmt"
	"os"

	"freight-commission-ledger/config"
	pgStorage "freight-commission-ledger/internal/adapter/storage/postgres"
	"freight-commission-ledger/migrations"
	"freight-commission-ledger/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./config.yaml or ./config/config.yaml)")
	down := flag.Int("down", 0, "roll back this many migrations instead of applying pending ones")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Database.Driver == "memory" {
		log.Info().Msg("Memory driver has no schema; nothing to migrate")
		return
	}

	if *down > 0 {
		if err := pgStorage.MigrateDown(migrations.FS, cfg.Database.DSN(), *down, log); err != nil {
			log.Fatal().Err(err).Int("steps", *down).Msg("Rollback failed")
		}
		log.Info().Int("steps", *down).Msg("Rolled back")
		return
	}

	if err := pgStorage.Migrate(migrations.FS, cfg.Database.DSN(), log); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}
