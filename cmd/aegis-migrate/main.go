// Command aegis-migrate applies the server's pending database schema
// migrations, standalone from aegis-server for use in deploy pipelines that
// run migrations as a separate step before the server starts.
package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MokshitBindal/Aegis-sub000/internal/config"
	"github.com/MokshitBindal/Aegis-sub000/internal/store"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	migrationsDir := flag.String("migrations-dir", "internal/store/migrations", "directory of goose migration files")
	flag.Parse()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := store.RunMigrations(cfg.DatabaseURL, *migrationsDir); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	log.Info().Msg("migrations applied")
}
