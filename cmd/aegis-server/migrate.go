package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MokshitBindal/Aegis-sub000/internal/config"
	"github.com/MokshitBindal/Aegis-sub000/internal/store"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServerConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := store.RunMigrations(cfg.DatabaseURL, migrationsDir); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		fmt.Println("migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "migrations-dir", "internal/store/migrations", "directory of goose migration files")
}
