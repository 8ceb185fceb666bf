package main

import (
	"fmt"

	"github.com/mohammad-safakhou/marketresearch/config"
	"github.com/mohammad-safakhou/marketresearch/internal/store"
	"github.com/spf13/cobra"
)

func migrateCMD() *cobra.Command {
	var direction string
	var steps int
	var cfgPath string

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if !cfg.Storage.Postgres.Configured() {
				return fmt.Errorf("postgres not configured (storage.postgres.url or host/dbname)")
			}
			if err := store.Migrate(cfg.Storage.Postgres.DSN(), direction, steps); err != nil {
				return err
			}
			fmt.Printf("migrations %s applied\n", direction)
			return nil
		},
	}
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	migrate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return migrate
}
