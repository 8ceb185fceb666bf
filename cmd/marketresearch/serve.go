package main

import (
	"log"

	"github.com/mohammad-safakhou/marketresearch/config"
	"github.com/mohammad-safakhou/marketresearch/internal/catalog"
	"github.com/mohammad-safakhou/marketresearch/internal/runtime"
	srv "github.com/mohammad-safakhou/marketresearch/internal/server"
	"github.com/mohammad-safakhou/marketresearch/internal/store"
	"github.com/spf13/cobra"
)

func serveCMD() *cobra.Command {
	var serveAddr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only runs API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr == "" {
				serveAddr = cfg.Server.Address
			}
			ctx := cmd.Context()
			logger := log.New(log.Writer(), "[SERVE] ", log.LstdFlags)

			cat, err := catalog.New()
			if err != nil {
				return err
			}
			defer cat.Close()
			n, err := cat.LoadDir(cfg.Trace.Dir)
			if err != nil {
				logger.Printf("indexing %s: %v", cfg.Trace.Dir, err)
			}
			logger.Printf("indexed %d runs from %s", n, cfg.Trace.Dir)

			opts := srv.Options{
				TraceDir: cfg.Trace.Dir,
				Catalog:  cat,
				Metrics:  runtime.NewMetrics().Handler(),
			}
			if cfg.Storage.Postgres.Configured() {
				st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
				if err != nil {
					return err
				}
				defer st.Close()
				opts.Store = st
			}
			return srv.Run(ctx, serveAddr, opts)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.address)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return serve
}
