package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odgsully/renoscore/internal/monitoring"
	"github.com/odgsully/renoscore/internal/server"
)

var (
	servePort    int
	serveNoStore bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server with streaming scoring endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initScoring(ctx, "serve", !serveNoStore)
		if err != nil {
			return err
		}
		defer env.Close()

		if env.Store != nil && cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store, env.Breakers),
				monitoring.NewAlerter(cfg.Monitoring),
				env.Store,
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		srv := server.New(cfg.Server, server.Deps{
			Runner:        env.Pipeline,
			Store:         env.Store,
			Calculator:    env.Calculator,
			Breakers:      env.Breakers,
			Provider:      env.Provider.Name(),
			Model:         env.Provider.Model(),
			PagesPerChunk: env.ChunkSize,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return srv.ListenAndServe(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoStore, "no-store", false, "run without persistence")
	rootCmd.AddCommand(serveCmd)
}
