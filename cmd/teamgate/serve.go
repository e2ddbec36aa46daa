package main

import (
	"github.com/spf13/cobra"

	"github.com/MrEthical07/teamgate/internal/bootstrap"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var (
		dev     bool
		migrate bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API, the optional gRPC health endpoint and the
periodic sweep of expired secrets. With --dev no external service is
needed: accounts live in memory, Redis runs in process and mail is
written to the log.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var overrides []bootstrap.Override
			if dev {
				overrides = append(overrides, bootstrap.DevMode)
			}
			cfg, err := bootstrap.LoadConfig(configFile, overrides...)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			ctx := cmd.Context()

			if migrate && cfg.DatabaseURL != "" && !cfg.Dev {
				if err := migrateUp(ctx, cfg.DatabaseURL); err != nil {
					return err
				}
				logger.Info("migrations applied")
			}

			services, err := bootstrap.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			rt, err := bootstrap.NewRuntime(cfg, services, logger)
			if err != nil {
				services.Close()
				return err
			}
			return rt.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&dev, "dev", false, "run with in-process dependencies")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}
