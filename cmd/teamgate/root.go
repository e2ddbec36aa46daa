package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/teamgate/internal/bootstrap"
	"github.com/MrEthical07/teamgate/internal/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the teamgate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teamgate",
		Short: "teamgate - email OTP authentication for team workspaces",
		Long: `teamgate authenticates team members with a password followed by an
emailed one-time passcode, and handles password resets by email link.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewCreateAdminCmd())
	cmd.AddCommand(NewLoadtestCmd())

	return cmd
}

// newLogger builds the process logger from cfg and installs it as the
// slog default.
func newLogger(cfg bootstrap.Config) *slog.Logger {
	logger := logging.SetupLevel(cfg.ServiceName, version, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel), os.Stderr)
	slog.SetDefault(logger)
	return logger
}
