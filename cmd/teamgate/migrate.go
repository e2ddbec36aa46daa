package main

import (
	"context"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/teamgate/internal/migrations"
)

var databaseURLFlag string

// NewMigrateCmd creates the migrate subcommand. Without a subcommand it
// applies every pending migration.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run all pending database migrations against the PostgreSQL database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			cmd.Println("Running migrations...")
			if err := migrateUp(cmd.Context(), url); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&databaseURLFlag, "database-url", "", "PostgreSQL URL (default $DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			db, err := migrations.Open(url)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrations.Down(cmd.Context(), db); err != nil {
				return err
			}
			cmd.Println("Rolled back one migration")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			db, err := migrations.Open(url)
			if err != nil {
				return err
			}
			defer db.Close()

			v, err := migrations.Version(cmd.Context(), db)
			if err != nil {
				return err
			}
			cmd.Printf("Schema version: %d\n", v)
			return nil
		},
	})
	return cmd
}

func databaseURL() (string, error) {
	if databaseURLFlag != "" {
		return databaseURLFlag, nil
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}
	return "", oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable or --database-url is required")
}

func migrateUp(ctx context.Context, url string) error {
	db, err := migrations.Open(url)
	if err != nil {
		return err
	}
	defer db.Close()
	return migrations.Up(ctx, db)
}
