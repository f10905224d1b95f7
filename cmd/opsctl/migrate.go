package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rezkam/opsflow/internal/infrastructure/persistence/postgres"
	"github.com/rezkam/opsflow/internal/infrastructure/persistence/sqlite"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			switch cfg.Database.Driver {
			case "postgres":
				if err := postgres.Migrate(ctx, cfg.Database.DSN); err != nil {
					return err
				}
			case "sqlite":
				// Opening the store applies its migrations.
				store, err := sqlite.NewStore(ctx, cfg.Database.DSN)
				if err != nil {
					return err
				}
				if err := store.Close(); err != nil {
					return fmt.Errorf("failed to close database: %w", err)
				}
			default:
				return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.Database.Driver)
			return nil
		},
	}
}
