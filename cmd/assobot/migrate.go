package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asso-tools/assobot/internal/config"
)

func migrateCommand(a *app) *cobra.Command {
	var (
		down   int
		status bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations, or roll back with --down",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(false); err != nil {
				return err
			}
			db, err := config.NewDatabase(a.cfg.DatabaseURL, a.cfg.Pool, a.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			switch {
			case status:
				v, err := db.Version(a.cfg.MigrationsPath)
				if err != nil {
					return err
				}
				if v.Empty {
					fmt.Fprintln(cmd.OutOrStdout(), "no migration applied")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v.Version, v.Dirty)
				return nil
			case down > 0:
				return db.Rollback(a.cfg.MigrationsPath, down)
			default:
				return db.Migrate(a.cfg.MigrationsPath)
			}
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "number of migrations to roll back")
	cmd.Flags().BoolVar(&status, "status", false, "print the applied schema version and exit")
	cmd.MarkFlagsMutuallyExclusive("down", "status")
	return cmd
}
