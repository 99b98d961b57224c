package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"slackagent/pkg/persistence"
)

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	var target uint
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply run-history migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := persistence.OpenWithoutMigrations(ctx, cfg.Persistence.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			migrateTo := persistence.TargetLatest
			if target > 0 {
				migrateTo = persistence.TargetVersion(target)
			}
			if err := store.Migrate(ctx, migrateTo); err != nil {
				return err
			}
			version, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s at schema version %d\n", cfg.Persistence.Path, version)
			return nil
		},
	}
	cmd.Flags().UintVar(&target, "to", 0, "migrate to this version instead of the latest")
	return cmd
}
