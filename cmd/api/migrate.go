package main

import (
	"github.com/spf13/cobra"

	"github.com/eris-support/support-desk/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.postgres.Close()
		return persistence.RunMigrations(cmd.Context(), a.postgres.PoolHandle(), a.logger)
	},
}
