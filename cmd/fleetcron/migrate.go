package main

import (
	"github.com/spf13/cobra"

	"github.com/xraph/fleetcron/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := postgres.New(cmd.Context(), cfg.DatabaseURL, postgres.WithLogger(logger))
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}
		logger.Info("migrations applied")
		return nil
	},
}
