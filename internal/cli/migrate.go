package cli

import (
	"github.com/spf13/cobra"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "`migrate` applies the store schema to the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			a.log.Info("database is up to date", "dialect", a.cfg.Database.Dialect)
			return nil
		},
	}
}
