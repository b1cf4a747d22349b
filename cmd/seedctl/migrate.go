package main

import (
	"github.com/spf13/cobra"

	"github.com/keithlinneman/linnemanlabs-seed/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-seed/internal/tokenstore"
)

func newMigrateCmd(conf *cfg.App) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply token store migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, rt, err := start(cmd.Context(), conf, "migrate", cfg.ValidateDatabase)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			// openStore migrates only with --auto-migrate
			c := *conf
			c.AutoMigrate = false
			rt.conf = &c
			db, _, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			d, err := tokenstore.ParseDialect(conf.DBDriver)
			if err != nil {
				return err
			}
			if err := tokenstore.Migrate(ctx, db, d); err != nil {
				rt.L.Error(ctx, err, "migration failed")
				return err
			}
			rt.L.Info(ctx, "migrations applied", "driver", string(d))
			return nil
		},
	}
}
