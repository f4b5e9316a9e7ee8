package main

import (
	"errors"

	"github.com/spf13/cobra"

	"shareonair/internal/db"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the Postgres schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.Store.Backend != "postgres" {
				return errors.New("migrate requires SHARE_STORE=postgres")
			}

			conn, err := db.OpenDB(cmd.Context(), cfg.Store.DatabaseURL, db.DefaultPool)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			if len(args) == 1 && args[0] == "down" {
				if err := db.MigrateDown(conn); err != nil {
					return err
				}
				cmd.Println("schema rolled back")
				return nil
			}

			v, err := db.Migrate(conn)
			if err != nil {
				return err
			}
			cmd.Printf("schema at version %d\n", v)
			return nil
		},
	}
}
