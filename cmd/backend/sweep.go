package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reaper sweep and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			// A fresh memory store references no blobs, so the orphan pass
			// would delete the files of a running server.
			if cfg.Store.Backend == "memory" {
				return errors.New("sweep requires SHARE_STORE=postgres or SHARE_STORE=redis")
			}
			log := newLogger(cfg, cmd.ErrOrStderr())
			defer func() { _ = log.Sync() }()

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			// Metrics are not exported from a one-shot run.
			res, err := a.reaper(nil).Sweep(cmd.Context())
			if err != nil {
				log.Error("sweep_failed", zap.Error(err))
				return err
			}
			cmd.Printf("removed %d expired shares, %d blobs, %d orphaned blobs\n", res.Records, res.Blobs, res.Orphans)
			return nil
		},
	}
}
