package main

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shareonair/internal/config"
	"shareonair/internal/logging"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "shareonair",
		Short:         "Share text and files behind short codes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file; SHARE_* environment variables override it")
	cmd.SetUsageTemplate(cmd.UsageTemplate() + envHelp())

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newSweepCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func envHelp() string {
	usage, err := config.Usage()
	if err != nil {
		return ""
	}
	return "\n" + usage + "\n"
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	return config.Load(opts.configPath)
}

func newLogger(cfg *config.Config, console io.Writer) *zap.Logger {
	return logging.New(logging.Config{
		Level:      logging.ParseLevel(cfg.Log.Level),
		FilePath:   cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Console:    console,
	})
}
