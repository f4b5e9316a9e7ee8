package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shareonair/internal/logging"
	"shareonair/internal/metrics"
	"shareonair/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the reaper (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log := newLogger(cfg, cmd.OutOrStdout()).With(zap.String("service", "backend"))
	defer func() { _ = log.Sync() }()

	for _, w := range cfg.Warnings() {
		log.Warn("config_warning", zap.String("detail", w))
	}

	ctx := logging.WithLogger(cmd.Context(), log)
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup_failed", zap.Error(err))
		return err
	}
	defer a.Close()

	m := metrics.Default()
	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		BasePath:       cfg.Server.BasePath,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RateLimit:      cfg.Server.RateLimit,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		StoreName:      cfg.Store.Backend,
		Version:        version,
	}, server.Deps{
		Manager: a.manager(m),
		Store:   a.store,
		Blobs:   a.blobs,
		Logger:  log,
		Metrics: m,
	})

	log.Info("starting",
		zap.String("addr", cfg.Server.Addr),
		zap.String("version", version),
		zap.String("commit", commit))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Reaper.Enabled {
		reaper := a.reaper(m)
		g.Go(func() error {
			return reaper.Run(gctx, cfg.Reaper.Schedule)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server_error", zap.Error(err))
		return err
	}
	log.Info("shutdown_complete")
	return nil
}
