package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"shareonair/internal/blob"
	"shareonair/internal/config"
	"shareonair/internal/db"
	"shareonair/internal/metrics"
	"shareonair/internal/share"
	"shareonair/internal/store"
)

// app holds the backends selected by the configuration.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store share.Store
	blobs share.BlobStore
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Backend, err)
	}
	log.Info("backends_ready",
		zap.String("store", cfg.Store.Backend),
		zap.String("blob", cfg.Blob.Backend))
	return &app{cfg: cfg, log: log, store: st, blobs: blobs}, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (share.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), nil

	case "postgres":
		conn, err := db.OpenDB(ctx, cfg.Store.DatabaseURL, db.DefaultPool)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Migrate {
			v, err := db.Migrate(conn)
			if err != nil {
				_ = conn.Close()
				return nil, err
			}
			log.Info("migrations_complete", zap.Uint("version", v))
		}
		return store.NewPostgresStore(conn), nil

	case "redis":
		client, err := store.NewRedisClient(ctx, store.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		return store.NewRedisStore(client, cfg.Redis.Prefix), nil

	default:
		return nil, errors.New("unknown store backend")
	}
}

func openBlobs(ctx context.Context, cfg *config.Config) (share.BlobStore, error) {
	switch cfg.Blob.Backend {
	case "fs":
		return blob.NewFSStore(afero.NewOsFs(), cfg.Blob.Dir)

	case "minio":
		return blob.NewMinioStore(ctx, blob.MinioOptions{
			Endpoint:     cfg.S3.Endpoint,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			Bucket:       cfg.S3.Bucket,
			Prefix:       cfg.S3.Prefix,
			CreateBucket: cfg.S3.CreateBucket,
		})

	default:
		return nil, errors.New("unknown blob backend")
	}
}

func (a *app) manager(m *metrics.Metrics) *share.Manager {
	return share.NewManager(a.store, a.blobs, share.Options{
		DefaultTTL:      a.cfg.Share.DefaultTTL,
		MaxTTL:          a.cfg.Share.MaxTTL,
		DefaultMaxViews: a.cfg.Share.DefaultMaxViews,
		MaxViewsCeiling: a.cfg.Share.MaxViews,
		MaxAttempts:     a.cfg.Share.CodeAttempts,
		Logger:          a.log,
		Metrics:         m,
	})
}

func (a *app) reaper(m *metrics.Metrics) *share.Reaper {
	return share.NewReaper(a.store, a.blobs, share.ReaperConfig{
		OrphanGrace: a.cfg.Reaper.OrphanGrace,
		Logger:      a.log,
		Metrics:     m,
	})
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("store_close_failed", zap.Error(err))
	}
}
