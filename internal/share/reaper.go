package share

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"shareonair/internal/metrics"
)

const (
	// DefaultSchedule runs the sweep hourly.
	DefaultSchedule = "@every 1h"

	// DefaultOrphanGrace protects blobs written by uploads that have not
	// inserted their record yet.
	DefaultOrphanGrace = time.Hour
)

// ReaperConfig tunes a Reaper.
type ReaperConfig struct {
	OrphanGrace time.Duration
	Now         func() time.Time
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Reaper removes expired records and the blobs they leave behind,
// independently of request traffic. It only uses the public operations of
// Store and BlobStore.
type Reaper struct {
	store   Store
	blobs   BlobStore
	cfg     ReaperConfig
	log     *zap.Logger
	metrics *metrics.Metrics
}

// SweepResult reports what one sweep removed.
type SweepResult struct {
	Records int // expired records deleted
	Blobs   int // blobs of those records removed
	Orphans int // unreferenced blobs removed
}

func NewReaper(store Store, blobs BlobStore, cfg ReaperConfig) *Reaper {
	if cfg.OrphanGrace <= 0 {
		cfg.OrphanGrace = DefaultOrphanGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Reaper{
		store:   store,
		blobs:   blobs,
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("service", "reaper")),
		metrics: cfg.Metrics,
	}
}

// Sweep deletes every record past its deadline, removes their blobs and then
// removes blobs no record references. Per-blob failures are logged and the
// sweep continues; only a failure to list records or blobs is returned. Blobs
// of records deleted before such a failure are still removed.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	now := r.cfg.Now().UTC()
	var res SweepResult

	// A failing store may still report the records it already deleted.
	expired, delErr := r.store.DeleteExpiredBefore(ctx, now)
	res.Records = len(expired)

	for i := range expired {
		sh := &expired[i]
		if sh.Kind != KindFile || sh.BlobRef == "" {
			continue
		}
		if err := r.blobs.Remove(ctx, sh.BlobRef); err != nil {
			r.log.Warn("blob_remove_failed", zap.String("code", sh.Code), zap.String("ref", sh.BlobRef), zap.Error(err))
			continue
		}
		res.Blobs++
	}
	if delErr != nil {
		r.log.Error("delete_expired_failed", zap.Int("deleted", res.Records), zap.Error(delErr))
		return res, delErr
	}

	orphans, err := r.sweepOrphans(ctx, now)
	res.Orphans = orphans
	if err != nil {
		r.log.Error("orphan_sweep_failed", zap.Error(err))
		return res, err
	}

	took := time.Since(start)
	if res.Records > 0 || res.Orphans > 0 {
		r.log.Info("cleanup_complete",
			zap.Int("deleted", res.Records),
			zap.Int("blobs", res.Blobs),
			zap.Int("orphans", res.Orphans),
			zap.Int64("duration_ms", took.Milliseconds()))
	} else {
		r.log.Debug("cleanup_complete", zap.Int64("duration_ms", took.Milliseconds()))
	}
	r.metrics.RecordSweep(res.Records, res.Blobs, res.Orphans, took)
	return res, nil
}

func (r *Reaper) sweepOrphans(ctx context.Context, now time.Time) (int, error) {
	refs, err := r.blobs.List(ctx, now.Add(-r.cfg.OrphanGrace))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, ref := range refs {
		used, err := r.store.HasBlobRef(ctx, ref)
		if err != nil {
			r.log.Warn("orphan_check_failed", zap.String("ref", ref), zap.Error(err))
			continue
		}
		if used {
			continue
		}
		if err := r.blobs.Remove(ctx, ref); err != nil {
			r.log.Warn("orphan_remove_failed", zap.String("ref", ref), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// Run sweeps once immediately and then on schedule until ctx is done.
func (r *Reaper) Run(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(schedule, func() { _, _ = r.Sweep(ctx) }); err != nil {
		return err
	}

	r.log.Info("starting", zap.String("schedule", schedule), zap.Duration("orphan_grace", r.cfg.OrphanGrace))
	_, _ = r.Sweep(ctx)

	c.Start()
	<-ctx.Done()
	r.log.Info("shutting_down")
	<-c.Stop().Done()
	return nil
}
