package share_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shareonair/internal/metrics"
	"shareonair/internal/share"
)

func TestReaperSweep(t *testing.T) {
	f := newFixture(t, share.Options{})
	f.clock = newClock(time.Now().UTC())
	f.manager = share.NewManager(f.store, f.blobs, share.Options{Now: f.clock.Now})

	expiredText, err := f.manager.Create(context.Background(), share.CreateRequest{Kind: share.KindText, Content: "old", TTL: time.Hour})
	require.NoError(t, err)
	expiredFile, err := f.manager.Create(context.Background(), share.CreateRequest{
		Kind: share.KindFile, FileName: "old.bin", File: strings.NewReader("old"), TTL: time.Hour,
	})
	require.NoError(t, err)
	live := createFile(t, f.manager, "live.bin", "live")

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, afero.WriteFile(f.fs, blobDir+"/orphan.bin", []byte("lost"), 0o600))
	require.NoError(t, f.fs.Chtimes(blobDir+"/orphan.bin", past, past))
	require.NoError(t, afero.WriteFile(f.fs, blobDir+"/fresh.bin", []byte("in flight"), 0o600))
	require.NoError(t, f.fs.Chtimes(blobDir+"/"+live.BlobRef, past, past))

	f.clock.Advance(2 * time.Hour)

	m := metrics.New(prometheus.NewRegistry())
	r := share.NewReaper(f.store, f.blobs, share.ReaperConfig{
		OrphanGrace: 3 * time.Hour,
		Now:         f.clock.Now,
		Metrics:     m,
	})

	res, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, share.SweepResult{Records: 2, Blobs: 1, Orphans: 1}, res)

	for _, code := range []string{expiredText.Code, expiredFile.Code} {
		_, err := f.store.FindByCode(context.Background(), code)
		assert.ErrorIs(t, err, share.ErrNotFound)
	}
	_, err = f.store.FindByCode(context.Background(), live.Code)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{live.BlobRef, "fresh.bin"}, f.blobNames(t))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Reaped.WithLabelValues("records")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reaped.WithLabelValues("orphans")))

	// A second sweep finds nothing.
	res, err = r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, share.SweepResult{}, res)
}

// partialDeleteStore deletes expired records but reports a backend failure,
// the way a cursor error midway through a DELETE ... RETURNING would.
type partialDeleteStore struct {
	share.Store
}

func (s partialDeleteStore) DeleteExpiredBefore(ctx context.Context, t time.Time) ([]share.Share, error) {
	removed, err := s.Store.DeleteExpiredBefore(ctx, t)
	if err != nil {
		return removed, err
	}
	return removed, share.Unavailable("delete expired", errors.New("connection reset"))
}

func TestReaperSweepRemovesBlobsOnPartialDelete(t *testing.T) {
	f := newFixture(t, share.Options{})
	expired, err := f.manager.Create(context.Background(), share.CreateRequest{
		Kind: share.KindFile, FileName: "old.bin", File: strings.NewReader("old"), TTL: time.Hour,
	})
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	r := share.NewReaper(partialDeleteStore{f.store}, f.blobs, share.ReaperConfig{
		OrphanGrace: time.Hour,
		Now:         f.clock.Now,
	})
	res, err := r.Sweep(context.Background())
	require.ErrorIs(t, err, share.ErrStorageUnavailable)
	assert.Equal(t, share.SweepResult{Records: 1, Blobs: 1}, res)

	_, err = f.store.FindByCode(context.Background(), expired.Code)
	assert.ErrorIs(t, err, share.ErrNotFound)
	assert.Empty(t, f.blobNames(t))
}

func TestReaperRun(t *testing.T) {
	f := newFixture(t, share.Options{})
	sh := createFile(t, f.manager, "a.bin", "abc")
	f.clock.Advance(share.DefaultTTL + time.Minute)

	r := share.NewReaper(f.store, f.blobs, share.ReaperConfig{Now: f.clock.Now})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "@every 1h") }()

	require.Eventually(t, func() bool {
		_, err := f.store.FindByCode(context.Background(), sh.Code)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
	assert.Empty(t, f.blobNames(t))
}

func TestReaperRunRejectsBadSchedule(t *testing.T) {
	f := newFixture(t, share.Options{})
	r := share.NewReaper(f.store, f.blobs, share.ReaperConfig{})

	err := r.Run(context.Background(), "every tuesday")
	assert.Error(t, err)
}
