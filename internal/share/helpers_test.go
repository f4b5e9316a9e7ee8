package share_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"shareonair/internal/blob"
	"shareonair/internal/share"
	"shareonair/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyStore fails the first failInserts inserts with insertErr, or every
// insert when failInserts is negative.
type flakyStore struct {
	*store.MemoryStore

	mu          sync.Mutex
	failInserts int
	insertErr   error
	inserts     int
}

func (s *flakyStore) Insert(ctx context.Context, sh *share.Share) error {
	s.mu.Lock()
	s.inserts++
	n := s.inserts
	s.mu.Unlock()

	if s.failInserts < 0 || n <= s.failInserts {
		return s.insertErr
	}
	return s.MemoryStore.Insert(ctx, sh)
}

func (s *flakyStore) Inserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

type fixture struct {
	store   *store.MemoryStore
	fs      afero.Fs
	blobs   *blob.FSStore
	clock   *fakeClock
	manager *share.Manager
}

const blobDir = "/blobs"

func newFixture(t *testing.T, opts share.Options) *fixture {
	t.Helper()
	fsys := afero.NewMemMapFs()
	blobs, err := blob.NewFSStore(fsys, blobDir)
	require.NoError(t, err)

	f := &fixture{
		store: store.NewMemoryStore(),
		fs:    fsys,
		blobs: blobs,
		clock: newClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	opts.Now = f.clock.Now
	f.manager = share.NewManager(f.store, blobs, opts)
	return f
}

func (f *fixture) blobNames(t *testing.T) []string {
	t.Helper()
	entries, err := afero.ReadDir(f.fs, blobDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
