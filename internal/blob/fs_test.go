package blob

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shareonair/internal/share"
)

func newTestFSStore(t *testing.T) (*FSStore, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	s, err := NewFSStore(fsys, "/data/uploads")
	require.NoError(t, err)
	return s, fsys
}

func TestFSStore_PutOpenRemove(t *testing.T) {
	ctx := context.Background()
	s, fsys := newTestFSStore(t)

	ref, size, err := s.Put(ctx, strings.NewReader("hello world"), "Report.PDF")
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)
	assert.True(t, strings.HasSuffix(ref, ".pdf"), ref)

	// No leftover temp file.
	_, err = fsys.Stat(filepath.Join("/data/uploads", ref+partSuffix))
	assert.Error(t, err)

	ok, err := s.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Open(ctx, ref)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello world", string(b))

	require.NoError(t, s.Remove(ctx, ref))
	require.NoError(t, s.Remove(ctx, ref))

	ok, err = s.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Open(ctx, ref)
	assert.ErrorIs(t, err, share.ErrBlobNotFound)
}

func TestFSStore_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	s, fsys := newTestFSStore(t)
	require.NoError(t, afero.WriteFile(fsys, "/data/secret", []byte("x"), 0o600))

	for _, ref := range []string{"../secret", "/data/secret", `..\secret`, "", ".hidden"} {
		ok, err := s.Exists(ctx, ref)
		require.NoError(t, err)
		assert.False(t, ok, ref)

		_, err = s.Open(ctx, ref)
		assert.ErrorIs(t, err, share.ErrBlobNotFound, ref)

		assert.ErrorIs(t, s.Remove(ctx, ref), ErrInvalidRef, ref)
	}

	ok, err := afero.Exists(fsys, "/data/secret")
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestFSStore_PutReadErrorLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s, fsys := newTestFSStore(t)

	_, _, err := s.Put(ctx, failingReader{}, "a.txt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, share.ErrStorageUnavailable)

	entries, err := afero.ReadDir(fsys, "/data/uploads")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFSStore_PutCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, _ := newTestFSStore(t)

	_, _, err := s.Put(ctx, strings.NewReader("data"), "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFSStore_List(t *testing.T) {
	ctx := context.Background()
	s, fsys := newTestFSStore(t)

	oldRef, _, err := s.Put(ctx, strings.NewReader("old"), "old.bin")
	require.NoError(t, err)
	newRef, _, err := s.Put(ctx, strings.NewReader("new"), "new.bin")
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, fsys.Chtimes(filepath.Join("/data/uploads", oldRef), past, past))
	require.NoError(t, afero.WriteFile(fsys, "/data/uploads/stale.bin.part", []byte("x"), 0o600))
	require.NoError(t, fsys.Chtimes("/data/uploads/stale.bin.part", past, past))

	refs, err := s.List(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{oldRef, "stale.bin.part"}, refs)
	assert.NotContains(t, refs, newRef)
}

func TestFSStore_Ping(t *testing.T) {
	s, fsys := newTestFSStore(t)
	require.NoError(t, s.Ping(context.Background()))

	require.NoError(t, fsys.RemoveAll("/data/uploads"))
	assert.ErrorIs(t, s.Ping(context.Background()), share.ErrStorageUnavailable)
}
