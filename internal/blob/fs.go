package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"shareonair/internal/share"
)

var _ share.BlobStore = (*FSStore)(nil)

const partSuffix = ".part"

// FSStore keeps blobs as flat files in one directory. Bytes are written to
// "<ref>.part" and renamed into place, so a ref never names a partial file.
type FSStore struct {
	fs  afero.Fs
	dir string
}

// NewFSStore creates dir on fsys if needed.
func NewFSStore(fsys afero.Fs, dir string) (*FSStore, error) {
	if dir == "" {
		return nil, errors.New("blob dir is empty")
	}
	if err := fsys.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSStore{fs: fsys, dir: dir}, nil
}

func (s *FSStore) path(ref string) string {
	return filepath.Join(s.dir, ref)
}

func (s *FSStore) Put(ctx context.Context, r io.Reader, suggestedName string) (string, int64, error) {
	ref := newRef(suggestedName)
	tmp := s.path(ref) + partSuffix

	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, share.Unavailable("create blob", err)
	}

	src := &ctxReader{ctx: ctx, r: r}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil {
		_ = s.fs.Remove(tmp)
		if src.err != nil {
			return "", 0, fmt.Errorf("read upload: %w", src.err)
		}
		return "", 0, share.Unavailable("write blob", errors.Join(copyErr, closeErr))
	}

	if err := s.fs.Rename(tmp, s.path(ref)); err != nil {
		_ = s.fs.Remove(tmp)
		return "", 0, share.Unavailable("commit blob", err)
	}
	return ref, n, nil
}

func (s *FSStore) Exists(ctx context.Context, ref string) (bool, error) {
	if !validRef(ref) {
		return false, nil
	}
	fi, err := s.fs.Stat(s.path(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, share.Unavailable("stat blob", err)
	}
	return fi.Mode().IsRegular(), nil
}

func (s *FSStore) Remove(ctx context.Context, ref string) error {
	if !validRef(ref) {
		return ErrInvalidRef
	}
	err := s.fs.Remove(s.path(ref))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return share.Unavailable("remove blob", err)
	}
	return nil
}

func (s *FSStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if !validRef(ref) {
		return nil, share.ErrBlobNotFound
	}
	f, err := s.fs.Open(s.path(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, share.ErrBlobNotFound
	}
	if err != nil {
		return nil, share.Unavailable("open blob", err)
	}
	return f, nil
}

// List includes abandoned ".part" files so the reaper can collect them.
func (s *FSStore) List(ctx context.Context, olderThan time.Time) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, share.Unavailable("list blobs", err)
	}
	var refs []string
	for _, fi := range entries {
		if !fi.Mode().IsRegular() || strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		if fi.ModTime().Before(olderThan) {
			refs = append(refs, fi.Name())
		}
	}
	sort.Strings(refs)
	return refs, nil
}

func (s *FSStore) Ping(ctx context.Context) error {
	fi, err := s.fs.Stat(s.dir)
	if err != nil {
		return share.Unavailable("stat blob dir", err)
	}
	if !fi.IsDir() {
		return share.Unavailable("stat blob dir", fmt.Errorf("%s is not a directory", s.dir))
	}
	return nil
}
