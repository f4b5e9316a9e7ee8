// Package blob stores the bytes of file shares. FSStore keeps them in a
// directory of an afero filesystem; MinioStore keeps them in an
// S3-compatible bucket.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// ErrInvalidRef is returned for refs that are not a bare blob name.
var ErrInvalidRef = errors.New("invalid blob ref")

const maxExtLen = 16

// newRef returns a fresh ref that keeps a short, safe extension from the
// suggested name so downloads of the raw object stay recognisable.
func newRef(suggestedName string) string {
	return uuid.NewString() + safeExt(suggestedName)
}

func safeExt(name string) string {
	ext := path.Ext(strings.ReplaceAll(name, `\`, "/"))
	if len(ext) < 2 || len(ext) > maxExtLen {
		return ""
	}
	for _, r := range ext[1:] {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return ""
		}
	}
	return strings.ToLower(ext)
}

func validRef(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, ".") {
		return false
	}
	if strings.ContainsAny(ref, `/\`) || strings.ContainsRune(ref, 0) {
		return false
	}
	return filepath.Base(ref) == ref
}

// ctxReader stops a copy once ctx is done and remembers read failures so
// they can be told apart from write failures.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
	err error
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		c.err = err
		return 0, err
	}
	n, err := c.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		c.err = err
	}
	return n, err
}
