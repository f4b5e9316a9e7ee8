package share

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Store is the persistent set of share records keyed by code.
//
// Implementations must enforce code uniqueness on Insert and make
// IncrementViews a single atomic conditional update. Backend failures are
// reported wrapped with ErrStorageUnavailable.
type Store interface {
	// Insert stores a new share. It returns ErrDuplicateCode when a share
	// with the same code already exists.
	Insert(ctx context.Context, s *Share) error

	// FindByCode returns the share stored under code (case-insensitive)
	// regardless of its expiry, or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Share, error)

	// IncrementViews adds one view and returns the updated share. It fails
	// with ErrNotFound when the record is gone and with ErrQuotaExhausted
	// when views already reached maxViews.
	IncrementViews(ctx context.Context, id uuid.UUID) (*Share, error)

	// Delete removes a share. Deleting a missing share is not an error.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteExpiredBefore removes every share whose deadline is before t
	// and returns the removed records.
	DeleteExpiredBefore(ctx context.Context, t time.Time) ([]Share, error)

	// HasBlobRef reports whether any stored share references ref.
	HasBlobRef(ctx context.Context, ref string) (bool, error)

	// Stats aggregates shares with ExpiresAt after now.
	Stats(ctx context.Context, now time.Time) (Stats, error)

	Ping(ctx context.Context) error
	Close() error
}

// BlobStore holds the bytes of file shares.
type BlobStore interface {
	// Put stores the bytes read from r and returns the chosen reference and
	// the number of bytes written. suggestedName only influences the ref.
	Put(ctx context.Context, r io.Reader, suggestedName string) (ref string, size int64, err error)

	Exists(ctx context.Context, ref string) (bool, error)

	// Remove deletes a blob. Removing a missing blob is not an error.
	Remove(ctx context.Context, ref string) error

	// Open returns a reader over the blob, or ErrBlobNotFound.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// List returns the refs of blobs last modified before olderThan.
	List(ctx context.Context, olderThan time.Time) ([]string, error)

	Ping(ctx context.Context) error
}
