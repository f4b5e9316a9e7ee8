// Package share implements the lifecycle of a share: allocation of short
// codes, creation of text and file shares, view-counted retrieval with lazy
// expiry, uncounted downloads and the periodic reaper. Storage of metadata
// and file bytes is delegated to the Store and BlobStore contracts, which
// live in this package and are implemented by internal/store and
// internal/blob.
package share

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the variant tag of a share.
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindText || k == KindFile
}

const (
	// CodeLength is the number of symbols in a share code.
	CodeLength = 6

	// CodeAlphabet holds the symbols codes are drawn from.
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	DefaultMaxViews = 100
	DefaultTTL      = 7 * 24 * time.Hour
)

// Share is one stored unit of shared content addressed by a code.
type Share struct {
	ID   uuid.UUID
	Code string
	Kind Kind

	// Text shares.
	Content string

	// File shares.
	BlobRef  string
	FileName string
	FileSize int64

	Views     int
	MaxViews  int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ExpiredAt reports whether the share's soft deadline has passed at now.
func (s *Share) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// QuotaReached reports whether no further views may be served.
func (s *Share) QuotaReached() bool {
	return s.Views >= s.MaxViews
}

// Validate checks the kind/payload exclusivity and the counters.
func (s *Share) Validate() error {
	if len(s.Code) != CodeLength {
		return &ValidationError{Field: "code", Message: "code must be 6 characters"}
	}
	switch s.Kind {
	case KindText:
		if strings.TrimSpace(s.Content) == "" {
			return &ValidationError{Field: "content", Message: "text content is required and cannot be empty"}
		}
		if s.BlobRef != "" || s.FileName != "" || s.FileSize != 0 {
			return &ValidationError{Field: "kind", Message: "text share must not carry file fields"}
		}
	case KindFile:
		if s.BlobRef == "" || s.FileName == "" || s.FileSize <= 0 {
			return &ValidationError{Field: "file", Message: "file share requires blob, name and size"}
		}
		if s.Content != "" {
			return &ValidationError{Field: "kind", Message: "file share must not carry text content"}
		}
	default:
		return &ValidationError{Field: "type", Message: `invalid or missing type. Must be "text" or "file"`}
	}
	if s.Views < 0 {
		return &ValidationError{Field: "views", Message: "views must not be negative"}
	}
	if s.MaxViews < 1 {
		return &ValidationError{Field: "maxViews", Message: "maxViews must be positive"}
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return &ValidationError{Field: "expiresAt", Message: "expiry must be after creation"}
	}
	return nil
}

// NormalizeCode returns the canonical upper-case form of a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(code)
}

// Stats aggregates the shares that have not yet expired.
type Stats struct {
	TotalShares        int64 `json:"totalShares"`
	TextShares         int64 `json:"textShares"`
	FileShares         int64 `json:"fileShares"`
	TotalViews         int64 `json:"totalViews"`
	TotalFileSizeBytes int64 `json:"totalFileSizeBytes"`
}

// Add folds s into the aggregate.
func (st *Stats) Add(s *Share) {
	st.TotalShares++
	st.TotalViews += int64(s.Views)
	switch s.Kind {
	case KindText:
		st.TextShares++
	case KindFile:
		st.FileShares++
		st.TotalFileSizeBytes += s.FileSize
	}
}
