package share

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shareonair/internal/metrics"
)

// Options tunes a Manager. Zero values select the documented defaults.
type Options struct {
	DefaultTTL      time.Duration // 7 days
	MaxTTL          time.Duration // no ceiling when zero
	DefaultMaxViews int           // 100
	MaxViewsCeiling int           // no ceiling when zero
	MaxAttempts     int           // 10

	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Manager orchestrates creation, retrieval, download and lazy deletion of
// shares. It holds no locks; consistency comes from the Store.
type Manager struct {
	store   Store
	blobs   BlobStore
	alloc   *Allocator
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewManager wires a Manager over store and blobs.
func NewManager(store Store, blobs BlobStore, opts Options) *Manager {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.DefaultMaxViews <= 0 {
		opts.DefaultMaxViews = DefaultMaxViews
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		blobs:   blobs,
		alloc:   NewAllocator(store, opts.MaxAttempts),
		opts:    opts,
		log:     opts.Logger.With(zap.String("service", "lifecycle")),
		metrics: opts.Metrics,
	}
}

// CreateRequest carries the payload of a new share.
type CreateRequest struct {
	Kind Kind

	// Text shares.
	Content string

	// File shares.
	FileName string
	File     io.Reader

	// Optional overrides, clamped to the configured ceilings.
	MaxViews int
	TTL      time.Duration
}

// Create validates the request, stores the file bytes (if any) and inserts
// the record under a freshly allocated code.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Share, error) {
	if !req.Kind.Valid() {
		return nil, &ValidationError{Field: "type", Message: `invalid or missing type. Must be "text" or "file"`}
	}

	now := m.now()
	sh := &Share{
		ID:        uuid.New(),
		Kind:      req.Kind,
		MaxViews:  clamp(req.MaxViews, m.opts.DefaultMaxViews, m.opts.MaxViewsCeiling),
		CreatedAt: now,
		ExpiresAt: now.Add(clampDuration(req.TTL, m.opts.DefaultTTL, m.opts.MaxTTL)),
	}

	var name string
	switch req.Kind {
	case KindText:
		sh.Content = strings.TrimSpace(req.Content)
		if sh.Content == "" {
			return nil, &ValidationError{Field: "content", Message: "text content is required and cannot be empty"}
		}
	case KindFile:
		name = strings.TrimSpace(req.FileName)
		if req.File == nil || name == "" {
			return nil, &ValidationError{Field: "file", Message: "file is required for file upload"}
		}
	}

	code, err := m.alloc.Allocate(ctx)
	if err != nil {
		return nil, err
	}
	sh.Code = code

	if sh.Kind == KindFile {
		ref, size, err := m.blobs.Put(ctx, req.File, name)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			m.removeBlob(ctx, ref, "empty_upload")
			return nil, &ValidationError{Field: "file", Message: "uploaded file is empty"}
		}
		sh.BlobRef = ref
		sh.FileName = SanitizeFilename(name)
		sh.FileSize = size
	}

	if err := m.insert(ctx, sh); err != nil {
		if sh.Kind == KindFile {
			m.removeBlob(ctx, sh.BlobRef, "insert_failed")
		}
		return nil, err
	}

	m.log.Info("share_created",
		zap.String("code", sh.Code),
		zap.String("kind", string(sh.Kind)),
		zap.Int64("bytes", sh.FileSize),
		zap.Time("expires_at", sh.ExpiresAt))
	m.metrics.RecordCreate(string(sh.Kind), sh.FileSize)
	return sh, nil
}

// insert stores sh, drawing a new code each time the store reports the
// current one as taken, for at most the allocator's attempt bound.
func (m *Manager) insert(ctx context.Context, sh *Share) error {
	if err := sh.Validate(); err != nil {
		return err
	}
	for attempt := 1; ; attempt++ {
		err := m.store.Insert(ctx, sh)
		if !errors.Is(err, ErrDuplicateCode) {
			return err
		}
		m.log.Warn("code_collision", zap.String("code", sh.Code), zap.Int("attempt", attempt))
		if attempt >= m.alloc.MaxAttempts() {
			return ErrExhaustedAttempts
		}
		code, err := m.alloc.Allocate(ctx)
		if err != nil {
			return err
		}
		sh.Code = code
	}
}

// Retrieve returns the share behind code after charging one view. It is
// the access path for both text content and file metadata.
func (m *Manager) Retrieve(ctx context.Context, code string) (*Share, error) {
	sh, err := m.retrieve(ctx, code)
	m.metrics.RecordAccess("retrieve", Outcome(err))
	return sh, err
}

func (m *Manager) retrieve(ctx context.Context, code string) (*Share, error) {
	sh, err := m.lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	if sh.ExpiredAt(m.now()) {
		m.destroy(ctx, sh, "expired")
		return nil, ErrExpired
	}

	// Quota is terminal but not destructive: the record stays.
	if sh.QuotaReached() {
		return nil, ErrQuotaExhausted
	}

	if sh.Kind == KindFile {
		ok, err := m.blobs.Exists(ctx, sh.BlobRef)
		if err != nil {
			return nil, err
		}
		if !ok {
			m.destroy(ctx, sh, "blob_missing")
			return nil, ErrNotFound
		}
	}

	return m.store.IncrementViews(ctx, sh.ID)
}

// Download describes an open file share. Body must be closed by the caller.
type Download struct {
	Share *Share
	Body  io.ReadCloser
}

// Download opens the bytes of a file share. Downloads are not counted as
// views and ignore the view quota.
func (m *Manager) Download(ctx context.Context, code string) (*Download, error) {
	d, err := m.download(ctx, code)
	m.metrics.RecordAccess("download", Outcome(err))
	return d, err
}

func (m *Manager) download(ctx context.Context, code string) (*Download, error) {
	sh, err := m.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if sh.Kind != KindFile {
		return nil, ErrNotFound
	}

	if sh.ExpiredAt(m.now()) {
		m.destroy(ctx, sh, "expired")
		return nil, ErrExpired
	}

	body, err := m.blobs.Open(ctx, sh.BlobRef)
	if errors.Is(err, ErrBlobNotFound) {
		m.destroy(ctx, sh, "blob_missing")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Download{Share: sh, Body: body}, nil
}

// Stats aggregates the shares that are not yet expired.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	return m.store.Stats(ctx, m.now())
}

func (m *Manager) lookup(ctx context.Context, code string) (*Share, error) {
	if utf8.RuneCountInString(code) != CodeLength {
		return nil, ErrInvalidCodeFormat
	}
	return m.store.FindByCode(ctx, NormalizeCode(code))
}

// destroy deletes the record first and the blob second. Both steps are
// best effort; leftovers are collected by the reaper.
func (m *Manager) destroy(ctx context.Context, sh *Share, reason string) {
	ctx = context.WithoutCancel(ctx)
	if err := m.store.Delete(ctx, sh.ID); err != nil {
		m.log.Warn("lazy_delete_failed", zap.String("code", sh.Code), zap.String("reason", reason), zap.Error(err))
		return
	}
	m.log.Info("lazy_delete", zap.String("code", sh.Code), zap.String("reason", reason))
	if sh.Kind == KindFile {
		m.removeBlob(ctx, sh.BlobRef, reason)
	}
}

func (m *Manager) removeBlob(ctx context.Context, ref, reason string) {
	if err := m.blobs.Remove(context.WithoutCancel(ctx), ref); err != nil {
		m.log.Warn("blob_remove_failed", zap.String("ref", ref), zap.String("reason", reason), zap.Error(err))
	}
}

func (m *Manager) now() time.Time {
	return m.opts.Now().UTC()
}

// Outcome maps an access error to a short metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidCodeFormat):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrQuotaExhausted):
		return "quota"
	default:
		return "error"
	}
}

func clamp(val, def, ceiling int) int {
	if val <= 0 {
		return def
	}
	if ceiling > 0 && val > ceiling {
		return ceiling
	}
	return val
}

func clampDuration(val, def, ceiling time.Duration) time.Duration {
	if val <= 0 {
		return def
	}
	if ceiling > 0 && val > ceiling {
		return ceiling
	}
	return val
}
