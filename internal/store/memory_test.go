package store

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shareonair/internal/share"
)

func newTextShare(code string, maxViews int, expiresAt time.Time) *share.Share {
	return &share.Share{
		ID:        uuid.New(),
		Code:      code,
		Kind:      share.KindText,
		Content:   "hello",
		MaxViews:  maxViews,
		CreatedAt: expiresAt.Add(-time.Hour),
		ExpiresAt: expiresAt,
	}
}

func newFileShare(code, ref string, size int64, expiresAt time.Time) *share.Share {
	return &share.Share{
		ID:        uuid.New(),
		Code:      code,
		Kind:      share.KindFile,
		BlobRef:   ref,
		FileName:  "report.pdf",
		FileSize:  size,
		MaxViews:  share.DefaultMaxViews,
		CreatedAt: expiresAt.Add(-time.Hour),
		ExpiresAt: expiresAt,
	}
}

func TestMemoryStore_InsertFind(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sh := newTextShare("ab12cd", 5, time.Now().Add(time.Hour))

	require.NoError(t, s.Insert(ctx, sh))

	got, err := s.FindByCode(ctx, "AB12CD")
	require.NoError(t, err)
	assert.Equal(t, sh.ID, got.ID)
	assert.Equal(t, "AB12CD", got.Code)

	got, err = s.FindByCode(ctx, "ab12cd")
	require.NoError(t, err)
	assert.Equal(t, sh.ID, got.ID)

	_, err = s.FindByCode(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, share.ErrNotFound)
}

func TestMemoryStore_FindReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Insert(ctx, newTextShare("COPY01", 5, time.Now().Add(time.Hour))))

	got, err := s.FindByCode(ctx, "COPY01")
	require.NoError(t, err)
	got.Views = 99

	again, err := s.FindByCode(ctx, "COPY01")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Views)
}

func TestMemoryStore_DuplicateCode(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, s.Insert(ctx, newTextShare("DUP123", 5, exp)))
	err := s.Insert(ctx, newTextShare("dup123", 5, exp))
	assert.ErrorIs(t, err, share.ErrDuplicateCode)
}

func TestMemoryStore_IncrementViewsQuota(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sh := newTextShare("QUOTA1", 2, time.Now().Add(time.Hour))
	require.NoError(t, s.Insert(ctx, sh))

	got, err := s.IncrementViews(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Views)

	got, err = s.IncrementViews(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Views)

	_, err = s.IncrementViews(ctx, sh.ID)
	assert.ErrorIs(t, err, share.ErrQuotaExhausted)

	_, err = s.IncrementViews(ctx, uuid.New())
	assert.ErrorIs(t, err, share.ErrNotFound)
}

func TestMemoryStore_ConcurrentIncrement(t *testing.T) {
	const n = 50
	ctx := context.Background()
	s := NewMemoryStore()
	sh := newTextShare("RACE01", n, time.Now().Add(time.Hour))
	require.NoError(t, s.Insert(ctx, sh))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		views []int
	)
	for i := 0; i < n+10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.IncrementViews(ctx, sh.ID)
			if err != nil {
				return
			}
			mu.Lock()
			views = append(views, got.Views)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, views, n)
	sort.Ints(views)
	for i, v := range views {
		assert.Equal(t, i+1, v)
	}

	final, err := s.FindByCode(ctx, "RACE01")
	require.NoError(t, err)
	assert.Equal(t, n, final.Views)
}

func TestMemoryStore_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sh := newTextShare("DEL001", 5, time.Now().Add(time.Hour))
	require.NoError(t, s.Insert(ctx, sh))

	require.NoError(t, s.Delete(ctx, sh.ID))
	require.NoError(t, s.Delete(ctx, sh.ID))

	_, err := s.FindByCode(ctx, "DEL001")
	assert.ErrorIs(t, err, share.ErrNotFound)

	// The code is free again.
	require.NoError(t, s.Insert(ctx, newTextShare("DEL001", 5, time.Now().Add(time.Hour))))
}

func TestMemoryStore_DeleteExpiredBefore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	require.NoError(t, s.Insert(ctx, newTextShare("OLD001", 5, now.Add(-time.Minute))))
	require.NoError(t, s.Insert(ctx, newFileShare("OLD002", "a.bin", 10, now.Add(-time.Second))))
	require.NoError(t, s.Insert(ctx, newTextShare("NEW001", 5, now.Add(time.Hour))))

	removed, err := s.DeleteExpiredBefore(ctx, now)
	require.NoError(t, err)
	require.Len(t, removed, 2)

	codes := []string{removed[0].Code, removed[1].Code}
	assert.ElementsMatch(t, []string{"OLD001", "OLD002"}, codes)

	_, err = s.FindByCode(ctx, "NEW001")
	assert.NoError(t, err)

	removed, err = s.DeleteExpiredBefore(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestMemoryStore_HasBlobRef(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Insert(ctx, newFileShare("FILE01", "blob-1.txt", 3, time.Now().Add(time.Hour))))

	ok, err := s.HasBlobRef(ctx, "blob-1.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasBlobRef(ctx, "blob-2.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	text := newTextShare("TEXT01", 5, now.Add(time.Hour))
	require.NoError(t, s.Insert(ctx, text))
	require.NoError(t, s.Insert(ctx, newFileShare("FILE01", "a.bin", 100, now.Add(time.Hour))))
	require.NoError(t, s.Insert(ctx, newFileShare("FILE02", "b.bin", 50, now.Add(-time.Hour))))

	_, err := s.IncrementViews(ctx, text.ID)
	require.NoError(t, err)

	st, err := s.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, share.Stats{
		TotalShares:        2,
		TextShares:         1,
		FileShares:         1,
		TotalViews:         1,
		TotalFileSizeBytes: 100,
	}, st)
}

func TestMemoryStore_SetExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Insert(ctx, newTextShare("EXP001", 5, time.Now().Add(time.Hour))))

	past := time.Now().Add(-time.Hour)
	assert.True(t, s.SetExpiry("exp001", past))
	assert.False(t, s.SetExpiry("NOPE00", past))

	got, err := s.FindByCode(ctx, "EXP001")
	require.NoError(t, err)
	assert.True(t, got.ExpiredAt(time.Now()))
}
