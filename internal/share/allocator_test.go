package share_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shareonair/internal/share"
)

type lookupFunc func(ctx context.Context, code string) (*share.Share, error)

func (f lookupFunc) FindByCode(ctx context.Context, code string) (*share.Share, error) {
	return f(ctx, code)
}

func TestAllocator_CodeShape(t *testing.T) {
	a := share.NewAllocator(lookupFunc(func(context.Context, string) (*share.Share, error) {
		return nil, share.ErrNotFound
	}), 0)
	assert.Equal(t, share.DefaultMaxAttempts, a.MaxAttempts())

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		code, err := a.Allocate(context.Background())
		require.NoError(t, err)
		require.Len(t, code, share.CodeLength)
		for _, r := range code {
			require.True(t, strings.ContainsRune(share.CodeAlphabet, r), "unexpected symbol %q in %s", r, code)
		}
		seen[code] = true
	}
	// 36^6 codes; a repeat in 500 draws would point at a broken source.
	assert.Greater(t, len(seen), 495)
}

func TestAllocator_ExhaustsAfterBound(t *testing.T) {
	calls := 0
	a := share.NewAllocator(lookupFunc(func(context.Context, string) (*share.Share, error) {
		calls++
		return &share.Share{}, nil
	}), 3)

	_, err := a.Allocate(context.Background())
	assert.ErrorIs(t, err, share.ErrExhaustedAttempts)
	assert.Equal(t, 3, calls)
}

func TestAllocator_RetriesUntilFree(t *testing.T) {
	calls := 0
	a := share.NewAllocator(lookupFunc(func(context.Context, string) (*share.Share, error) {
		calls++
		if calls < 3 {
			return &share.Share{}, nil
		}
		return nil, share.ErrNotFound
	}), 5)

	code, err := a.Allocate(context.Background())
	require.NoError(t, err)
	assert.Len(t, code, share.CodeLength)
	assert.Equal(t, 3, calls)
}

func TestAllocator_ProbeFailure(t *testing.T) {
	calls := 0
	a := share.NewAllocator(lookupFunc(func(context.Context, string) (*share.Share, error) {
		calls++
		return nil, share.Unavailable("find share", errors.New("connection refused"))
	}), 5)

	_, err := a.Allocate(context.Background())
	assert.ErrorIs(t, err, share.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, share.ErrExhaustedAttempts)
	assert.Equal(t, 1, calls)
}
