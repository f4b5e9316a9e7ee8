package share

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxAttempts bounds how many codes Allocate probes before giving up.
const DefaultMaxAttempts = 10

// codeLookup is the part of Store the allocator probes.
type codeLookup interface {
	FindByCode(ctx context.Context, code string) (*Share, error)
}

// Allocator draws random codes and checks them against the store. The check
// is not a reservation: Store.Insert remains the uniqueness gate.
type Allocator struct {
	lookup      codeLookup
	maxAttempts int
	random      io.Reader
}

// NewAllocator returns an allocator probing lookup at most maxAttempts
// times per call. A non-positive maxAttempts selects DefaultMaxAttempts.
func NewAllocator(lookup codeLookup, maxAttempts int) *Allocator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{lookup: lookup, maxAttempts: maxAttempts, random: rand.Reader}
}

// MaxAttempts returns the configured probe bound.
func (a *Allocator) MaxAttempts() int {
	return a.maxAttempts
}

// Allocate returns a code no stored share currently uses.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		code, err := a.draw()
		if err != nil {
			return "", err
		}
		_, err = a.lookup.FindByCode(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("probe code: %w", err)
		}
	}
	return "", ErrExhaustedAttempts
}

// draw picks CodeLength symbols uniformly from CodeAlphabet. Bytes at or
// above the largest multiple of the alphabet size are rejected.
func (a *Allocator) draw() (string, error) {
	const n = len(CodeAlphabet)
	const limit = 256 - 256%n

	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(out) < CodeLength {
		if _, err := io.ReadFull(a.random, buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, CodeAlphabet[int(b)%n])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}
