package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"shareonair/internal/share"
)

var _ share.Store = (*MemoryStore)(nil)

// MemoryStore keeps shares in process memory. It is meant for tests and
// single-binary development runs; everything is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*share.Share
	byCode map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[uuid.UUID]*share.Share),
		byCode: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, sh *share.Share) error {
	code := share.NormalizeCode(sh.Code)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byCode[code]; taken {
		return share.ErrDuplicateCode
	}
	cp := *sh
	cp.Code = code
	s.byID[cp.ID] = &cp
	s.byCode[code] = cp.ID
	return nil
}

func (s *MemoryStore) FindByCode(ctx context.Context, code string) (*share.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[share.NormalizeCode(code)]
	if !ok {
		return nil, share.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryStore) IncrementViews(ctx context.Context, id uuid.UUID) (*share.Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.byID[id]
	if !ok {
		return nil, share.ErrNotFound
	}
	if sh.QuotaReached() {
		return nil, share.ErrQuotaExhausted
	}
	sh.Views++
	cp := *sh
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(id)
	return nil
}

func (s *MemoryStore) deleteLocked(id uuid.UUID) {
	sh, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	if s.byCode[sh.Code] == id {
		delete(s.byCode, sh.Code)
	}
}

func (s *MemoryStore) DeleteExpiredBefore(ctx context.Context, t time.Time) ([]share.Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []share.Share
	for id, sh := range s.byID {
		if sh.ExpiresAt.Before(t) {
			removed = append(removed, *sh)
			s.deleteLocked(id)
		}
	}
	return removed, nil
}

func (s *MemoryStore) HasBlobRef(ctx context.Context, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sh := range s.byID {
		if sh.Kind == share.KindFile && sh.BlobRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Stats(ctx context.Context, now time.Time) (share.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st share.Stats
	for _, sh := range s.byID {
		if sh.ExpiresAt.After(now) {
			st.Add(sh)
		}
	}
	return st, nil
}

// SetExpiry overwrites the deadline of the share stored under code. It
// exists for tests and operators forcing a share into the past.
func (s *MemoryStore) SetExpiry(code string, expiresAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCode[share.NormalizeCode(code)]
	if !ok {
		return false
	}
	s.byID[id].ExpiresAt = expiresAt
	return true
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[uuid.UUID]*share.Share)
	s.byCode = make(map[string]uuid.UUID)
	return nil
}
