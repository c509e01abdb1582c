package store

import (
	"context"
	"sort"
	"sync"

	"github.com/nutrimama/nutrimama/internal/domain"
)

// MemoryStore keeps encoded profiles in process memory. Profiles go through
// the same codec as the durable stores, so callers never share pointers with
// it.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]record
}

type record struct {
	belief []byte
	memory []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]record)}
}

func (s *MemoryStore) Load(ctx context.Context, userID string) (*domain.Profile, error) {
	s.mu.RLock()
	rec, ok := s.profiles[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeProfile(rec.belief, rec.memory)
}

func (s *MemoryStore) Save(ctx context.Context, p *domain.Profile) error {
	belief, memory, err := encodeProfile(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.profiles[p.Belief.UserID] = record{belief: belief, memory: memory}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

var _ domain.ProfileStore = (*MemoryStore)(nil)
