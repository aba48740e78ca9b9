package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store useful for tests and for running
// without a database.

type MemoryStore struct {
	mu    sync.Mutex
	users map[string]StaffUser // keyed by CRM user ID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: map[string]StaffUser{}}
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]StaffUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StaffUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, u StaffUser) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.CRMUserID]
	if ok {
		u.ID = existing.ID
		s.users[u.CRMUserID] = u
		return false, nil
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.CRMUserID] = u
	return true, nil
}
