package credentials

import (
	"context"
	"sync"

	"github.com/eaglebank/bank-service/shared/utils"
)

// MemoryStore keeps hashes in a map. Used by the in-memory ledger backend
// and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	hashes map[string]string
	cost   int
}

func NewMemoryStore(cost int) *MemoryStore {
	return &MemoryStore{hashes: make(map[string]string), cost: cost}
}

func (s *MemoryStore) Exists(ctx context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.hashes[username]
	return ok, nil
}

func (s *MemoryStore) Verify(ctx context.Context, username, secret string) (bool, error) {
	s.mu.RLock()
	hash, ok := s.hashes[username]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return utils.CheckPassword(secret, hash), nil
}

func (s *MemoryStore) Register(ctx context.Context, username, secret string) error {
	hash, err := utils.HashPassword(secret, s.cost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hashes[username]; ok {
		return ErrAlreadyRegistered
	}
	s.hashes[username] = hash
	return nil
}
