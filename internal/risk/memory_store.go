package risk

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mbd888/safescore/internal/pagination"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string][]*WalletAssessment // address -> oldest first
}

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: make(map[string][]*WalletAssessment),
	}
}

func (s *MemoryStore) Record(ctx context.Context, a *WalletAssessment) error {
	cp, err := clone(a)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[a.Address] = append(s.assessments[a.Address], cp)
	return nil
}

func (s *MemoryStore) ListByAddress(ctx context.Context, address string, before *pagination.Cursor, limit int) ([]*WalletAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.assessments[address]
	var result []*WalletAssessment
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		if !before.After(all[i].AssessedAt, all[i].ID) {
			continue
		}
		cp, err := clone(all[i])
		if err != nil {
			return nil, err
		}
		result = append(result, cp)
	}
	return result, nil
}

func (s *MemoryStore) Latest(ctx context.Context, address string) (*WalletAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.assessments[address]
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	return clone(all[len(all)-1])
}

// clone deep-copies through JSON; the nested assessment holds maps and slices.
func clone(a *WalletAssessment) (*WalletAssessment, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var out WalletAssessment
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
