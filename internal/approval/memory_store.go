package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/loopgateway/core/pkg/models"
)

// MemoryStore is an in-memory Store for tests and single-node deployments.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]models.PendingApproval
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]models.PendingApproval)}
}

func (s *MemoryStore) Create(_ context.Context, a *models.PendingApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[a.ID] = *a
	return nil
}

func (s *MemoryStore) Update(_ context.Context, a *models.PendingApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[a.ID]; !ok {
		return fmt.Errorf("approval: unknown id %q", a.ID)
	}
	s.rows[a.ID] = *a
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("approval: unknown id %q", id)
	}
	return &row, nil
}
