package a2a

import (
	"context"
	"fmt"
	"sync"

	"github.com/loopgateway/core/pkg/models"
)

// MemoryStore is an in-memory Store for tests and single-node deployments.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]models.A2AMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]models.A2AMessage)}
}

func (s *MemoryStore) Create(_ context.Context, msg *models.A2AMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[msg.ID] = *msg
	return nil
}

func (s *MemoryStore) Update(_ context.Context, msg *models.A2AMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[msg.ID] = *msg
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.A2AMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("a2a: unknown message id %q", id)
	}
	return &row, nil
}
