package webhook

import (
	"context"
	"fmt"
	"sync"

	"github.com/loopgateway/core/pkg/models"
)

// MemoryStore keeps WebhookRegistrations in memory, for tests and
// single-node runs.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*models.WebhookRegistration
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*models.WebhookRegistration)}
}

func cloneRegistration(reg *models.WebhookRegistration) *models.WebhookRegistration {
	if reg == nil {
		return nil
	}
	clone := *reg
	clone.SubscribedEvents = append([]string(nil), reg.SubscribedEvents...)
	return &clone
}

func (s *MemoryStore) CreateRegistration(ctx context.Context, reg *models.WebhookRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg.ID == "" {
		return fmt.Errorf("webhook registration id is required")
	}
	if _, exists := s.byID[reg.ID]; exists {
		return fmt.Errorf("webhook registration %q already exists", reg.ID)
	}
	s.byID[reg.ID] = cloneRegistration(reg)
	return nil
}

func (s *MemoryStore) GetRegistration(ctx context.Context, id string) (*models.WebhookRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("webhook registration %q not found", id)
	}
	return cloneRegistration(reg), nil
}

func (s *MemoryStore) GetByToken(ctx context.Context, token string) (*models.WebhookRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, reg := range s.byID {
		if reg.Token == token {
			return cloneRegistration(reg), nil
		}
	}
	return nil, fmt.Errorf("webhook registration not found for token")
}

func (s *MemoryStore) ListRegistrations(ctx context.Context) ([]*models.WebhookRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.WebhookRegistration, 0, len(s.byID))
	for _, reg := range s.byID {
		out = append(out, cloneRegistration(reg))
	}
	return out, nil
}

func (s *MemoryStore) UpdateRegistration(ctx context.Context, reg *models.WebhookRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[reg.ID]; !exists {
		return fmt.Errorf("webhook registration %q not found", reg.ID)
	}
	s.byID[reg.ID] = cloneRegistration(reg)
	return nil
}

func (s *MemoryStore) DeleteRegistration(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}
