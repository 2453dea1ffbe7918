package tenant

import (
	"context"
	"sync"

	"github.com/loopgateway/core/pkg/models"
)

// MemoryStore is an in-memory Store, used in tests and single-node
// deployments that do not need the teacher's cockroach-backed persistence.
type MemoryStore struct {
	mu            sync.RWMutex
	tenants       map[string]*models.Tenant
	bindings      map[string]*models.ChannelBinding
	defaultTenant string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:  make(map[string]*models.Tenant),
		bindings: make(map[string]*models.ChannelBinding),
	}
}

func (s *MemoryStore) PutTenant(t *models.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

func (s *MemoryStore) SetDefaultTenant(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultTenant = tenantID
}

func (s *MemoryStore) BindChannel(channelID, tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[channelID] = &models.ChannelBinding{ChannelID: channelID, TenantID: tenantID}
}

func (s *MemoryStore) GetTenant(_ context.Context, tenantID string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

func (s *MemoryStore) GetDefaultTenant(ctx context.Context) (*models.Tenant, error) {
	s.mu.RLock()
	id := s.defaultTenant
	s.mu.RUnlock()
	if id == "" {
		return nil, ErrTenantNotFound
	}
	return s.GetTenant(ctx, id)
}

func (s *MemoryStore) GetBindingForChannel(_ context.Context, channelID string) (*models.ChannelBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[channelID]
	if !ok {
		return nil, nil
	}
	return b, nil
}
