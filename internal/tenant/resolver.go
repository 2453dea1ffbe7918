// Package tenant implements the Tenant Resolver: given an inbound channel
// id it finds the owning Tenant, decrypts that tenant's API key on demand,
// and exposes a budget-gate passthrough to the Budget & Usage Ledger. No
// decrypted key is ever cached past the single resolution that needed it.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/loopgateway/core/internal/identity"
	"github.com/loopgateway/core/internal/secretstore"
	"github.com/loopgateway/core/internal/usage"
	"github.com/loopgateway/core/pkg/models"
)

var ErrTenantNotFound = errors.New("tenant: not found")

// Store is the persistence surface the resolver needs. A production
// deployment backs this with the teacher's storage drivers
// (internal/storage); tests and local runs can use the in-memory Store
// below.
type Store interface {
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)
	GetBindingForChannel(ctx context.Context, channelID string) (*models.ChannelBinding, error)
}

// Resolver resolves an inbound channel message to its owning Tenant,
// decrypts its credentials on demand, and exposes the budget gate.
type Resolver struct {
	store    Store
	secrets  *secretstore.Store
	ledger   *usage.Ledger
	identity identity.Store // optional; nil disables cross-channel linking

	mu sync.Mutex
}

func New(store Store, secrets *secretstore.Store, ledger *usage.Ledger, idStore identity.Store) *Resolver {
	return &Resolver{store: store, secrets: secrets, ledger: ledger, identity: idStore}
}

// ResolveForChannel maps an external channelId to its Tenant. Absence of a
// ChannelBinding row falls back to the global default tenant, per the data
// model's "absence implies default tenant" rule.
func (r *Resolver) ResolveForChannel(ctx context.Context, channelID string) (*models.Tenant, error) {
	binding, err := r.store.GetBindingForChannel(ctx, channelID)
	if err != nil && !errors.Is(err, ErrTenantNotFound) {
		return nil, fmt.Errorf("tenant: lookup binding for %q: %w", channelID, err)
	}
	if binding != nil {
		t, err := r.store.GetTenant(ctx, binding.TenantID)
		if err != nil {
			return nil, fmt.Errorf("tenant: load bound tenant %q: %w", binding.TenantID, err)
		}
		return t, nil
	}
	t, err := r.store.GetDefaultTenant(ctx)
	if err != nil {
		return nil, fmt.Errorf("tenant: load default tenant: %w", err)
	}
	return t, nil
}

// CanonicalPeer links a "channel:peerId" string to a canonical identity, so
// the same human across Telegram/Discord/Slack resolves to one tenant
// allowance rather than three. Returns peerID unchanged if identity linking
// is not configured.
func (r *Resolver) CanonicalPeer(ctx context.Context, channel, peerID string) (string, error) {
	if r.identity == nil {
		return peerID, nil
	}
	identities, _, err := r.identity.List(ctx, 1000, 0)
	if err != nil {
		return peerID, fmt.Errorf("tenant: list identities: %w", err)
	}
	want := channel + ":" + peerID
	for _, id := range identities {
		for _, linked := range id.LinkedPeers {
			if linked == want {
				return id.CanonicalID, nil
			}
		}
	}
	return peerID, nil
}

// DecryptAPIKey decrypts a tenant's stored API key. Returns an empty string
// (not an error) when the tenant has no key of its own, signalling the
// caller should fall back to the gateway-wide default provider credentials.
func (r *Resolver) DecryptAPIKey(t *models.Tenant) (string, error) {
	if len(t.EncryptedAPIKey) == 0 {
		return "", nil
	}
	key, err := r.secrets.DecryptString(t.EncryptedAPIKey)
	if err != nil {
		return "", fmt.Errorf("tenant: decrypt api key for %q: %w", t.ID, err)
	}
	return key, nil
}

// CheckBudget is a thin passthrough to the Budget & Usage Ledger, using the
// tenant's own budget fields and timezone.
func (r *Resolver) CheckBudget(t *models.Tenant) usage.BudgetResult {
	return r.ledger.CheckBudget(usage.TenantBudget{
		TenantID:          t.ID,
		DailyTokens:       t.BudgetDailyTokens,
		MonthlyTokens:     t.BudgetMonthlyTokens,
		AlertThresholdPct: t.BudgetAlertPct,
		Timezone:          t.Timezone,
	})
}

// ToolAllowed reports whether toolName is in the tenant's skill allow list.
// An empty allow list means all registered tools are permitted.
func (r *Resolver) ToolAllowed(t *models.Tenant, toolName string) bool {
	if len(t.SkillAllowList) == 0 {
		return true
	}
	for _, name := range t.SkillAllowList {
		if strings.EqualFold(name, toolName) {
			return true
		}
	}
	return false
}
