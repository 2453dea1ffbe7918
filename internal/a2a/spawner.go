package a2a

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/loopgateway/core/pkg/models"
)

// Error kinds, surfaced per spec §7.
const (
	KindUnknownRole = "UnknownRole"
	KindRoleCapacity = "RoleCapacity"
)

type UnknownRoleError struct {
	Role models.AgentRole
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("a2a: unknown role %q", e.Role)
}

type RoleCapacityError struct {
	Role          models.AgentRole
	MaxConcurrent int
}

func (e *RoleCapacityError) Error() string {
	return fmt.Sprintf("a2a: role %q is at capacity (max %d concurrent)", e.Role, e.MaxConcurrent)
}

// SubAgentRunner executes one sub-agent loop invocation (spec §4.6 variant
// with role prompt, role-restricted tools, iteration cap 10) and returns
// its final text. Implemented by internal/agent; kept as a function type
// here so a2a has no dependency on agent (it is the other direction).
type SubAgentRunner func(ctx context.Context, identity models.AgentIdentity, task string, taskContext map[string]any) (string, error)

// Spawner is the spec §4.7 A2A Bus spawner role: delegate_task handling,
// backed by a fixed RoleSpec catalog and per-(tenant,role) concurrency caps.
type Spawner struct {
	fabric *Fabric
	roles  map[models.AgentRole]models.RoleSpec
	runner SubAgentRunner

	mu     sync.Mutex
	active map[string]int
}

func NewSpawner(fabric *Fabric, roles []models.RoleSpec, runner SubAgentRunner) *Spawner {
	catalog := make(map[models.AgentRole]models.RoleSpec, len(roles))
	for _, r := range roles {
		catalog[r.ID] = r
	}
	return &Spawner{fabric: fabric, roles: catalog, runner: runner, active: make(map[string]int)}
}

func activeKey(tenantID string, role models.AgentRole) string {
	return tenantID + ":" + string(role)
}

// ActiveCount reports the number of currently registered sub-agents for
// (tenantID, role) — the invariant spec §8 requires callers be able to
// check: "count of currently registered agents ≤ RoleSpec(role).maxConcurrent".
func (s *Spawner) ActiveCount(tenantID string, role models.AgentRole) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[activeKey(tenantID, role)]
}

// DelegateTask implements delegate_task(role, task, context?): validates
// the role, enforces the per-(tenant,role) concurrency cap, runs the
// sub-agent loop, and mirrors an audit A2AMessage request/response pair.
func (s *Spawner) DelegateTask(ctx context.Context, parent models.AgentIdentity, role models.AgentRole, task string, taskContext map[string]any) (string, error) {
	spec, ok := s.roles[role]
	if !ok {
		return "", &UnknownRoleError{Role: role}
	}

	key := activeKey(parent.TenantID, role)
	s.mu.Lock()
	if spec.MaxConcurrent > 0 && s.active[key] >= spec.MaxConcurrent {
		s.mu.Unlock()
		return "", &RoleCapacityError{Role: role, MaxConcurrent: spec.MaxConcurrent}
	}
	s.active[key]++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active[key]--
		s.mu.Unlock()
	}()

	identity := models.AgentIdentity{
		ID:           uuid.NewString(),
		Role:         role,
		TenantID:     parent.TenantID,
		Capabilities: spec.AllowedTools,
	}

	if err := s.fabric.RegisterAgent(identity, func(context.Context, models.A2AMessage) {}); err != nil {
		return "", fmt.Errorf("a2a: register sub-agent: %w", err)
	}
	defer s.fabric.UnregisterAgent(identity.ID)

	if _, err := s.fabric.Send(ctx, models.A2AMessage{
		Kind:    models.A2AKindRequest,
		From:    parent,
		To:      identity.ID,
		Action:  "delegate_task",
		Content: task,
	}); err != nil {
		return "", fmt.Errorf("a2a: send delegate request: %w", err)
	}

	text, err := s.runner(ctx, identity, task, taskContext)
	if err != nil {
		return "", err
	}

	// Audit mirror: the parent's A2A log gets a response from the sub-agent
	// with the same final text (spec §8 scenario 2). replyTo is deliberately
	// left unset — this is an audit record, not a requestAndWait resolution.
	_, _ = s.fabric.Send(ctx, models.A2AMessage{
		Kind:    models.A2AKindResponse,
		From:    identity,
		To:      parent.ID,
		Content: text,
	})

	return text, nil
}
