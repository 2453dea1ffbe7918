// Package approval implements the Approval Broker: the human-in-the-loop
// gate that blocks a tool call behind a pending→approved|rejected|timeout
// state machine (spec §4.4).
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loopgateway/core/pkg/models"
)

// Event names emitted on the broker's EventSink, matching the Webhook
// Fabric's known-events catalog (spec §4.11).
const (
	EventApprovalRequired = "approval:required"
	EventApprovalResolved = "approval:resolved"
)

// Error kinds, surfaced per spec §7.
const (
	KindApprovalRejected = "ApprovalRejected"
	KindApprovalTimeout  = "ApprovalTimeout"
)

// RejectedError is returned when an operator rejects a pending approval, or
// when onTimeout resolves to "reject".
type RejectedError struct {
	ApprovalID string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("approval %s rejected", e.ApprovalID)
}

// TimeoutError is returned when a pending approval's timer expires. It is
// distinct from RejectedError even when OnTimeout is "reject", since
// callers (and PendingApproval.Status) need to distinguish an explicit
// operator rejection from an unattended expiry.
type TimeoutError struct {
	ApprovalID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("approval %s timed out", e.ApprovalID)
}

// EventSink receives broker lifecycle events. Implementations must not
// block; the broker invokes it synchronously from whichever goroutine
// caused the transition.
type EventSink func(event string, approval models.PendingApproval)

// Store persists PendingApproval rows. MemoryStore is the default; a
// relational-backed Store can be substituted without changing Broker.
type Store interface {
	Create(ctx context.Context, a *models.PendingApproval) error
	Update(ctx context.Context, a *models.PendingApproval) error
	Get(ctx context.Context, id string) (*models.PendingApproval, error)
}

type pendingWait struct {
	approval models.PendingApproval
	done     chan struct{}
	timer    *time.Timer
}

// Broker is the spec §4.4 Approval Broker.
type Broker struct {
	mu      sync.Mutex
	rules   []models.ApprovalRule
	store   Store
	sink    EventSink
	pending map[string]*pendingWait
	now     func() time.Time
}

// Option configures a Broker at construction time.
type Option func(*Broker)

func WithEventSink(sink EventSink) Option { return func(b *Broker) { b.sink = sink } }
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

func New(store Store, rules []models.ApprovalRule, opts ...Option) *Broker {
	b := &Broker{
		store:   store,
		rules:   rules,
		pending: make(map[string]*pendingWait),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetRules replaces the broker's ApprovalRule set (e.g. on config reload).
func (b *Broker) SetRules(rules []models.ApprovalRule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rules = rules
}

// ruleFor finds the most specific enabled ApprovalRule for (tenantID, tool):
// a tenant-scoped rule wins over a global one.
func (b *Broker) ruleFor(tenantID, tool string) *models.ApprovalRule {
	var global *models.ApprovalRule
	for i := range b.rules {
		r := &b.rules[i]
		if !strings.EqualFold(r.ToolName, tool) || !r.Enabled {
			continue
		}
		if r.TenantID == tenantID && tenantID != "" {
			return r
		}
		if r.TenantID == "" {
			global = r
		}
	}
	return global
}

// Gate reports whether executing tool for tenantID requires routing through
// RequestApproval at all. Tools with no enabled rule, or a rule with
// RequireApproval=false, execute directly.
func (b *Broker) Gate(tenantID, tool string) *models.ApprovalRule {
	b.mu.Lock()
	defer b.mu.Unlock()
	rule := b.ruleFor(tenantID, tool)
	if rule == nil || !rule.RequireApproval {
		return nil
	}
	return rule
}

// RequestApproval blocks until the gated tool call is approved, rejected,
// or its timeout elapses. A nil error means approved; otherwise the error
// is *RejectedError or *TimeoutError (spec §7 ApprovalRejected/ApprovalTimeout).
//
// Auto-approve rules short-circuit without persisting a PendingApproval, as
// spec §4.4 requires.
func (b *Broker) RequestApproval(ctx context.Context, tenantID, agentID, tool string, input []byte) error {
	b.mu.Lock()
	rule := b.ruleFor(tenantID, tool)
	b.mu.Unlock()

	if rule == nil {
		return nil
	}
	if rule.AutoApprove {
		return nil
	}
	if !rule.RequireApproval {
		return nil
	}

	timeout := time.Duration(rule.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	now := b.now()
	pa := models.PendingApproval{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		AgentID:   agentID,
		Tool:      tool,
		Input:     input,
		CreatedAt: now,
		ExpiresAt: now.Add(timeout),
		Status:    models.ApprovalPending,
	}
	if b.store != nil {
		if err := b.store.Create(ctx, &pa); err != nil {
			return fmt.Errorf("approval: persist pending approval: %w", err)
		}
	}

	wait := &pendingWait{approval: pa, done: make(chan struct{})}
	b.mu.Lock()
	b.pending[pa.ID] = wait
	b.mu.Unlock()

	b.emit(EventApprovalRequired, pa)

	wait.timer = time.AfterFunc(timeout, func() {
		b.resolveTimeout(pa.ID, rule.OnTimeout)
	})
	defer wait.timer.Stop()

	select {
	case <-wait.done:
		b.mu.Lock()
		resolved := wait.approval
		b.mu.Unlock()
		switch resolved.Status {
		case models.ApprovalApproved:
			return nil
		case models.ApprovalRejected:
			return &RejectedError{ApprovalID: resolved.ID}
		case models.ApprovalTimeout:
			if rule.OnTimeout == models.OnTimeoutApprove {
				return nil
			}
			return &TimeoutError{ApprovalID: resolved.ID}
		default:
			return &RejectedError{ApprovalID: resolved.ID}
		}
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, pa.ID)
		b.mu.Unlock()
		return ctx.Err()
	}
}

// Approve resolves a pending approval as approved (operator action).
func (b *Broker) Approve(ctx context.Context, id, decidedBy string) error {
	return b.resolve(ctx, id, models.ApprovalApproved)
}

// Reject resolves a pending approval as rejected (operator action).
func (b *Broker) Reject(ctx context.Context, id, decidedBy string) error {
	return b.resolve(ctx, id, models.ApprovalRejected)
}

var ErrNotPending = errors.New("approval: not pending or unknown id")

func (b *Broker) resolve(ctx context.Context, id string, status models.ApprovalStatus) error {
	b.mu.Lock()
	wait, ok := b.pending[id]
	if !ok {
		b.mu.Unlock()
		return ErrNotPending
	}
	if wait.approval.Status != models.ApprovalPending {
		b.mu.Unlock()
		return ErrNotPending
	}
	wait.timer.Stop()
	wait.approval.Status = status
	resolved := wait.approval
	delete(b.pending, id)
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.Update(ctx, &resolved); err != nil {
			return fmt.Errorf("approval: persist resolution: %w", err)
		}
	}
	b.emit(EventApprovalResolved, resolved)
	close(wait.done)
	return nil
}

func (b *Broker) resolveTimeout(id string, onTimeout models.ApprovalOnTimeout) {
	b.mu.Lock()
	wait, ok := b.pending[id]
	if !ok || wait.approval.Status != models.ApprovalPending {
		b.mu.Unlock()
		return
	}
	wait.approval.Status = models.ApprovalTimeout
	resolved := wait.approval
	delete(b.pending, id)
	b.mu.Unlock()

	if b.store != nil {
		_ = b.store.Update(context.Background(), &resolved)
	}
	b.emit(EventApprovalResolved, resolved)
	close(wait.done)
}

func (b *Broker) emit(event string, a models.PendingApproval) {
	if b.sink != nil {
		b.sink(event, a)
	}
}
