// Package a2a implements the Agent-to-Agent Message Bus: an in-process
// pub/sub fabric with persistence, request/response correlation, and the
// sub-agent spawner that backs delegate_task (spec §4.7).
package a2a

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loopgateway/core/pkg/models"
)

// Kind A2ATimeout, per spec §7.
const KindA2ATimeout = "A2ATimeout"

// TimeoutError is returned by RequestAndWait when no matching response
// arrives within the deadline.
type TimeoutError struct {
	MessageID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("a2a: request %s timed out waiting for a response", e.MessageID)
}

var ErrUnknownAgent = errors.New("a2a: unknown agent id")

// Handler processes one delivered message. Implementations should call
// Fabric.MarkProcessed once they are done handling it.
type Handler func(ctx context.Context, msg models.A2AMessage)

// Store persists A2AMessages for audit (spec §3: "Persisted for audit").
type Store interface {
	Create(ctx context.Context, msg *models.A2AMessage) error
	Update(ctx context.Context, msg *models.A2AMessage) error
	Get(ctx context.Context, id string) (*models.A2AMessage, error)
}

type inbox struct {
	identity models.AgentIdentity
	handler  Handler
	queue    chan models.A2AMessage
	cancel   context.CancelFunc
}

// Fabric is the spec §4.7 A2A Bus fabric role.
type Fabric struct {
	mu            sync.Mutex
	agents        map[string]*inbox
	store         Store
	continuations map[string]chan models.A2AMessage
	now           func() time.Time
	inboxCap      int
}

type Option func(*Fabric)

func WithClock(now func() time.Time) Option { return func(f *Fabric) { f.now = now } }
func WithInboxCapacity(n int) Option        { return func(f *Fabric) { f.inboxCap = n } }

func NewFabric(store Store, opts ...Option) *Fabric {
	f := &Fabric{
		agents:        make(map[string]*inbox),
		store:         store,
		continuations: make(map[string]chan models.A2AMessage),
		now:           time.Now,
		inboxCap:      64,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RegisterAgent registers an inbox for identity and starts its dispatch
// loop. Messages are delivered to handler in send-accept order (the
// ordering guarantee named in spec §4.7), one at a time per agent.
func (f *Fabric) RegisterAgent(identity models.AgentIdentity, handler Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.agents[identity.ID]; exists {
		return fmt.Errorf("a2a: agent %q already registered", identity.ID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	box := &inbox{identity: identity, handler: handler, queue: make(chan models.A2AMessage, f.inboxCap), cancel: cancel}
	f.agents[identity.ID] = box

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-box.queue:
				box.handler(ctx, msg)
			}
		}
	}()
	return nil
}

// UnregisterAgent stops an agent's dispatch loop and removes its inbox.
func (f *Fabric) UnregisterAgent(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if box, ok := f.agents[id]; ok {
		box.cancel()
		delete(f.agents, id)
	}
}

// Send persists msg with status pending and routes it to its recipient(s).
// Broadcast ("*") delivers to every registered agent except the sender.
func (f *Fabric) Send(ctx context.Context, msg models.A2AMessage) (models.A2AMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = f.now()
	}
	msg.Status = models.A2AStatusPending
	if f.store != nil {
		if err := f.store.Create(ctx, &msg); err != nil {
			return msg, fmt.Errorf("a2a: persist message: %w", err)
		}
	}

	if msg.TTLMs > 0 && f.now().After(msg.CreatedAt.Add(time.Duration(msg.TTLMs)*time.Millisecond)) {
		msg.Status = models.A2AStatusExpired
		f.persistUpdate(ctx, msg)
		return msg, nil
	}

	if msg.To == models.BroadcastRecipient {
		f.mu.Lock()
		targets := make([]*inbox, 0, len(f.agents))
		for id, box := range f.agents {
			if id == msg.From.ID {
				continue
			}
			targets = append(targets, box)
		}
		f.mu.Unlock()
		for _, box := range targets {
			f.deliver(box, msg)
		}
		msg.Status = models.A2AStatusDelivered
		f.persistUpdate(ctx, msg)
		return msg, nil
	}

	f.mu.Lock()
	box, ok := f.agents[msg.To]
	f.mu.Unlock()
	if !ok {
		msg.Status = models.A2AStatusFailed
		f.persistUpdate(ctx, msg)
		return msg, ErrUnknownAgent
	}
	if !f.deliver(box, msg) {
		msg.Status = models.A2AStatusFailed
		f.persistUpdate(ctx, msg)
		return msg, fmt.Errorf("a2a: inbox full for agent %q", msg.To)
	}
	msg.Status = models.A2AStatusDelivered
	f.persistUpdate(ctx, msg)
	return msg, nil
}

func (f *Fabric) deliver(box *inbox, msg models.A2AMessage) bool {
	select {
	case box.queue <- msg:
		return true
	default:
		return false
	}
}

func (f *Fabric) persistUpdate(ctx context.Context, msg models.A2AMessage) {
	if f.store == nil {
		return
	}
	_ = f.store.Update(ctx, &msg)
}

// RequestAndWait sends msg (forced to kind=request) and blocks until a
// matching response arrives (correlated by msg.ID via ReplyTo) or timeout
// elapses. Defaults to 120s per spec §5 when timeout<=0.
func (f *Fabric) RequestAndWait(ctx context.Context, msg models.A2AMessage, timeout time.Duration) (models.A2AMessage, error) {
	msg.Kind = models.A2AKindRequest
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	cont := make(chan models.A2AMessage, 1)
	f.mu.Lock()
	f.continuations[msg.ID] = cont
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.continuations, msg.ID)
		f.mu.Unlock()
	}()

	sent, err := f.Send(ctx, msg)
	if err != nil {
		return sent, err
	}

	select {
	case resp := <-cont:
		return resp, nil
	case <-time.After(timeout):
		return models.A2AMessage{}, &TimeoutError{MessageID: msg.ID}
	case <-ctx.Done():
		return models.A2AMessage{}, ctx.Err()
	}
}

// MarkProcessed transitions a delivered message to processed. Idempotent:
// a second call on an already-processed id is a no-op, not an error. If
// response is non-nil and a continuation is registered under the replyTo
// id it carries, the waiting RequestAndWait call is resolved with it.
func (f *Fabric) MarkProcessed(ctx context.Context, id string, response *models.A2AMessage) error {
	if f.store == nil {
		return nil
	}
	existing, err := f.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("a2a: mark processed: %w", err)
	}
	if existing.Status == models.A2AStatusProcessed {
		return nil
	}
	now := f.now()
	existing.Status = models.A2AStatusProcessed
	existing.ProcessedAt = &now
	if err := f.store.Update(ctx, existing); err != nil {
		return fmt.Errorf("a2a: persist processed state: %w", err)
	}

	if response != nil {
		response.ReplyTo = id
		if _, err := f.Send(ctx, *response); err != nil {
			return err
		}
		f.mu.Lock()
		cont, ok := f.continuations[id]
		f.mu.Unlock()
		if ok {
			select {
			case cont <- *response:
			default:
			}
		}
	}
	return nil
}
