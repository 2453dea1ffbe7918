// Package webhook implements the Webhook Fabric (spec §4.11): token-keyed
// inbound invocation endpoints and a concurrent outbound event dispatcher.
package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loopgateway/core/pkg/models"
)

// Source identifies this gateway in outbound delivery bodies.
const Source = "loop-gateway"

const outboundTimeout = 15 * time.Second

// Store persists WebhookRegistration rows.
type Store interface {
	CreateRegistration(ctx context.Context, reg *models.WebhookRegistration) error
	GetRegistration(ctx context.Context, id string) (*models.WebhookRegistration, error)
	GetByToken(ctx context.Context, token string) (*models.WebhookRegistration, error)
	ListRegistrations(ctx context.Context) ([]*models.WebhookRegistration, error)
	UpdateRegistration(ctx context.Context, reg *models.WebhookRegistration) error
	DeleteRegistration(ctx context.Context, id string) error
}

// InvokeRunner drives the Agent Loop on behalf of an inbound `invoke` call.
type InvokeRunner interface {
	Invoke(ctx context.Context, tenantID, conversationKey, message string) (reply string, err error)
}

// InvokeRunnerFunc adapts a function to InvokeRunner.
type InvokeRunnerFunc func(ctx context.Context, tenantID, conversationKey, message string) (string, error)

func (f InvokeRunnerFunc) Invoke(ctx context.Context, tenantID, conversationKey, message string) (string, error) {
	return f(ctx, tenantID, conversationKey, message)
}

// DeliveryRecord is one attempted outbound POST, kept for operator
// visibility; spec §4.11 requires a "delivery log" without naming a
// persisted schema for it, so this stays an in-memory/operational record
// rather than a §3 data-model type.
type DeliveryRecord struct {
	WebhookID  string
	Event      string
	StatusCode int
	Err        string
	DeliveredAt time.Time
}

// DeliveryLog records DeliveryRecords.
type DeliveryLog interface {
	Record(rec DeliveryRecord)
}

// DeliveryLogFunc adapts a function to DeliveryLog.
type DeliveryLogFunc func(DeliveryRecord)

func (f DeliveryLogFunc) Record(rec DeliveryRecord) { f(rec) }

// Server exposes the inbound endpoints and the outbound dispatcher.
type Server struct {
	Store      Store
	Runner     InvokeRunner
	Deliveries DeliveryLog
	HTTPClient *http.Client
	Logger     *slog.Logger

	now func() time.Time
}

// NewServer constructs a Server.
func NewServer(store Store, runner InvokeRunner) *Server {
	return &Server{
		Store:      store,
		Runner:     runner,
		HTTPClient: &http.Client{Timeout: outboundTimeout},
		Logger:     slog.Default().With("component", "webhook"),
		now:        time.Now,
	}
}

// Routes mounts the three inbound endpoints on a fresh ServeMux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/invoke/{token}", s.handleInvoke)
	mux.HandleFunc("POST /webhook/task/{token}", s.handleTask)
	mux.HandleFunc("GET /webhook/health/{token}", s.handleHealth)
	return mux
}

func (s *Server) resolveToken(ctx context.Context, token string) (*models.WebhookRegistration, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errInvalidToken
	}
	reg, err := s.Store.GetByToken(ctx, token)
	if err != nil {
		return nil, errInvalidToken
	}
	if reg == nil || !reg.Enabled || subtle.ConstantTimeCompare([]byte(reg.Token), []byte(token)) != 1 {
		return nil, errInvalidToken
	}
	return reg, nil
}

var errInvalidToken = fmt.Errorf("invalid or disabled webhook token")

type invokeRequest struct {
	Message        string         `json:"message"`
	AgentGroupID   string         `json:"agentGroupId"`
	ConversationID string         `json:"conversationId"`
	Sync           *bool          `json:"sync"`
	Metadata       map[string]any `json:"metadata"`
}

type invokeResponse struct {
	Success        bool   `json:"success"`
	Response       string `json:"response,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	reg, err := s.resolveToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("message is required"))
		return
	}

	tenantID := req.AgentGroupID
	if tenantID == "" {
		tenantID = reg.TenantID
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	conversationKey := fmt.Sprintf("webhook-%s:%s", reg.ID, conversationID)

	sync := req.Sync == nil || *req.Sync
	if !sync {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if _, err := s.Runner.Invoke(ctx, tenantID, conversationKey, req.Message); err != nil {
				s.Logger.Warn("async webhook invoke failed", "webhook_id", reg.ID, "error", err)
			}
		}()
		writeJSON(w, http.StatusOK, invokeResponse{Success: true, ConversationID: conversationID})
		return
	}

	reply, err := s.Runner.Invoke(r.Context(), tenantID, conversationKey, req.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, invokeResponse{Success: true, Response: reply, ConversationID: conversationID})
}

type taskRequest struct {
	Name          string `json:"name"`
	Prompt        string `json:"prompt"`
	MaxIterations int    `json:"maxIterations"`
}

type taskResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"taskId"`
	Status  string `json:"status"`
}

// handleTask is the entry point for the "loop mode" long-running
// autonomous task surface. Loop mode's own execution semantics are a
// spec §4.11 non-goal; this accepts the request and hands the prompt to
// one Agent Loop run, tracked by a generated task id, so the endpoint
// the spec names actually exists on the wire.
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	reg, err := s.resolveToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("prompt is required"))
		return
	}

	taskID := uuid.NewString()
	conversationKey := fmt.Sprintf("webhook-task-%s:%s", reg.ID, taskID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := s.Runner.Invoke(ctx, reg.TenantID, conversationKey, req.Prompt); err != nil {
			s.Logger.Warn("webhook task run failed", "webhook_id", reg.ID, "task_id", taskID, "error", err)
		}
	}()

	writeJSON(w, http.StatusOK, taskResponse{Success: true, TaskID: taskID, Status: "started"})
}

type healthWebhook struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Platform string   `json:"platform"`
	Events   []string `json:"events"`
}

type healthResponse struct {
	Success bool          `json:"success"`
	Webhook healthWebhook `json:"webhook"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	reg, err := s.resolveToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Success: true,
		Webhook: healthWebhook{ID: reg.ID, Name: reg.Name, Platform: "webhook", Events: reg.SubscribedEvents},
	})
}

// outboundPayload is the body POSTed to subscribers (spec §6).
type outboundPayload struct {
	Event     string `json:"event"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// Dispatch fans out eventName to every enabled webhook whose subscription
// set includes eventName or "*", optionally filtered to tenantID
// (webhooks with no TenantID bind globally). Deliveries run concurrently;
// a slow or failing target never blocks the others and is never retried.
func (s *Server) Dispatch(ctx context.Context, eventName string, payload any, tenantID *string) error {
	regs, err := s.Store.ListRegistrations(ctx)
	if err != nil {
		return fmt.Errorf("list webhook registrations: %w", err)
	}

	nowFn := s.now
	if nowFn == nil {
		nowFn = time.Now
	}
	body := outboundPayload{
		Event:     eventName,
		Payload:   payload,
		Timestamp: nowFn().UTC().Format(time.RFC3339),
		Source:    Source,
	}

	var wg sync.WaitGroup
	for _, reg := range regs {
		if reg == nil || !reg.Enabled {
			continue
		}
		if !subscribes(reg.SubscribedEvents, eventName) {
			continue
		}
		if tenantID != nil && reg.TenantID != "" && reg.TenantID != *tenantID {
			continue
		}

		wg.Add(1)
		go func(reg *models.WebhookRegistration) {
			defer wg.Done()
			s.deliver(ctx, reg, body)
		}(reg)
	}
	wg.Wait()
	return nil
}

func subscribes(events []string, eventName string) bool {
	for _, e := range events {
		if e == "*" || e == eventName {
			return true
		}
	}
	return false
}

func (s *Server) deliver(ctx context.Context, reg *models.WebhookRegistration, body outboundPayload) {
	encoded, err := json.Marshal(body)
	if err != nil {
		s.logDelivery(reg.ID, body.Event, 0, err)
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, outboundTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(deliverCtx, http.MethodPost, reg.TargetURL, bytes.NewReader(encoded))
	if err != nil {
		s.logDelivery(reg.ID, body.Event, 0, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", body.Event)
	req.Header.Set("X-Webhook-Id", reg.ID)
	req.Header.Set("X-Webhook-Token", reg.Token)

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		s.Logger.Warn("webhook delivery failed", "webhook_id", reg.ID, "event", body.Event, "error", err)
		s.logDelivery(reg.ID, body.Event, 0, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.Logger.Warn("webhook delivery rejected", "webhook_id", reg.ID, "event", body.Event, "status", resp.StatusCode)
		s.logDelivery(reg.ID, body.Event, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode))
		return
	}

	s.logDelivery(reg.ID, body.Event, resp.StatusCode, nil)
	s.bumpTriggerCount(ctx, reg)
}

func (s *Server) bumpTriggerCount(ctx context.Context, reg *models.WebhookRegistration) {
	nowFn := s.now
	if nowFn == nil {
		nowFn = time.Now
	}
	current, err := s.Store.GetRegistration(ctx, reg.ID)
	if err != nil || current == nil {
		return
	}
	current.TriggerCount++
	current.LastTriggeredAt = nowFn()
	if err := s.Store.UpdateRegistration(ctx, current); err != nil {
		s.Logger.Warn("failed to record webhook trigger count", "webhook_id", reg.ID, "error", err)
	}
}

func (s *Server) logDelivery(webhookID, event string, status int, err error) {
	if s.Deliveries == nil {
		return
	}
	nowFn := s.now
	if nowFn == nil {
		nowFn = time.Now
	}
	rec := DeliveryRecord{WebhookID: webhookID, Event: event, StatusCode: status, DeliveredAt: nowFn()}
	if err != nil {
		rec.Err = err.Error()
	}
	s.Deliveries.Record(rec)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
