package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loopgateway/core/internal/webhook"
	"github.com/loopgateway/core/pkg/models"
)

// NewWebhookInvokeRunner adapts Runtime.Process into the webhook.InvokeRunner
// signature used by the Webhook Fabric's `invoke`/`task` endpoints
// (spec §4.11): conversationKey already carries the spec's
// `channelId = webhook-<id>` shape, built by the caller.
func NewWebhookInvokeRunner(runtime *Runtime, loadTenant TenantByID) webhook.InvokeRunner {
	return webhook.InvokeRunnerFunc(func(ctx context.Context, tenantID, conversationKey, message string) (string, error) {
		session := &models.Session{
			ID:        uuid.NewString(),
			Channel:   models.ChannelWebhook,
			ChannelID: conversationKey,
			Key:       conversationKey,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		msg := &models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleUser,
			Content:   message,
			CreatedAt: time.Now(),
		}

		runOpts := RuntimeOptions{}
		if loadTenant != nil && strings.TrimSpace(tenantID) != "" {
			tenant, err := loadTenant(ctx, tenantID)
			if err != nil {
				return "", fmt.Errorf("webhook invoke: load tenant %q: %w", tenantID, err)
			}
			runOpts.Tenant = tenant
		}
		subCtx := WithRuntimeOptions(ctx, runOpts)

		chunks, err := runtime.Process(subCtx, session, msg)
		if err != nil {
			return "", fmt.Errorf("webhook invoke run: %w", err)
		}

		var b strings.Builder
		for chunk := range chunks {
			if chunk == nil {
				continue
			}
			if chunk.Error != nil {
				return "", chunk.Error
			}
			if chunk.Text != "" {
				b.WriteString(chunk.Text)
			}
		}
		return b.String(), nil
	})
}
