package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loopgateway/core/internal/scheduler"
	"github.com/loopgateway/core/pkg/models"
)

// TenantByID loads a tenant's full record by id, for components (like the
// Scheduler) that only carry a tenantID across a persistence boundary.
type TenantByID func(ctx context.Context, tenantID string) (*models.Tenant, error)

// NewScheduledJobRunner adapts Runtime.Process into the scheduler.AgentRunner
// signature, constructing a synthetic conversation per fire as spec §4.9
// requires: channelId="scheduler", externalId=job-<id> (the conversationKey
// the Scheduler already computes).
func NewScheduledJobRunner(runtime *Runtime, loadTenant TenantByID) scheduler.AgentRunner {
	return scheduler.AgentRunnerFunc(func(ctx context.Context, tenantID, conversationKey, prompt string) (string, int64, int64, error) {
		session := &models.Session{
			ID:        uuid.NewString(),
			Channel:   models.ChannelInternal,
			ChannelID: "scheduler",
			Key:       conversationKey,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		msg := &models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleUser,
			Content:   prompt,
			CreatedAt: time.Now(),
		}

		runOpts := RuntimeOptions{}
		if loadTenant != nil {
			tenant, err := loadTenant(ctx, tenantID)
			if err != nil {
				return "", 0, 0, fmt.Errorf("scheduled job: load tenant %q: %w", tenantID, err)
			}
			runOpts.Tenant = tenant
		}
		subCtx := WithRuntimeOptions(ctx, runOpts)

		chunks, err := runtime.Process(subCtx, session, msg)
		if err != nil {
			return "", 0, 0, fmt.Errorf("scheduled job run: %w", err)
		}

		var b strings.Builder
		var inTok, outTok int64
		for chunk := range chunks {
			if chunk == nil {
				continue
			}
			if chunk.Error != nil {
				return "", inTok, outTok, chunk.Error
			}
			if chunk.Text != "" {
				b.WriteString(chunk.Text)
			}
		}
		return b.String(), inTok, outTok, nil
	})
}
