package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loopgateway/core/internal/a2a"
	"github.com/loopgateway/core/pkg/models"
)

// NewSubAgentRunner adapts Runtime.Process into the a2a.SubAgentRunner
// signature the Spawner needs to drive a sub-agent loop (spec §4.7
// spawner, §4.6 sub-agent variant: role prompt, role-restricted tools,
// iteration cap 10). rolePrompts supplies the RoleSpec.systemPrompt per
// role; a missing entry falls back to the runtime's default system prompt.
func NewSubAgentRunner(runtime *Runtime, rolePrompts map[models.AgentRole]string) a2a.SubAgentRunner {
	return func(ctx context.Context, identity models.AgentIdentity, task string, taskContext map[string]any) (string, error) {
		session := &models.Session{
			ID:        uuid.NewString(),
			AgentID:   identity.ID,
			Channel:   models.ChannelInternal,
			ChannelID: "a2a-subagent",
			Key:       "subagent:" + identity.ID,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		msg := &models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleUser,
			Content:   task,
			CreatedAt: time.Now(),
		}

		subCtx := ctx
		if prompt, ok := rolePrompts[identity.Role]; ok && prompt != "" {
			subCtx = WithSystemPrompt(subCtx, prompt)
		}
		subCtx = WithRuntimeOptions(subCtx, RuntimeOptions{MaxIterations: 10})

		chunks, err := runtime.Process(subCtx, session, msg)
		if err != nil {
			return "", fmt.Errorf("a2a subagent run: %w", err)
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
	}
}
