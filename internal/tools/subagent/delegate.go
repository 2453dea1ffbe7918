// Package subagent exposes the A2A Bus spawner (spec §4.7) as the
// delegate_task agent tool, plus session-announce formatting helpers kept
// from the teacher's subagent flow.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loopgateway/core/internal/a2a"
	"github.com/loopgateway/core/internal/agent"
	"github.com/loopgateway/core/pkg/models"
)

// DelegateTool lets a primary agent hand a task to a role-scoped sub-agent
// via the A2A Bus spawner (spec §4.7).
type DelegateTool struct {
	spawner  *a2a.Spawner
	tenantID func(ctx context.Context) string
}

// NewDelegateTool constructs the delegate_task tool. tenantID resolves the
// calling tenant for concurrency accounting; a nil resolver yields an
// empty tenant id (treated as the default tenant's own cap).
func NewDelegateTool(spawner *a2a.Spawner, tenantID func(ctx context.Context) string) *DelegateTool {
	return &DelegateTool{spawner: spawner, tenantID: tenantID}
}

func (t *DelegateTool) Name() string { return "delegate_task" }

func (t *DelegateTool) Description() string {
	return "Delegate a task to a role-scoped sub-agent (planner, builder, reviewer, researcher) and wait for its final answer."
}

func (t *DelegateTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"role": map[string]interface{}{
				"type":        "string",
				"description": "Sub-agent role: planner, builder, reviewer, or researcher.",
			},
			"task": map[string]interface{}{
				"type":        "string",
				"description": "The task to delegate, in full detail.",
			},
			"context": map[string]interface{}{
				"type":        "object",
				"description": "Optional structured context to pass to the sub-agent.",
			},
		},
		"required": []string{"role", "task"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *DelegateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.spawner == nil {
		return delegateError("delegate_task: A2A spawner unavailable"), nil
	}
	var input struct {
		Role    string         `json:"role"`
		Task    string         `json:"task"`
		Context map[string]any `json:"context"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return delegateError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	role := models.AgentRole(strings.ToLower(strings.TrimSpace(input.Role)))
	if role == "" {
		return delegateError("role is required"), nil
	}
	if strings.TrimSpace(input.Task) == "" {
		return delegateError("task is required"), nil
	}

	tenantID := ""
	if t.tenantID != nil {
		tenantID = t.tenantID(ctx)
	}
	session := agent.SessionFromContext(ctx)
	parentID := "primary"
	if session != nil && session.AgentID != "" {
		parentID = session.AgentID
	}
	parent := models.AgentIdentity{ID: parentID, Role: models.RolePrimary, TenantID: tenantID}

	result, err := t.spawner.DelegateTask(ctx, parent, role, input.Task, input.Context)
	if err != nil {
		return delegateError(fmt.Sprintf("delegate task: %v", err)), nil
	}
	payload, err := json.Marshal(map[string]string{"role": string(role), "result": result})
	if err != nil {
		return delegateError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

func delegateError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
