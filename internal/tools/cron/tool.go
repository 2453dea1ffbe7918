// Package cron exposes the Scheduler (spec §4.9) as an agent tool so a
// conversation can inspect and manage its own scheduled jobs.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loopgateway/core/internal/agent"
	"github.com/loopgateway/core/internal/scheduler"
	"github.com/loopgateway/core/pkg/models"
)

// Tool exposes scheduler actions to the Agent Loop.
type Tool struct {
	scheduler *scheduler.Scheduler
}

// NewTool creates a scheduler tool.
func NewTool(sched *scheduler.Scheduler) *Tool {
	return &Tool{scheduler: sched}
}

func (t *Tool) Name() string { return "cron" }

func (t *Tool) Description() string {
	return "Inspect and manage scheduled jobs (list/status/run/register/unregister/runs)."
}

func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "Action: list, status, run, register, unregister, runs.",
			},
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Job id for run/unregister actions.",
			},
			"job": map[string]interface{}{
				"type":        "object",
				"description": "ScheduledJob definition for register action.",
			},
			"job_id": map[string]interface{}{
				"type":        "string",
				"description": "Job id for the runs action.",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Limit for the runs action.",
			},
			"offset": map[string]interface{}{
				"type":        "integer",
				"description": "Offset for the runs action.",
			},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.scheduler == nil {
		return toolError("cron scheduler unavailable"), nil
	}
	var input struct {
		Action string               `json:"action"`
		ID     string               `json:"id"`
		JobID  string               `json:"job_id"`
		Job    models.ScheduledJob  `json:"job"`
		Limit  int                  `json:"limit"`
		Offset int                  `json:"offset"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))
	if action == "" {
		return toolError("action is required"), nil
	}

	switch action {
	case "list", "status":
		jobs, err := t.scheduler.Jobs(ctx)
		if err != nil {
			return toolError(fmt.Sprintf("list jobs: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{"jobs": jobs}), nil
	case "run":
		id := strings.TrimSpace(input.ID)
		if id == "" {
			return toolError("id is required"), nil
		}
		if err := t.scheduler.RunJob(ctx, id); err != nil {
			return toolError(fmt.Sprintf("run job: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{"status": "ran", "id": id}), nil
	case "register":
		if strings.TrimSpace(input.Job.Name) == "" {
			return toolError("job.name is required"), nil
		}
		job, err := t.scheduler.RegisterJob(ctx, &input.Job)
		if err != nil {
			return toolError(fmt.Sprintf("register job: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{"status": "registered", "job": job}), nil
	case "unregister":
		id := strings.TrimSpace(input.ID)
		if id == "" {
			return toolError("id is required"), nil
		}
		if err := t.scheduler.UnregisterJob(ctx, id); err != nil {
			return toolError(fmt.Sprintf("unregister job: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{"status": "removed", "id": id}), nil
	case "runs", "executions":
		jobID := strings.TrimSpace(input.JobID)
		runs, err := t.scheduler.Runs(ctx, jobID, input.Limit, input.Offset)
		if err != nil {
			return toolError(fmt.Sprintf("list runs: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{"job_id": jobID, "runs": runs}), nil
	default:
		return toolError("unsupported action"), nil
	}
}

func toolError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}

func jsonResult(payload any) *agent.ToolResult {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err))
	}
	return &agent.ToolResult{Content: string(encoded)}
}
